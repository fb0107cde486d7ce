package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kainan-app/api/internal/database"
	"github.com/kainan-app/api/internal/enum"
	"github.com/kainan-app/api/internal/handler"
	"github.com/kainan-app/api/internal/middleware"
	"github.com/kainan-app/api/internal/payment"
	"github.com/kainan-app/api/internal/service"
)

// --- Mock BookingServicer ---

type mockBookingService struct {
	createFn  func(ctx context.Context, req service.CreateBookingRequest) (database.Booking, error)
	approveFn func(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error)
	declineFn func(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error)
	cancelFn  func(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error)
}

func (m *mockBookingService) CreateBooking(ctx context.Context, req service.CreateBookingRequest) (database.Booking, error) {
	return m.createFn(ctx, req)
}

func (m *mockBookingService) Approve(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error) {
	return m.approveFn(ctx, id, actor)
}

func (m *mockBookingService) Decline(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error) {
	return m.declineFn(ctx, id, actor)
}

func (m *mockBookingService) Cancel(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error) {
	return m.cancelFn(ctx, id, actor)
}

// --- Mock BookingReadStore ---

type mockBookingReadStore struct {
	getBookingFn         func(ctx context.Context, id uuid.UUID) (database.Booking, error)
	listBookingsFn       func(ctx context.Context, arg database.ListBookingsParams) ([]database.Booking, error)
	listBookingsByUserFn func(ctx context.Context, arg database.ListBookingsByUserParams) ([]database.Booking, error)
}

func (m *mockBookingReadStore) GetBooking(ctx context.Context, id uuid.UUID) (database.Booking, error) {
	if m.getBookingFn != nil {
		return m.getBookingFn(ctx, id)
	}
	return database.Booking{}, pgx.ErrNoRows
}

func (m *mockBookingReadStore) ListBookings(ctx context.Context, arg database.ListBookingsParams) ([]database.Booking, error) {
	if m.listBookingsFn != nil {
		return m.listBookingsFn(ctx, arg)
	}
	return []database.Booking{}, nil
}

func (m *mockBookingReadStore) ListBookingsByUser(ctx context.Context, arg database.ListBookingsByUserParams) ([]database.Booking, error) {
	if m.listBookingsByUserFn != nil {
		return m.listBookingsByUserFn(ctx, arg)
	}
	return []database.Booking{}, nil
}

// --- Router setup ---

func setupBookingRouter(svc *mockBookingService, store *mockBookingReadStore, payments *mockPaymentStarter, notifier *mockNotifier) *chi.Mux {
	h := handler.NewBookingHandler(svc, store, payments, notifier)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testJWTSecret))
		h.RegisterRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireStaff)
			h.RegisterStaffRoutes(r)
		})
	})
	return r
}

func testBooking(t *testing.T, userID uuid.UUID, status string) database.Booking {
	t.Helper()
	now := time.Now()
	return database.Booking{
		ID:            uuid.New(),
		UserID:        userID,
		CustomerName:  "Ana Reyes",
		BookedFor:     now.Add(48 * time.Hour),
		PartySize:     4,
		Status:        status,
		PaymentStatus: enum.PaymentStatusUnpaid,
		PaymentAmount: testNumeric(t, "200.00"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// --- Tests ---

func TestBookingCreate_HappyPath(t *testing.T) {
	claims := customerClaims()
	bookedFor := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)

	svc := &mockBookingService{
		createFn: func(ctx context.Context, req service.CreateBookingRequest) (database.Booking, error) {
			if req.UserID != claims.UserID {
				t.Errorf("user_id: got %v, want %v", req.UserID, claims.UserID)
			}
			if req.CustomerName != "Ana Reyes" {
				t.Errorf("customer_name: got %q, want Ana Reyes", req.CustomerName)
			}
			if !req.BookedFor.Equal(bookedFor) {
				t.Errorf("booked_for: got %v, want %v", req.BookedFor, bookedFor)
			}
			if req.PartySize != 4 {
				t.Errorf("party_size: got %d, want 4", req.PartySize)
			}
			b := testBooking(t, claims.UserID, enum.BookingStatusPending)
			b.BookedFor = req.BookedFor
			return b, nil
		},
	}

	notifier := &mockNotifier{}
	router := setupBookingRouter(svc, &mockBookingReadStore{}, nil, notifier)
	rr := doAuthRequest(t, router, "POST", "/bookings", map[string]interface{}{
		"customer_name": "Ana Reyes",
		"booked_for":    bookedFor.Format(time.RFC3339),
		"party_size":    4,
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["status"] != enum.BookingStatusPending {
		t.Errorf("status: got %v, want %s", resp["status"], enum.BookingStatusPending)
	}
	if resp["payment_amount"] != "200.00" {
		t.Errorf("payment_amount: got %v, want 200.00", resp["payment_amount"])
	}

	if len(notifier.staffEvents) != 1 || notifier.staffEvents[0].Type != "booking_requested" {
		t.Errorf("staff events: got %+v, want one booking_requested", notifier.staffEvents)
	}
}

func TestBookingCreate_PastDate(t *testing.T) {
	claims := customerClaims()
	svc := &mockBookingService{
		createFn: func(ctx context.Context, req service.CreateBookingRequest) (database.Booking, error) {
			return database.Booking{}, service.ErrPastBookingDate
		},
	}

	router := setupBookingRouter(svc, &mockBookingReadStore{}, nil, &mockNotifier{})
	rr := doAuthRequest(t, router, "POST", "/bookings", map[string]interface{}{
		"customer_name": "Ana Reyes",
		"booked_for":    time.Now().Add(-time.Hour).Format(time.RFC3339),
		"party_size":    4,
	}, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestBookingList_CustomerSeesOwn(t *testing.T) {
	claims := customerClaims()
	var listedAll bool

	store := &mockBookingReadStore{
		listBookingsFn: func(ctx context.Context, arg database.ListBookingsParams) ([]database.Booking, error) {
			listedAll = true
			return nil, nil
		},
		listBookingsByUserFn: func(ctx context.Context, arg database.ListBookingsByUserParams) ([]database.Booking, error) {
			if arg.UserID != claims.UserID {
				t.Errorf("user_id: got %v, want %v", arg.UserID, claims.UserID)
			}
			return []database.Booking{testBooking(t, claims.UserID, enum.BookingStatusUnpaid)}, nil
		},
	}

	router := setupBookingRouter(&mockBookingService{}, store, nil, &mockNotifier{})
	rr := doAuthRequest(t, router, "GET", "/bookings", nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if listedAll {
		t.Error("customer request hit the all-bookings query")
	}

	resp := decodeResponse(t, rr)
	bookings := resp["bookings"].([]interface{})
	if len(bookings) != 1 {
		t.Fatalf("bookings: got %d, want 1", len(bookings))
	}
}

func TestBookingGet_HidesOtherCustomersBooking(t *testing.T) {
	claims := customerClaims()
	booking := testBooking(t, uuid.New(), enum.BookingStatusPending)

	store := &mockBookingReadStore{
		getBookingFn: func(ctx context.Context, id uuid.UUID) (database.Booking, error) {
			return booking, nil
		},
	}

	router := setupBookingRouter(&mockBookingService{}, store, nil, &mockNotifier{})
	rr := doAuthRequest(t, router, "GET", "/bookings/"+booking.ID.String(), nil, claims)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestBookingApprove_Staff(t *testing.T) {
	claims := staffClaims()
	ownerID := uuid.New()
	approved := testBooking(t, ownerID, enum.BookingStatusUnpaid)

	svc := &mockBookingService{
		approveFn: func(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error) {
			if !actor.Staff {
				t.Error("actor not marked staff")
			}
			return approved, nil
		},
	}

	notifier := &mockNotifier{}
	router := setupBookingRouter(svc, &mockBookingReadStore{}, nil, notifier)
	rr := doAuthRequest(t, router, "POST", "/bookings/"+approved.ID.String()+"/approve", nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["status"] != enum.BookingStatusUnpaid {
		t.Errorf("status: got %v, want %s", resp["status"], enum.BookingStatusUnpaid)
	}

	if len(notifier.userEvents) != 1 || notifier.userEvents[0].Type != "booking_approved" {
		t.Fatalf("user events: got %+v, want one booking_approved", notifier.userEvents)
	}
	if notifier.userTargets[0] != ownerID {
		t.Errorf("event target: got %v, want booking owner %v", notifier.userTargets[0], ownerID)
	}
}

func TestBookingApprove_CustomerForbidden(t *testing.T) {
	claims := customerClaims()
	router := setupBookingRouter(&mockBookingService{}, &mockBookingReadStore{}, nil, &mockNotifier{})
	rr := doAuthRequest(t, router, "POST", "/bookings/"+uuid.New().String()+"/approve", nil, claims)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestBookingDecline_Staff(t *testing.T) {
	claims := staffClaims()
	declined := testBooking(t, uuid.New(), enum.BookingStatusDeclined)

	svc := &mockBookingService{
		declineFn: func(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error) {
			return declined, nil
		},
	}

	notifier := &mockNotifier{}
	router := setupBookingRouter(svc, &mockBookingReadStore{}, nil, notifier)
	rr := doAuthRequest(t, router, "POST", "/bookings/"+declined.ID.String()+"/decline", nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if len(notifier.userEvents) != 1 || notifier.userEvents[0].Type != "booking_declined" {
		t.Errorf("user events: got %+v, want one booking_declined", notifier.userEvents)
	}
}

func TestBookingCancel_NotifiesBothRooms(t *testing.T) {
	claims := customerClaims()
	cancelled := testBooking(t, claims.UserID, enum.BookingStatusCancelled)

	svc := &mockBookingService{
		cancelFn: func(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error) {
			if actor.UserID != claims.UserID {
				t.Errorf("actor: got %v, want %v", actor.UserID, claims.UserID)
			}
			return cancelled, nil
		},
	}

	notifier := &mockNotifier{}
	router := setupBookingRouter(svc, &mockBookingReadStore{}, nil, notifier)
	rr := doAuthRequest(t, router, "POST", "/bookings/"+cancelled.ID.String()+"/cancel", nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if len(notifier.userEvents) != 1 {
		t.Errorf("user events: got %d, want 1", len(notifier.userEvents))
	}
	if len(notifier.staffEvents) != 1 {
		t.Errorf("staff events: got %d, want 1", len(notifier.staffEvents))
	}
}

func TestBookingCancel_Terminal(t *testing.T) {
	claims := customerClaims()
	svc := &mockBookingService{
		cancelFn: func(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error) {
			return database.Booking{}, service.ErrInvalidStateTransition
		},
	}

	notifier := &mockNotifier{}
	router := setupBookingRouter(svc, &mockBookingReadStore{}, nil, notifier)
	rr := doAuthRequest(t, router, "POST", "/bookings/"+uuid.New().String()+"/cancel", nil, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
	if len(notifier.userEvents)+len(notifier.staffEvents) != 0 {
		t.Error("rejected cancel still broadcast events")
	}
}

func TestBookingBeginPayment_HappyPath(t *testing.T) {
	claims := customerClaims()
	booking := testBooking(t, claims.UserID, enum.BookingStatusUnpaid)

	store := &mockBookingReadStore{
		getBookingFn: func(ctx context.Context, id uuid.UUID) (database.Booking, error) {
			return booking, nil
		},
	}
	payments := &mockPaymentStarter{
		beginFn: func(ctx context.Context, subjectType string, subjectID uuid.UUID, payerEmail string) (payment.BeginResult, error) {
			if subjectType != enum.SubjectTypeBooking {
				t.Errorf("subject type: got %q, want %q", subjectType, enum.SubjectTypeBooking)
			}
			if payerEmail != claims.Email {
				t.Errorf("payer email: got %q, want %q", payerEmail, claims.Email)
			}
			return payment.BeginResult{
				Reference:    "pi_res_42",
				ClientSecret: "pi_res_42_secret",
				Amount:       20000,
				Currency:     "PHP",
			}, nil
		},
	}

	router := setupBookingRouter(&mockBookingService{}, store, payments, &mockNotifier{})
	rr := doAuthRequest(t, router, "POST", "/bookings/"+booking.ID.String()+"/payment", nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["reference"] != "pi_res_42" {
		t.Errorf("reference: got %v, want pi_res_42", resp["reference"])
	}
	if resp["amount"] != float64(20000) {
		t.Errorf("amount: got %v, want 20000", resp["amount"])
	}
}

func TestBookingBeginPayment_BeforeApproval(t *testing.T) {
	claims := customerClaims()
	booking := testBooking(t, claims.UserID, enum.BookingStatusPending)

	store := &mockBookingReadStore{
		getBookingFn: func(ctx context.Context, id uuid.UUID) (database.Booking, error) {
			return booking, nil
		},
	}
	payments := &mockPaymentStarter{
		beginFn: func(ctx context.Context, subjectType string, subjectID uuid.UUID, payerEmail string) (payment.BeginResult, error) {
			return payment.BeginResult{}, service.ErrInvalidStateTransition
		},
	}

	router := setupBookingRouter(&mockBookingService{}, store, payments, &mockNotifier{})
	rr := doAuthRequest(t, router, "POST", "/bookings/"+booking.ID.String()+"/payment", nil, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}
