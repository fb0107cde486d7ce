package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kainan-app/api/internal/config"
	"github.com/kainan-app/api/internal/database"
	"github.com/kainan-app/api/internal/enum"
	"github.com/kainan-app/api/internal/handler"
	mw "github.com/kainan-app/api/internal/middleware"
	"github.com/kainan-app/api/internal/payment"
	"github.com/kainan-app/api/internal/pricing"
	"github.com/kainan-app/api/internal/service"
	"github.com/kainan-app/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and staff-role middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",     // SvelteKit dev server
			"https://app.kainan.ph",     // Production storefront
			"https://kitchen.kainan.ph", // Staff kitchen display
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	engine := pricing.NewEngine(cfg.TaxRate)

	orderService := service.NewOrderService(
		pool,
		queries,
		func(db database.DBTX) service.OrderStore {
			return database.New(db)
		},
		engine,
	)
	bookingService := service.NewBookingService(queries, cfg.ReservationFee)

	gateway := payment.NewClient(cfg.PaymentAPIURL, cfg.PaymentSecretKey, cfg.PaymentTimeout)
	reconciler := payment.NewReconciler(gateway, "PHP")
	reconciler.Register(enum.SubjectTypeOrder, orderService)
	reconciler.Register(enum.SubjectTypeBooking, bookingService)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// Menu reads (public; claims are attached when present so staff can
	// request the full catalog with ?all=1)
	menuHandler := handler.NewMenuHandler(queries)
	r.Group(func(r chi.Router) {
		r.Use(mw.MaybeAuthenticate(cfg.JWTSecret))
		menuHandler.RegisterRoutes(r)
	})

	// Gateway webhook (public, HMAC-authenticated)
	paymentHandler := handler.NewPaymentHandler(reconciler, queries, cfg.PaymentWebhookSecret, hub)
	paymentHandler.RegisterWebhookRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		cartHandler := handler.NewCartHandler(queries, engine)
		cartHandler.RegisterRoutes(r)

		orderHandler := handler.NewOrderHandler(orderService, queries, reconciler, hub)
		orderHandler.RegisterRoutes(r)

		bookingHandler := handler.NewBookingHandler(bookingService, queries, reconciler, hub)
		bookingHandler.RegisterRoutes(r)

		paymentHandler.RegisterRoutes(r)

		// Staff-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireStaff)
			menuHandler.RegisterStaffRoutes(r)
			bookingHandler.RegisterStaffRoutes(r)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
