package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kainan-app/api/internal/config"
	"github.com/kainan-app/api/internal/database"
	"github.com/kainan-app/api/internal/router"
	"github.com/kainan-app/api/internal/service"
	"github.com/kainan-app/api/internal/ws"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	queries := database.New(pool)

	hub := ws.NewHub()
	go hub.Run()

	// Expire settled bookings whose time has passed.
	bookingService := service.NewBookingService(queries, cfg.ReservationFee)
	go runBookingSweep(ctx, bookingService, cfg.BookingSweepInterval)

	r := router.New(cfg, queries, pool, hub)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: shutdown: %v", err)
	}
}

func runBookingSweep(ctx context.Context, svc *service.BookingService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := svc.SweepPastBookings(ctx)
			if err != nil {
				log.Printf("ERROR: booking sweep: %v", err)
				continue
			}
			if len(swept) > 0 {
				log.Printf("Booking sweep marked %d reservations as past", len(swept))
			}
		}
	}
}
