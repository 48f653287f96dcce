package main

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"

	"github.com/libreserve/library-seat-reservation/internal/config"
	"github.com/libreserve/library-seat-reservation/internal/database"
	"github.com/libreserve/library-seat-reservation/internal/handler"
	"github.com/libreserve/library-seat-reservation/internal/hub"
	"github.com/libreserve/library-seat-reservation/internal/middleware"
	"github.com/libreserve/library-seat-reservation/internal/queue"
	"github.com/libreserve/library-seat-reservation/internal/repository"
	"github.com/libreserve/library-seat-reservation/internal/router"
	"github.com/libreserve/library-seat-reservation/internal/service"
	"github.com/libreserve/library-seat-reservation/internal/store"
)

func main() {
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: nil disables rate limiting and caching.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Print("redis unavailable, rate limiting and response cache disabled")
	}

	reservationRepo := repository.NewReservationRepo(db)
	seatRepo := repository.NewSeatRepo(db)
	slotRepo := repository.NewTimeSlotRepo(db)

	// The hub broadcasts hold-store expirations, so the store's
	// release callback points back at the hub.
	h := hub.New(reservationRepo)
	holdStore := store.NewMemoryHoldStore(cfg.HoldTTL, h.BroadcastReleased)
	h.SetHoldStore(holdStore)
	defer func() {
		h.Close()
		holdStore.Close()
	}()

	publisher := service.NewAMQPPublisher()
	resHandler := handler.NewReservationHandler(reservationRepo, seatRepo, slotRepo, holdStore, h, publisher)
	pubHandler := &handler.PublicHandler{Seats: seatRepo, Slots: slotRepo}
	wsHandler := &handler.WSHandler{Hub: h}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go service.StartCompletionSweep(ctx, reservationRepo, cfg.SweepInterval)
	if cfg.ConsumerEnabled {
		go queue.StartReservationConsumer()
	}

	e := echo.New()
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterRoutes(e, wsHandler, pubHandler, resHandler, rdb)
	router.RegisterReservations(e, resHandler, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, hold ttl=%s)", addr, cfg.Env, cfg.HoldTTL)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
