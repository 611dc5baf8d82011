package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/huddlehq/huddle/internal/handlers"
	"github.com/huddlehq/huddle/internal/mailer"
	"github.com/huddlehq/huddle/internal/media"
	"github.com/huddlehq/huddle/internal/repository"
	"github.com/huddlehq/huddle/internal/service"
	"github.com/huddlehq/huddle/internal/signaling"
	"github.com/huddlehq/huddle/pkg/config"
	"github.com/huddlehq/huddle/pkg/database"
	"github.com/huddlehq/huddle/pkg/events"
	"github.com/huddlehq/huddle/pkg/logger"
	mw "github.com/huddlehq/huddle/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	if err := database.Migrate(ctx, cfg.Database.URL); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Signaling fanout + hub
	fanout, err := signaling.NewRedisFanout(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer fanout.Close()

	hub := signaling.NewHub(fanout)
	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Signaling hub stopped", "error", err)
			stop()
		}
	}()

	// Mailer worker
	var mailService mailer.Service
	if cfg.Email.DevMode {
		mailService = mailer.NewDevMailer()
	} else {
		mailService = mailer.NewMailer(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
	}
	mailWorker := mailer.NewWorker(eventBus, mailService)
	if err := mailWorker.Start(); err != nil {
		logger.Error("Failed to start mailer worker", "error", err)
		os.Exit(1)
	}

	// Services
	repo := repository.NewMeetingRepository(pool)
	codes := service.NewCodeGenerator(repo)
	minter := media.NewJWTMinter(cfg.Media.TokenSecret)
	admissions := service.NewAdmissionService(repo, hub, minter, eventBus, cfg.Media.TokenTTLSlack)
	meetings := service.NewMeetingService(repo, codes, eventBus)

	reminders := service.NewReminderScheduler(repo, eventBus,
		cfg.Reminder.TickInterval, cfg.Reminder.LeadTime, cfg.Reminder.Window)
	go reminders.Run(ctx)

	// HTTP surface
	ws := signaling.NewServer(hub, admissions)
	h := handlers.New(meetings, admissions, ws, cfg.Auth.JWTSecret, cfg.Media.WebhookSecret)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("huddle"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/meetings", func(r chi.Router) {
		r.Use(h.RequireJWT)
		r.Post("/", h.CreateMeeting)
		r.Post("/instant", h.CreateInstantMeeting)
		r.Get("/", h.ListMeetings)
		r.Post("/join", h.Join)
		r.Post("/admit", h.Admit)
		r.Post("/deny", h.Deny)
		r.Get("/{code}", h.GetMeeting)
		r.Get("/{code}/pending", h.PendingList)
		r.Post("/{code}/waiting-room", h.ToggleWaitingRoom)
		r.Post("/{code}/end", h.EndMeeting)
		r.Post("/{code}/leave", h.LeaveMeeting)
		r.Post("/{code}/rsvp", h.RSVP)
	})
	r.Get("/ws", h.HandleWS)
	r.Post("/webhooks/media", h.MediaWebhook)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting huddle", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
