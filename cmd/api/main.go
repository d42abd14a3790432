package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/AFixt/meetabl-api/internal/availability"
	"github.com/AFixt/meetabl-api/internal/booking"
	"github.com/AFixt/meetabl-api/internal/cache"
	"github.com/AFixt/meetabl-api/internal/calendar"
	apihttp "github.com/AFixt/meetabl-api/internal/http"
	"github.com/AFixt/meetabl-api/internal/mailer"
	"github.com/AFixt/meetabl-api/internal/notifier"
	"github.com/AFixt/meetabl-api/internal/payments"
	"github.com/AFixt/meetabl-api/internal/reminder"
	"github.com/AFixt/meetabl-api/internal/repository"
	"github.com/AFixt/meetabl-api/pkg/config"
	"github.com/AFixt/meetabl-api/pkg/database"
	"github.com/AFixt/meetabl-api/pkg/events"
	"github.com/AFixt/meetabl-api/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, slot cache disabled", "error", err)
			redisClient = nil
		}
	}

	var bus events.Publisher
	if cfg.NATS.URL != "" {
		natsBus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Warn("nats unreachable, events disabled", "error", err)
		} else {
			defer natsBus.Close()
			bus = natsBus
		}
	}

	users := repository.NewUserRepository(pool)
	rules := repository.NewRuleRepository(pool)
	bookings := repository.NewBookingRepository(pool)
	notifications := repository.NewNotificationRepository(pool)

	calendars := calendar.NewSelector(cfg.Calendar)
	slotCache := cache.NewSlotCache(redisClient, cfg.Scheduling.SlotCacheTTL)
	engine := availability.NewEngine(users, rules, bookings, calendars, slotCache)

	payClient := payments.NewClient(cfg.Stripe)
	reminders := reminder.NewScheduler(notifications)
	bookingSvc := booking.NewService(bookings, users, rules, engine, reminders, payClient, calendars, bus, cfg.Scheduling)

	deliverer := notifier.NewDeliverer(mailer.FromConfig(cfg.Email), notifier.DevSMS{})
	processor := notifier.NewProcessor(notifications, bookings, users, deliverer, bus, cfg.Notification)

	router := apihttp.NewRouter(apihttp.Deps{
		Users:         users,
		Rules:         rules,
		Bookings:      bookings,
		Notifications: notifications,
		Engine:        engine,
		BookingSvc:    bookingSvc,
		Processor:     processor,
		Payments:      payClient,
		Config:        cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("meetabl api listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := processor.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
