package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/AFixt/meetabl-api/internal/availability"
	"github.com/AFixt/meetabl-api/internal/booking"
	"github.com/AFixt/meetabl-api/internal/http/handlers"
	"github.com/AFixt/meetabl-api/internal/http/middleware"
	"github.com/AFixt/meetabl-api/internal/notifier"
	"github.com/AFixt/meetabl-api/internal/payments"
	"github.com/AFixt/meetabl-api/internal/repository"
	"github.com/AFixt/meetabl-api/pkg/config"
	mw "github.com/AFixt/meetabl-api/pkg/middleware"
)

// Deps collects everything the router wires into handlers.
type Deps struct {
	Users         repository.UserRepository
	Rules         repository.RuleRepository
	Bookings      repository.BookingRepository
	Notifications repository.NotificationRepository
	Engine        *availability.Engine
	BookingSvc    *booking.Service
	Processor     *notifier.Processor
	Payments      *payments.Client
	Config        *config.Config
}

// NewRouter assembles the HTTP surface. Public routes: auth, slot listing,
// booking create/manage, webhooks. Host routes sit behind JWT auth.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("meetabl-api"))
	r.Use(mw.Logging)
	r.Use(mw.Recover)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", "*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(mw.Health)

	authHandler := handlers.NewAuthHandler(d.Users, d.Config.Auth)
	rulesHandler := handlers.NewRulesHandler(d.Rules, d.Engine)
	slotsHandler := handlers.NewSlotsHandler(d.Engine)
	bookingsHandler := handlers.NewBookingsHandler(d.BookingSvc)
	notificationsHandler := handlers.NewNotificationsHandler(d.Notifications, d.Bookings, d.Processor)
	webhookHandler := handlers.NewWebhookHandler(d.Payments, d.BookingSvc)

	requireJWT := middleware.RequireJWT(d.Config.Auth.JWTSecret)

	r.Route("/v1", func(r chi.Router) {
		r.Mount("/auth", authHandler.Routes())
		r.Mount("/hosts/{hostID}/slots", slotsHandler.Routes())
		r.Mount("/bookings", bookingsHandler.Routes())
		r.Mount("/webhooks", webhookHandler.Routes())

		r.Route("/me", func(r chi.Router) {
			r.Use(requireJWT)
			r.Mount("/", authHandler.ProtectedRoutes())
			r.Mount("/rules", rulesHandler.Routes())
			r.Mount("/bookings", bookingsHandler.HostRoutes())
			r.Mount("/notifications", notificationsHandler.Routes())
		})
	})

	return r
}
