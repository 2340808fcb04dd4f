package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgeup/edgeup-backend/api/controllers"
	"github.com/edgeup/edgeup-backend/api/middleware"
	"github.com/edgeup/edgeup-backend/internal/auth"
	"github.com/edgeup/edgeup-backend/internal/events"
	"github.com/edgeup/edgeup-backend/internal/favorites"
	"github.com/edgeup/edgeup-backend/internal/messaging"
	"github.com/edgeup/edgeup-backend/internal/negotiations"
	"github.com/edgeup/edgeup-backend/internal/notifications"
	"github.com/edgeup/edgeup-backend/internal/orders"
	"github.com/edgeup/edgeup-backend/internal/products"
	"github.com/edgeup/edgeup-backend/internal/reviews"
	"github.com/edgeup/edgeup-backend/internal/trusted"
	"github.com/edgeup/edgeup-backend/internal/users"
	"github.com/edgeup/edgeup-backend/pkg/auth/session"
	"github.com/edgeup/edgeup-backend/pkg/config"
	"github.com/edgeup/edgeup-backend/pkg/logger"
	"github.com/edgeup/edgeup-backend/pkg/metrics"
	"github.com/edgeup/edgeup-backend/pkg/redis"
)

// Deps bundles everything the router mounts.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DBPinger       controllers.Pinger
	RedisClient    *redis.Client
	SessionManager session.AccessSessionChecker
	Hub            *events.Hub

	Auth          auth.Service
	Users         users.Service
	Products      products.Service
	Favorites     favorites.Service
	Negotiations  negotiations.Service
	Orders        orders.Service
	Reviews       reviews.Service
	Notifications notifications.Service
	Messaging     messaging.Service
	Trusted       trusted.Service

	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)
	if d.HTTPMetrics != nil {
		r.Use(d.HTTPMetrics.Middleware())
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.DBPinger, d.RedisClient))
	})

	if d.HTTPMetrics != nil {
		r.Method(http.MethodGet, "/metrics", d.HTTPMetrics.Handler())
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, d.RedisClient, logg)).Post("/register", controllers.AuthRegister(d.Auth, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, d.RedisClient, logg)).Post("/login", controllers.AuthLogin(d.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(d.Auth, logg))
		r.With(middleware.Auth(cfg.JWT, d.SessionManager, logg)).Post("/logout", controllers.AuthLogout(d.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.SessionManager, logg))

		r.Get("/ping", controllers.PrivatePing())
		r.Get("/events", controllers.EventsStream(d.Hub, cfg.Events.HeartbeatInterval, logg))

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", controllers.UserMe(d.Users, logg))
			r.Patch("/me", controllers.UserUpdateMe(d.Users, logg))
			r.Get("/{userId}", controllers.UserPublicProfile(d.Users, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductSearch(d.Products, logg))
			r.Post("/", controllers.ProductCreate(d.Products, logg))
			r.Get("/categories", controllers.ProductCategories(d.Products, logg))
			r.Get("/{productId}", controllers.ProductGet(d.Products, logg))
			r.Patch("/{productId}", controllers.ProductUpdate(d.Products, logg))
			r.Delete("/{productId}", controllers.ProductArchive(d.Products, logg))
			r.Get("/{productId}/reviews", controllers.ReviewListForProduct(d.Reviews, logg))
		})

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", controllers.FavoriteList(d.Favorites, logg))
			r.Post("/{productId}", controllers.FavoriteAdd(d.Favorites, logg))
			r.Delete("/{productId}", controllers.FavoriteRemove(d.Favorites, logg))
		})

		r.Post("/negotiations", controllers.NegotiationCreate(d.Negotiations, logg))
		r.Get("/negotiations/list", controllers.NegotiationList(d.Negotiations, logg))
		r.Get("/negotiation", controllers.NegotiationLookup(d.Negotiations, logg))
		r.Patch("/negotiations/{negotiationId}/accept", controllers.NegotiationAccept(d.Negotiations, logg))
		r.Patch("/negotiations/{negotiationId}/decline", controllers.NegotiationDecline(d.Negotiations, logg))

		r.Post("/order", controllers.OrderCreate(d.Orders, logg))
		r.Route("/orders", func(r chi.Router) {
			r.Get("/buying", controllers.OrderListBuying(d.Orders, logg))
			r.Get("/selling", controllers.OrderListSelling(d.Orders, logg))
			r.Get("/{orderId}", controllers.OrderGet(d.Orders, logg))
			r.Patch("/{orderId}/status", controllers.OrderUpdateStatus(d.Orders, logg))
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Post("/", controllers.ReviewCreate(d.Reviews, logg))
			r.Patch("/{reviewId}", controllers.ReviewUpdate(d.Reviews, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.NotificationList(d.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.NotificationMarkRead(d.Notifications, logg))
			r.Post("/read-all", controllers.NotificationMarkAllRead(d.Notifications, logg))
			r.Delete("/{notificationId}", controllers.NotificationDelete(d.Notifications, logg))
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", controllers.ConversationList(d.Messaging, logg))
			r.Get("/{conversationId}/messages", controllers.ConversationMessages(d.Messaging, logg))
		})
		r.Post("/messages", controllers.MessageSend(d.Messaging, logg))

		r.Post("/trusted/apply", controllers.TrustedApply(d.Trusted, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.SessionManager, logg))
		r.Use(middleware.RequireRole("admin", logg))

		r.Route("/trusted", func(r chi.Router) {
			r.Get("/requests", controllers.TrustedListPending(d.Trusted, logg))
			r.Post("/requests/{requestId}/approve", controllers.TrustedApprove(d.Trusted, logg))
			r.Post("/requests/{requestId}/reject", controllers.TrustedReject(d.Trusted, logg))
		})
	})

	return r
}
