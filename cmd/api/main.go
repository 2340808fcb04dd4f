package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/edgeup/edgeup-backend/api/routes"
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
	"github.com/edgeup/edgeup-backend/pkg/db"
	"github.com/edgeup/edgeup-backend/pkg/logger"
	"github.com/edgeup/edgeup-backend/pkg/metrics"
	"github.com/edgeup/edgeup-backend/pkg/migrate"
	"github.com/edgeup/edgeup-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	usersRepo := users.NewRepository(gormDB)
	productsRepo := products.NewRepository(gormDB)
	favoritesRepo := favorites.NewRepository(gormDB)
	negotiationsRepo := negotiations.NewRepository(gormDB)
	ordersRepo := orders.NewRepository(gormDB)
	reviewsRepo := reviews.NewRepository(gormDB)
	notificationsRepo := notifications.NewRepository(gormDB)
	messagingRepo := messaging.NewRepository(gormDB)
	trustedRepo := trusted.NewRepository(gormDB)

	hub := events.NewHub(cfg.Events.ClientBuffer)
	dispatcher, err := notifications.NewDispatcher(notificationsRepo, hub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(usersRepo, sessionManager, cfg.JWT, cfg.Password)
	exitOnServiceError(logg, "auth", err)
	usersService, err := users.NewService(usersRepo)
	exitOnServiceError(logg, "users", err)
	productsService, err := products.NewService(productsRepo)
	exitOnServiceError(logg, "products", err)
	favoritesService, err := favorites.NewService(favoritesRepo, productsRepo)
	exitOnServiceError(logg, "favorites", err)
	negotiationsService, err := negotiations.NewService(negotiationsRepo, productsRepo, dispatcher, dbClient)
	exitOnServiceError(logg, "negotiations", err)
	ordersService, err := orders.NewService(ordersRepo, productsRepo, negotiationsRepo, usersRepo, dispatcher, dbClient)
	exitOnServiceError(logg, "orders", err)
	reviewsService, err := reviews.NewService(reviewsRepo, productsRepo, usersRepo, dispatcher, dbClient)
	exitOnServiceError(logg, "reviews", err)
	notificationsService, err := notifications.NewService(notificationsRepo)
	exitOnServiceError(logg, "notifications", err)
	messagingService, err := messaging.NewService(messagingRepo, usersRepo, dbClient)
	exitOnServiceError(logg, "messaging", err)
	trustedService, err := trusted.NewService(trustedRepo, usersRepo, dispatcher, dbClient)
	exitOnServiceError(logg, "trusted", err)

	httpMetrics := metrics.NewHTTPMetrics()

	router := routes.NewRouter(routes.Deps{
		Config:         cfg,
		Logger:         logg,
		DBPinger:       dbClient,
		RedisClient:    redisClient,
		SessionManager: sessionManager,
		Hub:            hub,
		Auth:           authService,
		Users:          usersService,
		Products:       productsService,
		Favorites:      favoritesService,
		Negotiations:   negotiationsService,
		Orders:         ordersService,
		Reviews:        reviewsService,
		Notifications:  notificationsService,
		Messaging:      messagingService,
		Trusted:        trustedService,
		HTTPMetrics:    httpMetrics,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-stop:
		sigCtx := logg.WithField(ctx, "signal", sig.String())
		logg.Info(sigCtx, "shutting down api server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}
}

func exitOnServiceError(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	ctx := logg.WithField(context.Background(), "service", name)
	logg.Error(ctx, "failed to create service", err)
	os.Exit(1)
}
