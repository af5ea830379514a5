package myhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ride-dispatch/internal/config"
	"ride-dispatch/internal/dispatch/adapters/driven/bm"
	"ride-dispatch/internal/dispatch/adapters/driven/db"
	"ride-dispatch/internal/dispatch/adapters/driven/geocache"
	"ride-dispatch/internal/dispatch/adapters/driven/images"
	"ride-dispatch/internal/dispatch/adapters/driver/myhttp/handle"
	"ride-dispatch/internal/dispatch/adapters/driver/myhttp/middleware"
	"ride-dispatch/internal/dispatch/adapters/driver/myhttp/ws"
	"ride-dispatch/internal/dispatch/core/domain/model"
	"ride-dispatch/internal/dispatch/core/ports"
	"ride-dispatch/internal/dispatch/core/services"
	"ride-dispatch/internal/mylogger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const WaitTime = 10

type Server struct {
	mux    *http.ServeMux
	cfg    *config.Config
	srv    *http.Server
	mylog  mylogger.Logger
	db     *db.DB
	mb     *bm.RabbitMQ
	ctx    context.Context
	appCtx context.Context
	mu     sync.Mutex
	wg     sync.WaitGroup
}

func NewServer(ctx, appCtx context.Context, mylog mylogger.Logger, cfg *config.Config) *Server {
	s := &Server{
		ctx:    ctx,
		appCtx: appCtx,
		cfg:    cfg,
		mylog:  mylog,
		mux:    http.NewServeMux(),
	}

	return s
}

// Run initializes routes and starts listening. It returns when the server stops.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_started")

	// Initialize database connection
	db, err := db.New(s.ctx, s.cfg.DB, mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db
	mylog.Info("Successful database connection")

	// Initialize RabbitMQ connection
	mb, err := bm.New(s.appCtx, *s.cfg.RabbitMq, s.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	s.mb = mb
	mylog.Info("Successful message broker connection")

	// Configure routes and handlers
	if err := s.Configure(); err != nil {
		return fmt.Errorf("failed to configure server: %w", err)
	}

	s.mu.Lock()
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%v", s.cfg.Srv.DispatchServicePort),
		Handler: s.mux,
	}
	s.mu.Unlock()

	mylog = mylog.WithGroup("details").With("port", s.cfg.Srv.DispatchServicePort)

	mylog.Info("server is running")
	return s.startHTTPServer()
}

// Stop provides a programmatic shutdown. Accepts a context for timeout control.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Info("Shutting down HTTP server...")

	s.wg.Wait()

	if s.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, WaitTime*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.mylog.Error("Failed to shut down HTTP server gracefully", err)
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}

	if s.mb != nil {
		if err := s.mb.Close(); err != nil {
			s.mylog.Error("Failed to close message broker", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.mylog.Error("Failed to close database", err)
			return fmt.Errorf("db close: %w", err)
		}
		s.mylog.Info("Database closed")
	}

	s.mylog.Info("HTTP server shut down gracefully")
	return nil
}

func (s *Server) startHTTPServer() error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-s.ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Configure wires repositories, services and handlers and registers routes.
func (s *Server) Configure() error {
	// Repositories
	userRepo := db.NewUserRepo(s.db)
	presenceRepo := db.NewPresenceRepo(s.db)
	requestRepo := db.NewRequestRepo(s.db)
	bookingRepo := db.NewBookingRepo(s.db)

	imageStore, err := images.New(*s.cfg.Images)
	if err != nil {
		return fmt.Errorf("image store: %w", err)
	}

	// The geo index is an optional prefilter; without Redis the finder
	// falls back to scanning the Postgres snapshot.
	var geoIndex ports.IGeoIndex
	if s.cfg.Redis.Enabled {
		geoIndex = geocache.New(*s.cfg.Redis)
		s.mylog.Info("redis geo prefilter enabled")
	}

	// services
	presenceService := services.NewPresenceService(s.appCtx, s.mylog, userRepo, presenceRepo, geoIndex)
	finderService := services.NewFinderService(s.appCtx, s.mylog, presenceRepo, s.mb, geoIndex)
	requestService := services.NewRequestService(s.appCtx, s.mylog, userRepo, userRepo, requestRepo, presenceRepo, s.mb, imageStore)
	bookingService := services.NewBookingService(s.appCtx, s.mylog, requestRepo, bookingRepo, presenceRepo, s.mb, imageStore)
	redispatchService := services.NewRedispatchService(s.appCtx, s.mylog, userRepo, userRepo, requestRepo, bookingRepo, presenceRepo, s.mb, imageStore)

	// handlers
	presenceHandler := handle.NewPresenceHandler(presenceService, s.mylog)
	finderHandler := handle.NewFinderHandler(finderService, s.mylog)
	requestHandler := handle.NewRequestHandler(requestService, redispatchService, s.mylog)
	bookingHandler := handle.NewBookingHandler(bookingService, s.mylog)

	authMiddleware := middleware.NewAuthMiddleware(s.cfg.Auth.PublicJwtSecret)

	// websocket fanout
	dispatcher := ws.NewDispatcher(s.mylog, s.cfg.Auth.PublicJwtSecret)
	consumer := ws.NewConsumer(s.appCtx, s.mb, dispatcher, s.mylog)
	if err := consumer.SubscribeForMessages(); err != nil {
		return fmt.Errorf("ws consumer: %w", err)
	}

	// Register routes
	s.mux.Handle("POST /drivers/{driver_id}/location", authMiddleware.Wrap(presenceHandler.SetLocation(), model.RoleDriver))
	s.mux.Handle("POST /drivers/{driver_id}/online", authMiddleware.Wrap(presenceHandler.SetOnline(), model.RoleDriver))
	s.mux.Handle("POST /drivers/{driver_id}/offline", authMiddleware.Wrap(presenceHandler.SetOffline(), model.RoleDriver))

	s.mux.Handle("POST /candidates/search", authMiddleware.Wrap(finderHandler.Search(), model.RoleCustomer))

	s.mux.Handle("POST /requests", authMiddleware.Wrap(requestHandler.Create(), model.RoleCustomer))
	s.mux.Handle("POST /requests/{request_id}/complete", authMiddleware.Wrap(requestHandler.Complete(), model.RoleCustomer))
	s.mux.Handle("POST /requests/{request_id}/cancel", authMiddleware.Wrap(requestHandler.Cancel(), model.RoleCustomer))
	s.mux.Handle("POST /requests/{request_id}/redispatch", authMiddleware.Wrap(requestHandler.Redispatch(), model.RoleCustomer))

	s.mux.Handle("POST /bookings", authMiddleware.Wrap(bookingHandler.Create(), model.RoleDriver))
	s.mux.Handle("PATCH /bookings/{booking_id}/status", authMiddleware.Wrap(bookingHandler.ChangeStatus(), model.RoleDriver))
	s.mux.Handle("POST /bookings/{booking_id}/cancel", authMiddleware.Wrap(bookingHandler.Cancel(), model.RoleCustomer, model.RoleDriver))

	s.mux.Handle("POST /admin/drivers/offline-sweep", authMiddleware.Wrap(presenceHandler.OfflineSweep(), "ADMIN"))

	s.mux.Handle("GET /metrics", promhttp.Handler())

	// websocket routes
	s.mux.Handle("/ws/{role}/{user_id}", dispatcher.WsHandler())

	return nil
}
