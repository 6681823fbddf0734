package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"bank-postings/internal/config"
	"bank-postings/internal/domain"
	"bank-postings/internal/handler"
	"bank-postings/internal/lock"
	"bank-postings/internal/logging"
	"bank-postings/internal/repository"
	"bank-postings/internal/repository/memory"
	"bank-postings/internal/service"
)

// Server represents the HTTP server
type Server struct {
	router  *mux.Router
	server  *http.Server
	store   domain.Store
	closers []func() error
	logger  *slog.Logger
	port    string
}

// NewServer creates a new server instance backed by the store cfg selects.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, closers, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := NewServerWithStore(store, clockFor(cfg), logger)
	s.closers = closers
	return s, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (domain.Store, []func() error, error) {
	var store domain.Store
	var closers []func() error

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Info("Using in-memory store")
		store = memory.NewStore()
	default:
		db, err := sql.Open("postgres", cfg.GetDBConnectionString())
		if err != nil {
			return nil, nil, err
		}

		// Configure connection pool for better performance
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Successfully connected to database")

		if cfg.MigrateOnStart {
			if err := repository.Migrate(db, cfg.DBName, logger); err != nil {
				db.Close()
				return nil, nil, err
			}
		}

		store = repository.NewStore(db, logger)
	}
	closers = append(closers, store.Close)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			store.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("Using distributed account lock", "redis_addr", cfg.RedisAddr)

		opts := lock.DefaultOptions()
		opts.Expiry = cfg.LockExpiry
		store = lock.NewStore(store, lock.NewAccountLocker(client, opts, logger))
		closers = append(closers, client.Close)
	}

	return store, closers, nil
}

func clockFor(cfg *config.Config) service.Clock {
	loc := cfg.RiskTimezone
	if loc == nil {
		return time.Now
	}
	return func() time.Time { return time.Now().In(loc) }
}

// NewServerWithStore wires services, handlers and routes over store.
func NewServerWithStore(store domain.Store, clock service.Clock, logger *slog.Logger) *Server {
	riskService := service.NewRiskService(store.Transaction(), logger)
	accountService := service.NewAccountService(store, nil, logger)
	transactionService := service.NewTransactionService(store, riskService, clock, logger)

	accountHandler := handler.NewAccountHandler(accountService, transactionService)
	transactionHandler := handler.NewTransactionHandler(transactionService)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))

	api := router.PathPrefix("/api/v1").Subrouter()

	// Account routes
	api.HandleFunc("/accounts", accountHandler.CreateAccount).Methods("POST")
	api.HandleFunc("/accounts", accountHandler.ListAccounts).Methods("GET")
	api.HandleFunc("/accounts/{id}", accountHandler.GetAccount).Methods("GET")
	api.HandleFunc("/accounts/{id}/status", accountHandler.UpdateStatus).Methods("PATCH")
	api.HandleFunc("/accounts/{id}/transactions", accountHandler.ListAccountTransactions).Methods("GET")

	// Transaction routes; flagged is registered before {id} so it wins
	api.HandleFunc("/transactions", transactionHandler.CreateTransaction).Methods("POST")
	api.HandleFunc("/transactions", transactionHandler.ListTransactions).Methods("GET")
	api.HandleFunc("/transactions/flagged", transactionHandler.ListFlagged).Methods("GET")
	api.HandleFunc("/transactions/{id}", transactionHandler.GetTransaction).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "store unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	return &Server{
		router: router,
		store:  store,
		logger: logger,
	}
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create response wrapper to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	// Create listener first to get actual port
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	return s.port, nil
}

// Stop gracefully shuts down the server, then releases the store.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var shutdownErr error
	if s.server != nil {
		shutdownErr = s.server.Shutdown(ctx)
	}

	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Error("Failed to release resource", "error", err)
		}
	}
	return shutdownErr
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		// Test environment - use discard logger
		logger = logging.Discard()
	} else {
		logger = logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.Stop(context.Background())
		return nil, "", err
	}

	return server, port, nil
}
