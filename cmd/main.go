package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"koperasi-backend/internal/clients"
	"koperasi-backend/internal/config"
	"koperasi-backend/internal/gateway"
	"koperasi-backend/internal/repository"
	"koperasi-backend/internal/service"
	"koperasi-backend/internal/transport/auth"
	"koperasi-backend/internal/transport/rest"
	"koperasi-backend/internal/transport/websocket"
	"koperasi-backend/pkg/database/postgres"
	"koperasi-backend/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system env or defaults")
	}

	// top-level context which we can cancel on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.Load()

	zl := logger.New("koperasi-backend")
	defer func() { _ = zl.Sync() }()

	db := mustInitPostgres(cfg.Postgres)
	defer postgres.Close(db)

	redisClient := mustInitRedis(cfg.Redis)
	defer redisClient.Close()

	s3Client, err := clients.NewS3Client(ctx, clients.S3Config{
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Bucket:          cfg.S3.Bucket,
		UseSSL:          cfg.S3.UseSSL,
		Region:          cfg.S3.Region,
		Prefix:          cfg.S3.Prefix,
	})
	if err != nil {
		log.Fatalf("s3 init error: %v", err)
	}

	xenditClient := gateway.NewXenditClient(gateway.XenditConfig{
		BaseURL:       cfg.Xendit.BaseURL,
		SecretKey:     cfg.Xendit.SecretKey,
		CallbackToken: cfg.Xendit.CallbackToken,
	})

	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)
	wsClient := clients.NewWebSocketClient(wsHub)

	memberRepo := repository.NewMemberRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	tokenRepo := repository.NewAPITokenRepository(db)

	settlementSvc := service.NewSettlementService(loanRepo, paymentRepo, wsClient, zl)
	memberSvc := service.NewMemberService(memberRepo, wsClient, zl)
	loanSvc := service.NewLoanService(loanRepo, wsClient, zl)
	paymentSvc := service.NewPaymentService(paymentRepo, loanRepo, settlementSvc, xenditClient, redisClient, wsClient, zl)
	reportSvc := service.NewReportService(loanRepo, paymentRepo, redisClient, s3Client, wsClient, zl)
	searchSvc := service.NewSearchService(loanRepo, memberRepo, zl)
	dashboardSvc := service.NewDashboardService(loanRepo, memberRepo)

	tokenMiddleware := auth.TokenMiddleware(tokenRepo)

	handler := rest.NewHandler(memberSvc, loanSvc, paymentSvc, reportSvc, searchSvc, dashboardSvc, xenditClient)
	router := handler.InitRouterWithAuth(tokenMiddleware)

	// public root router: the gateway webhook and health check must stay
	// reachable without an operator token
	root := handler.InitPublicRouter()

	// protected websocket endpoint
	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		operatorID, err := auth.GetOperatorID(r.Context())
		if err != nil {
			// fallback for tests: allow ?operator_id=1
			operatorIDStr := r.URL.Query().Get("operator_id")
			if operatorIDStr == "" {
				http.Error(w, "operator_id required", http.StatusBadRequest)
				return
			}
			parsed, err2 := strconv.ParseInt(operatorIDStr, 10, 64)
			if err2 != nil {
				http.Error(w, "invalid operator_id", http.StatusBadRequest)
				return
			}
			operatorID = parsed
		}

		log.Printf("WS connected: operator_id=%d", operatorID)
		wsHub.HandleWebSocket(w, r, operatorID)
	})

	// KTP photo upload for loan forms (protected)
	router.Post("/files/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil { // 10 MB
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer file.Close()

		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(file); err != nil {
			http.Error(w, "failed to read file", http.StatusInternalServerError)
			return
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		name := uuid.NewString() + filepath.Ext(header.Filename)

		key, err := s3Client.UploadImage(r.Context(), name, contentType, buf.Bytes())
		if err != nil {
			log.Printf("KTP upload error: %v", err)
			http.Error(w, "failed to save file", http.StatusInternalServerError)
			return
		}

		url, err := s3Client.GetTemporaryURL(r.Context(), key, 24*time.Hour)
		if err != nil {
			log.Printf("KTP presign error: %v", err)
			http.Error(w, "failed to save file", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"url":%q,"key":%q}`, url, key)))
	})

	// presign stored KTP photos on demand (protected)
	router.Get("/files/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if key == "" {
			http.Error(w, "key required", http.StatusBadRequest)
			return
		}

		url, err := s3Client.GetTemporaryURL(r.Context(), key, time.Hour)
		if err != nil {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
	})

	// mount protected router on root
	root.Mount("/", router)

	corsHandler := withCORS(root)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run HTTP server in goroutine so we can listen for shutdown signals
	srvErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%s\n", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	// background sweep that flips active loans past their due date to overdue
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := loanSvc.MarkOverdueLoans(ctx); err != nil {
					zl.Error("overdue sweep failed", zap.Error(err))
				}
			}
		}
	}()

	// Listen for OS shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("Shutdown signal received: %v", sig)

		// Give server up to 10 seconds to finish ongoing requests
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server Shutdown error: %v", err)
		}

		// Cancel top-level context so background services (websocket hub) stop
		cancel()

		// Close database & redis explicitly to free resources promptly
		postgres.Close(db)
		redisClient.Close()

		log.Println("Shutdown complete")
	}
}

func mustInitPostgres(cfg config.PostgresConfig) *sql.DB {
	db, err := postgres.NewPostgresConnection(postgres.ConnectionInfo{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Username:     cfg.User,
		DBName:       cfg.DBName,
		SSLMode:      cfg.SSLMode,
		Password:     cfg.Password,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		log.Fatalf("postgres init error: %v", err)
	}
	return db
}

func mustInitRedis(cfg config.RedisConfig) *clients.RedisClient {
	client, err := clients.NewRedisClient(clients.RedisConfig{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeout) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		Prefix:      cfg.Prefix,
	})
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}
	return client
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
