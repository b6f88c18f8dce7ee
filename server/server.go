package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/cache"
	"github.com/earchibald/yoto-smart-stream-sub004/config"
	"github.com/earchibald/yoto-smart-stream-sub004/core/auth"
	"github.com/earchibald/yoto-smart-stream-sub004/core/ingest"
	"github.com/earchibald/yoto-smart-stream-sub004/core/mqtt"
	"github.com/earchibald/yoto-smart-stream-sub004/core/push"
	"github.com/earchibald/yoto-smart-stream-sub004/core/yoto"
	"github.com/earchibald/yoto-smart-stream-sub004/db"
	"github.com/earchibald/yoto-smart-stream-sub004/logger"
	"github.com/earchibald/yoto-smart-stream-sub004/model"
	"github.com/earchibald/yoto-smart-stream-sub004/repository"
	"github.com/earchibald/yoto-smart-stream-sub004/storage"

	"github.com/gorilla/mux"
)

// ingestOwnerID owns tracks dropped into the local inbox directory. The
// inbox belongs to the deployment, not to a dashboard account.
const ingestOwnerID = 1

// Start initializes all backend components and runs the HTTP server until
// an interrupt arrives.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})
	auth.SetSecret(cfg.JWTSecret)

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("failed to initialize MinIO", logger.ErrorField(err))
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("failed to initialize database schema", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect GORM database", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.Device{}); err != nil {
		logger.Fatal("failed to migrate device registry", logger.ErrorField(err))
	}

	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	trackRepo := repository.NewMySQLTrackRepository()
	userRepo := repository.NewMySQLUserRepository(db.DB)
	deviceRepo := repository.NewGormDeviceRepository()
	deviceStore := cache.NewDeviceCache()

	hub := push.NewHub()
	go hub.Run()
	defer hub.Stop()

	yotoClient := yoto.NewClient(cfg)

	poller := NewStatusPoller(yotoClient, deviceStore, deviceRepo, hub, cfg.PlayerPollInterval)
	poller.Start()
	defer poller.Stop()

	// The MQTT bridge is optional; device state still flows via polling.
	if cfg.MQTTEnabled {
		bridge := mqtt.NewBridge(cfg, deviceStore, hub)
		if err := bridge.Start(); err != nil {
			logger.Warn("mqtt bridge unavailable, continuing without it", logger.ErrorField(err))
		} else {
			defer bridge.Stop()
		}
	}

	if cfg.AudioInboxDir != "" {
		watcher, err := ingest.NewWatcher(cfg.AudioInboxDir, ingestOwnerID, trackRepo)
		if err != nil {
			logger.Warn("failed to create inbox watcher", logger.ErrorField(err))
		} else if err := watcher.Start(); err != nil {
			logger.Warn("failed to start inbox watcher", logger.ErrorField(err))
		} else {
			defer watcher.Stop()
		}
	}

	apiHandler := NewAPIHandler(trackRepo, userRepo, deviceRepo, deviceStore, yotoClient, yotoClient, hub, cfg)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Player status and control.
	router.HandleFunc("/api/players", apiHandler.GetPlayersHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/players/{id}/control", apiHandler.AuthMiddleware(apiHandler.ControlPlayerHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/players/{id}/queue", apiHandler.AuthMiddleware(apiHandler.QueueHandler)).
		Methods(http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)

	// Content card library.
	router.HandleFunc("/api/cards", apiHandler.AuthMiddleware(apiHandler.GetCardsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/cards/{id}", apiHandler.AuthMiddleware(apiHandler.GetCardHandler)).Methods(http.MethodGet)

	// Device registry.
	router.HandleFunc("/api/devices", apiHandler.AuthMiddleware(apiHandler.GetDevicesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/devices/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteDeviceHandler)).Methods(http.MethodDelete)

	// Audio library.
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/stream", apiHandler.AuthMiddleware(apiHandler.TrackStreamURLHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteTrackHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/upload", apiHandler.AuthMiddleware(apiHandler.UploadTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/upload/cover", apiHandler.AuthMiddleware(apiHandler.UploadCoverHandler)).Methods(http.MethodPost)

	// Auth.
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)

	// Realtime push.
	router.HandleFunc("/api/ws", apiHandler.WSHandler).Methods(http.MethodGet)

	// Stored objects (cover art) served directly from MinIO.
	router.PathPrefix("/static/").HandlerFunc(apiHandler.StaticObjectHandler).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("server stopped")
}

// corsMiddleware allows cross-origin requests from the dashboard.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
