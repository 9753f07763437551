package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skyspot/skyspot/internal/adsb"
	"github.com/skyspot/skyspot/internal/api"
	"github.com/skyspot/skyspot/internal/config"
	"github.com/skyspot/skyspot/internal/geodesy"
	"github.com/skyspot/skyspot/internal/ptz"
	"github.com/skyspot/skyspot/internal/storage/sqlite"
	"github.com/skyspot/skyspot/internal/tracker"
	"github.com/skyspot/skyspot/internal/websocket"
	"github.com/skyspot/skyspot/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting SkySpot server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create ADS-B components
	decoder := adsb.NewModeSDecoder()

	store, err := adsb.NewStore(
		cfg.ADSB.MaxAircraft,
		time.Duration(cfg.ADSB.MaxAircraftAgeSecs)*time.Second,
		decoder,
		log,
	)
	if err != nil {
		log.Error("Failed to create aircraft store", logger.Error(err))
		os.Exit(1)
	}

	selector := tracker.NewSelector(
		time.Duration(cfg.Tracker.StalenessSecs)*time.Second,
		store.Age,
		log,
	)
	queue := tracker.NewQueue()

	var feedDecoder adsb.Decoder
	if cfg.ADSB.SourceType == string(adsb.SourceRaw) {
		feedDecoder = decoder
	}
	adsbClient, err := adsb.NewClient(adsb.ClientConfig{
		Host:              cfg.ADSB.Host,
		Port:              cfg.ADSB.Port,
		Source:            adsb.SourceType(cfg.ADSB.SourceType),
		DialTimeout:       time.Duration(cfg.ADSB.DialTimeoutSecs) * time.Second,
		ReconnectInterval: time.Duration(cfg.ADSB.ReconnectIntervalSec) * time.Second,
	}, feedDecoder, log)
	if err != nil {
		log.Error("Failed to create ADS-B client", logger.Error(err))
		os.Exit(1)
	}

	// Create SQLite sighting storage
	var sightings *sqlite.SightingStorage
	var recorder adsb.AimRecorder
	if cfg.Storage.Enabled {
		sightings, err = sqlite.NewSightingStorage(cfg.Storage.SQLitePath, log)
		if err != nil {
			log.Error("Failed to create sighting storage", logger.Error(err))
			os.Exit(1)
		}
		defer sightings.Close()
		recorder = sightings
		log.Info("Using SQLite sighting storage", logger.String("path", cfg.Storage.SQLitePath))
	} else {
		log.Info("Sighting storage disabled in configuration")
	}

	// Create WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run(ctx)

	// Create ADS-B service
	observer := geodesy.NewLocation(cfg.Station.Latitude, cfg.Station.Longitude, cfg.Station.ElevationM)
	adsbService := adsb.NewService(
		adsb.ServiceConfig{
			Observer:      observer,
			SweepInterval: time.Duration(cfg.ADSB.SweepIntervalSecs) * time.Second,
		},
		store,
		selector,
		queue,
		adsbClient.Reports(),
		wsServer,
		recorder,
		log,
	)
	adsbService.Start(ctx)

	// Create PTZ mount driver and commander
	var mount *ptz.AlpacaDriver
	if cfg.PTZ.Enabled {
		var declination float64
		if cfg.PTZ.AlignToMagneticNorth {
			declination = geodesy.MagneticDeclination(
				cfg.Station.Latitude,
				cfg.Station.Longitude,
				cfg.Station.ElevationM,
				time.Now(),
			)
			log.Info("Applying magnetic declination correction",
				logger.Float("declination_deg", declination))
		}

		mount = ptz.NewAlpacaDriver(ptz.AlpacaConfig{
			BaseURL:           cfg.PTZ.BaseURL,
			DeviceNumber:      cfg.PTZ.DeviceNumber,
			Timeout:           time.Duration(cfg.PTZ.TimeoutSecs) * time.Second,
			AzimuthOffsetDeg:  cfg.PTZ.AzimuthOffsetDeg,
			AltitudeOffsetDeg: cfg.PTZ.AltitudeOffsetDeg,
			DeclinationDeg:    declination,
		}, log)

		if err := mount.Connect(ctx); err != nil {
			log.Error("Failed to connect to PTZ mount", logger.Error(err))
			os.Exit(1)
		}

		commander := ptz.NewCommander(
			mount,
			queue,
			time.Duration(cfg.PTZ.CommandBackoffSecs)*time.Second,
			log,
		)
		go commander.Run(ctx)
		log.Info("PTZ commander started", logger.String("base_url", cfg.PTZ.BaseURL))
	} else {
		log.Info("PTZ control disabled in configuration")
	}

	// Start consuming the receiver feed
	go adsbClient.Run(ctx)

	// Create API router and HTTP server
	handler := api.NewHandler(adsbService, sightings, wsServer, log)
	router := api.NewRouter(handler, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", addr), logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// Cancel the main context so the client, commander and hub stop
	cancel()

	log.Info("Stopping ADS-B service...")
	adsbService.Stop()
	log.Info("ADS-B service stopped.")

	if mount != nil {
		log.Info("Disconnecting PTZ mount...")
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := mount.Disconnect(disconnectCtx); err != nil {
			log.Error("Error disconnecting PTZ mount", logger.Error(err))
		}
		disconnectCancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
