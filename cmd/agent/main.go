package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/tracklog-agent/internal/history"
	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/benmeehan/tracklog-agent/internal/sensor"
	"github.com/benmeehan/tracklog-agent/internal/service_registry"
	"github.com/benmeehan/tracklog-agent/internal/utils"
	"github.com/benmeehan/tracklog-agent/pkg/file"
	"github.com/benmeehan/tracklog-agent/pkg/identity"
	"github.com/benmeehan/tracklog-agent/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Set up structured logging with JSON output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Logger = logger

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(config.Logging.Level)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid log level in configuration")
	}
	logger = logger.Level(level)

	// Load the persistent tracker identity
	trackerInfo := identity.NewTrackerInfo(config.Identity.TrackerFile, fileClient)
	if err := trackerInfo.Load(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load tracker identity")
	}
	logger = logger.With().Str("tracker_id", trackerInfo.GetTrackerID()).Logger()

	// Open the history store and run pending migrations
	store, err := history.NewStore(config.History.DatabaseFile, config.History.RangeFetchCap, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open history store")
	}
	defer store.Close()

	// Build the configured fix source
	source, err := buildSource(config, fileClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build sensor source")
	}

	// Dedicated tracker hardware has no permission dialog; location access
	// is always granted.
	authorizer := sensor.NewStaticAuthorizer(models.AuthorizationAlways)

	// Background pool for retention purges
	pool := utils.NewWorkerPool(1, 4)
	defer pool.Shutdown()

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(source, authorizer, store, pool, logger)

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Errors during service shutdown")
	}
}

// buildSource constructs the fix source named in the configuration.
func buildSource(config *utils.Config, fileClient file.FileOperations, logger zerolog.Logger) (sensor.Source, error) {
	switch config.Sensor.Source {
	case "nmea":
		return sensor.NewNMEASource(config.Sensor.NMEA.Port, config.Sensor.NMEA.BaudRate, logger), nil
	case "mqtt":
		// Generate a unique MQTT Client ID by appending a UUID
		clientID := config.Sensor.MQTT.ClientID + "-" + uuid.New().String()
		logger.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

		mqttClient := mqtt.NewMqttService(fileClient)
		if err := mqttClient.Initialize(config.Sensor.MQTT.Broker, clientID, config.Sensor.MQTT.CACertificate); err != nil {
			return nil, fmt.Errorf("failed to initialize MQTT connection: %w", err)
		}
		return sensor.NewMQTTSource(mqttClient, config.Sensor.MQTT.Topic, byte(config.Sensor.MQTT.QOS), logger), nil
	case "geolocation":
		return sensor.NewGeolocationSource(
			config.Sensor.Geolocation.MapsAPIKey,
			config.Sensor.Geolocation.PollInterval,
			config.Sensor.Geolocation.ModemIndex,
			logger,
		)
	default:
		return nil, fmt.Errorf("unknown sensor source %q", config.Sensor.Source)
	}
}
