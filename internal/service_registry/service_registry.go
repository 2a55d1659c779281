package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/tracklog-agent/internal/admission"
	"github.com/benmeehan/tracklog-agent/internal/history"
	"github.com/benmeehan/tracklog-agent/internal/sensor"
	"github.com/benmeehan/tracklog-agent/internal/services"
	"github.com/benmeehan/tracklog-agent/internal/utils"
	"github.com/benmeehan/tracklog-agent/internal/velocity"
	"github.com/rs/zerolog"
)

// Service is the lifecycle contract every registered service implements.
type Service interface {
	Start() error
	Stop() error
}

// ServiceRegistry manages the lifecycle of the agent's services.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration

	source     sensor.Source
	authorizer sensor.Authorizer
	store      *history.Store
	pool       *utils.WorkerPool
	Logger     zerolog.Logger

	// Tracking is the tracking controller once registered, exposed so the
	// process can serve snapshot and purge requests.
	Tracking *services.TrackingService
}

// NewServiceRegistry initializes a new service registry with shared
// dependencies.
func NewServiceRegistry(source sensor.Source, authorizer sensor.Authorizer, store *history.Store,
	pool *utils.WorkerPool, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]Service),
		source:     source,
		authorizer: authorizer,
		store:      store,
		pool:       pool,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return err
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers the agent's services from
// configuration, in startup order.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config) error {
	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		constructor func() (Service, error)
	}{
		{
			name: "tracking",
			constructor: func() (Service, error) {
				velocityConfig := velocity.Config{}
				copy(velocityConfig.Thresholds[:], config.Tracking.SpeedBandThresholds)
				copy(velocityConfig.Intervals[:], config.Tracking.SpeedBandIntervals)

				estimator, err := velocity.NewEstimator(velocityConfig, sr.Logger)
				if err != nil {
					return nil, err
				}
				policy, err := admission.NewPolicy(
					config.Tracking.AccuracyCeilingMeters,
					config.Tracking.DistanceThresholdMeters,
				)
				if err != nil {
					return nil, err
				}

				tracking, err := services.NewTrackingService(
					sr.source,
					sr.authorizer,
					sr.store,
					estimator,
					policy,
					nil,
					sr.pool,
					services.TrackingConfig{
						RetentionDays:          config.Tracking.RetentionDays,
						PurgeSampleProbability: config.Tracking.PurgeSampleProbability,
					},
					sr.Logger,
				)
				if err != nil {
					return nil, err
				}
				sr.Tracking = tracking
				return tracking, nil
			},
		},
		{
			name: "storage_monitor",
			constructor: func() (Service, error) {
				return services.NewStorageMonitorService(
					config.History.DatabaseFile,
					config.History.DiskCheckInterval,
					config.History.DiskUsageWarnPercent,
					sr.Logger,
				)
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		serviceInstance, err := svc.constructor()
		if err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
			return err
		}
		sr.RegisterService(svc.name, serviceInstance)
		registeredServices = append(registeredServices, svc.name)
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
