package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/logging"
	"jobpulse/internal/store"
	"jobpulse/pkg/models"
)

// SyncCapable is a platform service together with the shared persistence
// helpers every variant carries.
type SyncCapable interface {
	PlatformService

	SaveConfig(ctx context.Context, cfg *models.PlatformConfig) models.Result
	BeginSyncExecution(ctx context.Context, userID string) (*models.JobExecution, error)
	CloseSyncExecution(ctx context.Context, exec *models.JobExecution, recordCount int, syncErr error)
	PersistRawRecords(ctx context.Context, records []models.RawMetricRecord) error
	UpdateLastSync(ctx context.Context, userID string, syncedAt time.Time) error
	GetConfig(ctx context.Context, userID string) (*models.PlatformConfig, error)
}

type serviceKey struct {
	platformType string
	platformName string
}

// Registry owns one singleton service per (platform_type, platform_name)
// binding, instantiated lazily on first use. Constructed once at process
// start and passed by reference into the scheduler and handlers.
type Registry struct {
	cfg       *config.Config
	store     store.Store
	limiter   *RateLimiter
	factories map[serviceKey]func() SyncCapable
	services  map[serviceKey]SyncCapable
	mu        sync.Mutex
	logger    logging.Logger
}

// NewRegistry creates a registry with the built-in platform bindings
func NewRegistry(cfg *config.Config, st store.Store, limiter *RateLimiter) *Registry {
	r := &Registry{
		cfg:      cfg,
		store:    st,
		limiter:  limiter,
		services: make(map[serviceKey]SyncCapable),
		logger:   logging.GetGlobalLogger().WithField("component", "platform_registry"),
	}

	r.factories = map[serviceKey]func() SyncCapable{
		{TypeJobBoard, NameLinkedIn}: func() SyncCapable { return NewLinkedInService(cfg, st, limiter) },
		{TypeJobBoard, NameIndeed}:   func() SyncCapable { return NewIndeedService(cfg, st, limiter) },
		{TypeReferral, NameReferral}: func() SyncCapable { return NewReferralService(cfg, st, limiter) },
	}

	return r
}

// Register binds a service factory to a (type, name) key, replacing any
// built-in binding. Used to substitute fake variants in tests.
func (r *Registry) Register(platformType, platformName string, factory func() SyncCapable) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := serviceKey{platformType, platformName}
	r.factories[key] = factory
	delete(r.services, key)
}

// GetService returns the singleton service for a binding, instantiating
// it on first use.
func (r *Registry) GetService(platformType, platformName string) (SyncCapable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := serviceKey{platformType, platformName}
	if svc, ok := r.services[key]; ok {
		return svc, nil
	}

	factory, ok := r.factories[key]
	if !ok {
		return nil, fmt.Errorf("no platform service registered for %s/%s", platformType, platformName)
	}

	svc := factory()
	r.services[key] = svc
	r.logger.Info("Instantiated platform service", map[string]interface{}{
		"platform_type": platformType,
		"platform_name": platformName,
	})
	return svc, nil
}

// SyncAllPlatforms runs the sync workflow for every active, configured
// platform of one user. Each platform's failure is isolated into its own
// result entry; one platform failing never aborts the others.
func (r *Registry) SyncAllPlatforms(ctx context.Context, userID string, dateRange models.DateRange) ([]models.SyncResult, error) {
	configs, err := r.store.ListActivePlatformConfigs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active platform configs: %w", err)
	}

	results := make([]models.SyncResult, 0, len(configs))
	for i := range configs {
		results = append(results, r.syncOne(ctx, &configs[i], dateRange))
	}
	return results, nil
}

// SyncPlatformForAllUsers runs the sync workflow for one platform across
// every user holding an active config for it.
func (r *Registry) SyncPlatformForAllUsers(ctx context.Context, platformType, platformName string, dateRange models.DateRange) ([]models.SyncResult, error) {
	users, err := r.store.ListUsersWithActivePlatform(ctx, platformType, platformName)
	if err != nil {
		return nil, fmt.Errorf("list users for %s/%s: %w", platformType, platformName, err)
	}

	results := make([]models.SyncResult, 0, len(users))
	for _, userID := range users {
		cfg, err := r.store.GetPlatformConfig(ctx, userID, platformType, platformName)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			results = append(results, models.SyncResult{
				PlatformType: platformType,
				PlatformName: platformName,
				UserID:       userID,
				Error:        err.Error(),
			})
			continue
		}
		results = append(results, r.syncOne(ctx, cfg, dateRange))
	}
	return results, nil
}

// syncOne executes the full sync workflow for one user and platform:
// open the sync-job record, initialize, fetch, persist raw rows, stamp
// last-sync, close the record.
func (r *Registry) syncOne(ctx context.Context, cfg *models.PlatformConfig, dateRange models.DateRange) models.SyncResult {
	started := time.Now()
	result := models.SyncResult{
		PlatformType: cfg.PlatformType,
		PlatformName: cfg.PlatformName,
		UserID:       cfg.UserID,
	}

	fail := func(msg string) models.SyncResult {
		result.Error = msg
		result.DurationMs = time.Since(started).Milliseconds()
		r.logger.Warn("Platform sync failed", map[string]interface{}{
			"platform_type": cfg.PlatformType,
			"platform_name": cfg.PlatformName,
			"user_id":       cfg.UserID,
			"error":         msg,
		})
		return result
	}

	svc, err := r.GetService(cfg.PlatformType, cfg.PlatformName)
	if err != nil {
		return fail(err.Error())
	}

	exec, err := svc.BeginSyncExecution(ctx, cfg.UserID)
	if err != nil {
		return fail(fmt.Sprintf("failed to open sync record: %v", err))
	}

	if res := svc.Initialize(ctx, cfg); !res.Success {
		svc.CloseSyncExecution(ctx, exec, 0, errors.New(res.Error))
		return fail(res.Error)
	}

	fetched := svc.FetchAnalytics(ctx, cfg.UserID, dateRange)
	if !fetched.Success {
		svc.CloseSyncExecution(ctx, exec, 0, errors.New(fetched.Error))
		return fail(fetched.Error)
	}

	if err := svc.PersistRawRecords(ctx, fetched.Records); err != nil {
		svc.CloseSyncExecution(ctx, exec, 0, err)
		return fail(fmt.Sprintf("failed to persist raw records: %v", err))
	}

	if err := svc.UpdateLastSync(ctx, cfg.UserID, time.Now()); err != nil {
		r.logger.Warn("Failed to stamp last sync", map[string]interface{}{
			"user_id": cfg.UserID,
			"error":   err.Error(),
		})
	}

	svc.CloseSyncExecution(ctx, exec, len(fetched.Records), nil)

	result.Success = true
	result.RecordCount = len(fetched.Records)
	result.DurationMs = time.Since(started).Milliseconds()
	return result
}
