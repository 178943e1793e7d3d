package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"jobpulse/pkg/models"
)

// MemoryStore implements Store using in-memory maps. It backs tests and
// deployments running without a DATABASE_URL; contents are lost on
// restart.
type MemoryStore struct {
	mu         sync.RWMutex
	jobs       map[string]models.JobConfig
	executions map[string][]models.JobExecution // job id -> attempts, oldest first
	raw        []models.RawMetricRecord
	aggregated map[string]models.AggregatedRecord // composite key -> row
	platforms  map[string]models.PlatformConfig   // user|type|name -> config
	referrals  []models.ReferralEvent
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[string]models.JobConfig),
		executions: make(map[string][]models.JobExecution),
		aggregated: make(map[string]models.AggregatedRecord),
		platforms:  make(map[string]models.PlatformConfig),
	}
}

// CreateJobConfig stores a new job configuration
func (s *MemoryStore) CreateJobConfig(ctx context.Context, job *models.JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = *job
	return nil
}

// GetJobConfig retrieves a job configuration by id
func (s *MemoryStore) GetJobConfig(ctx context.Context, id string) (*models.JobConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &job, nil
}

// ListJobConfigs returns all job configurations ordered by id
func (s *MemoryStore) ListJobConfigs(ctx context.Context) ([]models.JobConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]models.JobConfig, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

// UpdateJobConfig overwrites an existing job configuration
func (s *MemoryStore) UpdateJobConfig(ctx context.Context, job *models.JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return ErrNotFound
	}
	job.UpdatedAt = time.Now()
	s.jobs[job.ID] = *job
	return nil
}

// CreateJobExecution appends a new execution attempt row
func (s *MemoryStore) CreateJobExecution(ctx context.Context, exec *models.JobExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions[exec.JobID] = append(s.executions[exec.JobID], *exec)
	return nil
}

// FinalizeJobExecution writes the terminal state of an execution row
// exactly once.
func (s *MemoryStore) FinalizeJobExecution(ctx context.Context, exec *models.JobExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.executions[exec.JobID]
	for i := range rows {
		if rows[i].ID == exec.ID {
			if rows[i].IsFinal() {
				return ErrFinalized
			}
			rows[i] = *exec
			return nil
		}
	}
	return ErrNotFound
}

// ListJobExecutions returns the most recent attempts for a job, newest
// first, bounded by limit.
func (s *MemoryStore) ListJobExecutions(ctx context.Context, jobID string, limit int) ([]models.JobExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.executions[jobID]
	out := make([]models.JobExecution, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// LatestJobExecution returns the most recent attempt for a job
func (s *MemoryStore) LatestJobExecution(ctx context.Context, jobID string) (*models.JobExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.executions[jobID]
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	latest := rows[len(rows)-1]
	return &latest, nil
}

// InsertRawMetrics appends raw metric rows
func (s *MemoryStore) InsertRawMetrics(ctx context.Context, records []models.RawMetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.raw = append(s.raw, records...)
	return nil
}

// QueryRawMetrics returns raw rows for a user within [start, end)
func (s *MemoryStore) QueryRawMetrics(ctx context.Context, userID string, r models.DateRange) ([]models.RawMetricRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RawMetricRecord
	for _, rec := range s.raw {
		if rec.UserID == userID && r.Contains(rec.RecordedAt) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListUsersWithRawMetrics returns the distinct users with raw rows in range
func (s *MemoryStore) ListUsersWithRawMetrics(ctx context.Context, r models.DateRange) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var users []string
	for _, rec := range s.raw {
		if r.Contains(rec.RecordedAt) && !seen[rec.UserID] {
			seen[rec.UserID] = true
			users = append(users, rec.UserID)
		}
	}
	sort.Strings(users)
	return users, nil
}

// DeleteRawMetricsBefore removes raw rows recorded before the cutoff
func (s *MemoryStore) DeleteRawMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.raw[:0]
	var deleted int64
	for _, rec := range s.raw {
		if rec.RecordedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.raw = kept
	return deleted, nil
}

// UpsertAggregatedRecord inserts or overwrites the row for the full
// period key. Two concurrent aggregations of the same period converge to
// one row, last writer wins.
func (s *MemoryStore) UpsertAggregatedRecord(ctx context.Context, rec *models.AggregatedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := aggregatedKeyString(rec.Key)
	now := time.Now()
	if existing, exists := s.aggregated[key]; exists {
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.aggregated[key] = *rec
	return nil
}

// GetAggregatedRecord retrieves the row for a period key
func (s *MemoryStore) GetAggregatedRecord(ctx context.Context, key models.AggregatedKey) (*models.AggregatedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.aggregated[aggregatedKeyString(key)]
	if !exists {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// ListAggregatedRecords returns aggregated rows for a user and period
// type whose period_start falls inside the range.
func (s *MemoryStore) ListAggregatedRecords(ctx context.Context, userID string, periodType models.PeriodType, r models.DateRange) ([]models.AggregatedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.AggregatedRecord
	for _, rec := range s.aggregated {
		if rec.Key.UserID == userID && rec.Key.PeriodType == periodType && r.Contains(rec.Key.PeriodStart) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.PeriodStart.Before(out[j].Key.PeriodStart) })
	return out, nil
}

// SavePlatformConfig inserts or overwrites a platform configuration
func (s *MemoryStore) SavePlatformConfig(ctx context.Context, cfg *models.PlatformConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := platformKeyString(cfg.UserID, cfg.PlatformType, cfg.PlatformName)
	now := time.Now()
	if existing, exists := s.platforms[key]; exists {
		cfg.CreatedAt = existing.CreatedAt
	} else {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	s.platforms[key] = *cfg
	return nil
}

// GetPlatformConfig retrieves one user's configuration for a platform
func (s *MemoryStore) GetPlatformConfig(ctx context.Context, userID, platformType, platformName string) (*models.PlatformConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, exists := s.platforms[platformKeyString(userID, platformType, platformName)]
	if !exists {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

// ListActivePlatformConfigs returns a user's active platform configs
func (s *MemoryStore) ListActivePlatformConfigs(ctx context.Context, userID string) ([]models.PlatformConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.PlatformConfig
	for _, cfg := range s.platforms {
		if cfg.UserID == userID && cfg.IsActive {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PlatformType+out[i].PlatformName < out[j].PlatformType+out[j].PlatformName
	})
	return out, nil
}

// ListUsersWithActivePlatform returns users holding an active config for
// the given platform.
func (s *MemoryStore) ListUsersWithActivePlatform(ctx context.Context, platformType, platformName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []string
	for _, cfg := range s.platforms {
		if cfg.PlatformType == platformType && cfg.PlatformName == platformName && cfg.IsActive {
			users = append(users, cfg.UserID)
		}
	}
	sort.Strings(users)
	return users, nil
}

// UpdateLastSync stamps the last successful sync time on a platform config
func (s *MemoryStore) UpdateLastSync(ctx context.Context, userID, platformType, platformName string, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := platformKeyString(userID, platformType, platformName)
	cfg, exists := s.platforms[key]
	if !exists {
		return ErrNotFound
	}
	cfg.LastSyncAt = &syncedAt
	cfg.UpdatedAt = time.Now()
	s.platforms[key] = cfg
	return nil
}

// QueryReferralEvents returns referral events for a user within the range
func (s *MemoryStore) QueryReferralEvents(ctx context.Context, userID string, r models.DateRange) ([]models.ReferralEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ReferralEvent
	for _, ev := range s.referrals {
		if ev.UserID == userID && r.Contains(ev.OccurredAt) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// InsertReferralEvent appends a referral tracking event
func (s *MemoryStore) InsertReferralEvent(ctx context.Context, event *models.ReferralEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.referrals = append(s.referrals, *event)
	return nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() {}

func aggregatedKeyString(key models.AggregatedKey) string {
	return strings.Join([]string{
		key.UserID,
		key.PlatformType,
		key.PlatformName,
		key.JobPostingID,
		string(key.PeriodType),
		key.PeriodStart.UTC().Format(time.RFC3339),
	}, "|")
}

func platformKeyString(userID, platformType, platformName string) string {
	return strings.Join([]string{userID, platformType, platformName}, "|")
}
