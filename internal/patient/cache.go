// Package patient caches the signed-in patient's medical profile and derives
// the medication and condition context attached to chat messages.
package patient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/carecache/internal/cache"
	apperrors "github.com/gmsas95/carecache/internal/errors"
	"github.com/gmsas95/carecache/internal/metrics"
	"github.com/gmsas95/carecache/internal/persist"
)

const (
	// StorageKey is the persisted record holding the cached profile
	StorageKey = "patient-store"

	storageVersion = 1
	metricsStore   = "patient"
)

// Fetcher loads a profile from the backend
type Fetcher interface {
	GetProfile(ctx context.Context, patientID string) (*Profile, error)
}

// State is a consistent snapshot of the cache
type State struct {
	Profile   *Profile
	PatientID string
	FetchedAt time.Time
	IsLoading bool
	Error     string
	Fresh     bool
}

type persistedState struct {
	PatientID   string   `json:"patient_id"`
	Profile     *Profile `json:"profile"`
	FetchedAtMs int64    `json:"fetched_at_ms"`
}

// Cache holds at most one profile for one patient identity. Readers never
// block on a fetch; they see the previous profile until the new one lands.
type Cache struct {
	mu        sync.RWMutex
	entry     cache.Entry[Profile]
	patientID string
	loading   bool
	err       string
	seq       cache.Sequencer

	// persistMu orders writes to storage against Invalidate
	persistMu sync.Mutex

	fetcher Fetcher
	store   persist.Store
	clock   cache.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCache creates an empty cache. store may be nil to run memory-only.
func NewCache(fetcher Fetcher, store persist.Store, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entry:   cache.NewEntry[Profile](ttl),
		fetcher: fetcher,
		store:   store,
		clock:   time.Now,
		metrics: metrics.Default(),
		logger:  logger,
	}
}

func (c *Cache) SetClock(clock cache.Clock) {
	c.clock = clock
}

func (c *Cache) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// FetchProfile returns the cached profile when it belongs to patientID and is
// younger than the TTL, unless force is set. Otherwise it fetches. On
// failure the previous profile is kept and the error recorded; a completion
// superseded by a later fetch or an Invalidate is discarded.
func (c *Cache) FetchProfile(ctx context.Context, patientID string, force bool) State {
	c.mu.Lock()
	if !force && c.patientID == patientID && c.entry.IsFresh(c.clock()) {
		c.mu.Unlock()
		c.metrics.RecordCacheLookup(metricsStore, true)
		c.logger.Debug("Profile served from cache", zap.String("patient_id", patientID))
		return c.State()
	}
	seq := c.seq.Next()
	c.loading = true
	c.mu.Unlock()

	if !force {
		c.metrics.RecordCacheLookup(metricsStore, false)
	}
	done := c.metrics.StartFetch(metricsStore, "profile")

	profile, err := c.fetch(ctx, patientID)

	c.mu.Lock()
	if !c.seq.IsLatest(seq) {
		c.mu.Unlock()
		done(metrics.OutcomeDiscarded)
		c.logger.Debug("Discarding superseded profile fetch", zap.Uint64("seq", seq))
		return c.State()
	}
	c.loading = false
	if err != nil {
		c.err = apperrors.Message(err)
		c.mu.Unlock()
		done(metrics.OutcomeFailure)
		c.logger.Warn("Failed to fetch patient profile",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		return c.State()
	}
	fetchedAt := c.clock()
	c.entry.Replace(profile, fetchedAt)
	c.patientID = patientID
	c.err = ""
	snapshot := persistedState{
		PatientID:   patientID,
		Profile:     profile,
		FetchedAtMs: fetchedAt.UnixMilli(),
	}
	c.mu.Unlock()
	done(metrics.OutcomeSuccess)

	c.save(ctx, seq, snapshot)
	return c.State()
}

func (c *Cache) fetch(ctx context.Context, patientID string) (profile *Profile, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("profile fetch panicked: %v", r)
		}
	}()
	profile, err = c.fetcher.GetProfile(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return normalize(profile)
}

func (c *Cache) save(ctx context.Context, seq uint64, snapshot persistedState) {
	if c.store == nil {
		return
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	if !c.seq.IsLatest(seq) {
		return
	}
	raw, err := persist.Encode(storageVersion, snapshot)
	if err == nil {
		err = c.store.Set(context.WithoutCancel(ctx), StorageKey, raw)
	}
	if err != nil {
		c.logger.Warn("Failed to persist patient profile", zap.Error(err))
	}
}

// Invalidate clears the profile and its persisted copy and cancels the
// effect of any fetch still in flight.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.seq.Next()
	c.entry.Clear()
	c.patientID = ""
	c.loading = false
	c.err = ""
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if err := c.store.Remove(ctx, StorageKey); err != nil {
		return fmt.Errorf("failed to remove persisted profile: %w", err)
	}
	c.logger.Info("Patient profile invalidated")
	return nil
}

// Rehydrate restores the persisted profile. It does nothing if the cache
// already holds one. Unreadable records are dropped.
func (c *Cache) Rehydrate(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	raw, err := c.store.Get(ctx, StorageKey)
	if errors.Is(err, persist.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read persisted profile: %w", err)
	}

	var snapshot persistedState
	if _, err := persist.Decode(raw, storageVersion, &snapshot); err != nil || snapshot.Profile == nil || snapshot.FetchedAtMs <= 0 {
		c.logger.Warn("Dropping unreadable persisted profile", zap.Error(err))
		if rmErr := c.store.Remove(ctx, StorageKey); rmErr != nil {
			c.logger.Warn("Failed to remove persisted profile", zap.Error(rmErr))
		}
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.entry.Empty() || c.loading {
		return nil
	}
	c.entry.Replace(snapshot.Profile, time.UnixMilli(snapshot.FetchedAtMs))
	c.patientID = snapshot.PatientID
	c.logger.Debug("Patient profile rehydrated", zap.String("patient_id", snapshot.PatientID))
	return nil
}

// State returns a snapshot. The profile pointer is shared and must be
// treated as read-only.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.clock()
	return State{
		Profile:   c.entry.Value(),
		PatientID: c.patientID,
		FetchedAt: c.entry.FetchedAt(),
		IsLoading: c.loading,
		Error:     c.err,
		Fresh:     c.entry.IsFresh(now),
	}
}

// DerivedContext lists the names of the cached medications and conditions,
// or two empty lists when no profile is held.
func (c *Cache) DerivedContext() Context {
	c.mu.RLock()
	defer c.mu.RUnlock()

	profile := c.entry.Value()
	if profile == nil {
		return EmptyContext()
	}
	ctx := Context{
		Medications: make([]string, 0, len(profile.Medications)),
		Conditions:  make([]string, 0, len(profile.Conditions)),
	}
	for _, med := range profile.Medications {
		ctx.Medications = append(ctx.Medications, med.Name)
	}
	for _, cond := range profile.Conditions {
		ctx.Conditions = append(ctx.Conditions, cond.Name)
	}
	return ctx
}
