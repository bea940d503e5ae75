package reconciler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/routewise/telemetry-engine/internal/store"
	"github.com/rs/zerolog"
)

// Config carries the tie-break and freshness thresholds. Both are
// deployment-tunable rather than fixed behavior.
type Config struct {
	// Tolerance is the near-tie window: a sample observed within this
	// window before the canonical fix may still win on strictly better
	// quality or accuracy.
	Tolerance time.Duration
	// StaleAfter is the canonical-fix age past which the tracking
	// status reads as stale.
	StaleAfter time.Duration
}

// DefaultConfig returns the thresholds used when configuration leaves
// them unset.
func DefaultConfig() Config {
	return Config{
		Tolerance:  10 * time.Second,
		StaleAfter: 5 * time.Minute,
	}
}

// UpdateHook is invoked after each canonical overwrite with a copy of
// the new fix. Hooks must not block.
type UpdateHook func(loc models.CanonicalLocation)

// deviceState serializes canonical updates for one device and caches
// its current fix so the hot path does not reread the store.
type deviceState struct {
	mu        sync.Mutex
	loaded    bool
	canonical *models.CanonicalLocation
}

// Reconciler consumes raw samples from all transport adapters and is
// the sole writer of canonical location state. Ingest never surfaces
// errors to producers; telemetry must not back-pressure the transports.
type Reconciler struct {
	store  store.Store
	cfg    Config
	logger zerolog.Logger
	states cmap.ConcurrentMap[string, *deviceState]

	hookMu sync.RWMutex
	hooks  []UpdateHook
}

// New creates a reconciler with the given thresholds. Zero threshold
// values fall back to the defaults.
func New(st store.Store, cfg Config, logger zerolog.Logger) *Reconciler {
	def := DefaultConfig()
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	return &Reconciler{
		store:  st,
		cfg:    cfg,
		logger: logger.With().Str("component", "reconciler").Logger(),
		states: cmap.New[*deviceState](),
	}
}

// OnUpdate registers a hook called after every canonical overwrite.
func (r *Reconciler) OnUpdate(hook UpdateHook) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Ingest records a raw sample: it always appends to tracking history,
// and overwrites the canonical fix only when the sample wins the
// tie-break and sharing is enabled for the owning entity. Errors are
// absorbed and logged.
func (r *Reconciler) Ingest(sample models.LocationSample) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Str("device_id", sample.DeviceID).
				Msg("Recovered panic during sample ingestion")
		}
	}()

	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}
	if sample.ReceivedAt.IsZero() {
		sample.ReceivedAt = time.Now().UTC()
	}

	// Resolve the owning vehicle/driver/route through the device
	// assignment. A missing assignment still gets history.
	assignment, err := r.store.GetAssignment(sample.DeviceID)
	if err == nil {
		if sample.VehicleID == "" {
			sample.VehicleID = assignment.VehicleID
		}
		if sample.DriverID == "" {
			sample.DriverID = assignment.DriverID
		}
		if sample.RouteID == "" {
			sample.RouteID = assignment.RouteID
		}
	}

	state := r.stateFor(sample.DeviceID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if err := r.store.AppendHistory(&sample); err != nil {
		r.logger.Error().Err(err).Str("device_id", sample.DeviceID).
			Msg("Failed to append sample to tracking history")
	}

	if !state.loaded {
		current, err := r.store.GetCanonical(sample.DeviceID)
		if err == nil {
			state.canonical = current
		}
		state.loaded = true
	}

	if !r.supersedes(sample, state.canonical) {
		r.logger.Debug().
			Str("device_id", sample.DeviceID).
			Str("source", string(sample.Source)).
			Time("observed_at", sample.ObservedAt).
			Msg("Sample lost canonical tie-break")
		return
	}

	sharing := assignment == nil || assignment.SharingEnabled
	if !sharing {
		// Consent withdrawn: keep ingesting history but leave the
		// denormalized canonical fields untouched.
		return
	}

	loc := &models.CanonicalLocation{
		DeviceID:       sample.DeviceID,
		VehicleID:      sample.VehicleID,
		DriverID:       sample.DriverID,
		Latitude:       sample.Latitude,
		Longitude:      sample.Longitude,
		Accuracy:       sample.Accuracy,
		Quality:        sample.Quality,
		Source:         sample.Source,
		ObservedAt:     sample.ObservedAt,
		LastUpdate:     sample.ReceivedAt,
		TrackingStatus: models.TrackingActive,
		SharingEnabled: true,
	}
	if state.canonical != nil {
		loc.ID = state.canonical.ID
	}

	if err := r.store.SaveCanonical(loc); err != nil {
		r.logger.Error().Err(err).Str("device_id", sample.DeviceID).
			Msg("Failed to persist canonical location")
		return
	}
	state.canonical = loc

	r.notify(*loc)
}

// supersedes applies the tie-break law: a strictly newer observation
// always wins; inside the tolerance window a sample wins only on
// strictly better quality, then strictly better accuracy. Older samples
// beyond the window never clobber the canonical fix, which also covers
// the clock-skew case.
func (r *Reconciler) supersedes(sample models.LocationSample, current *models.CanonicalLocation) bool {
	if current == nil {
		return true
	}
	if sample.ObservedAt.After(current.ObservedAt) {
		return true
	}
	if current.ObservedAt.Sub(sample.ObservedAt) > r.cfg.Tolerance {
		return false
	}
	if sample.Quality != current.Quality {
		return sample.Quality > current.Quality
	}
	return sample.AccuracyMeters() < accuracyMeters(current)
}

func accuracyMeters(loc *models.CanonicalLocation) float64 {
	if loc.Accuracy == nil {
		return 1 << 30
	}
	return *loc.Accuracy
}

// Current returns the read-side view of a device's canonical fix.
// Coordinates are withheld when sharing is disabled, and the tracking
// status degrades to stale once the fix outlives the configured age.
func (r *Reconciler) Current(deviceID string) (*models.CurrentLocation, error) {
	state := r.stateFor(deviceID)
	state.mu.Lock()
	if !state.loaded {
		current, err := r.store.GetCanonical(deviceID)
		if err == nil {
			state.canonical = current
		}
		state.loaded = true
	}
	canonical := state.canonical
	state.mu.Unlock()

	if canonical == nil {
		return nil, models.ErrDeviceNotFound
	}

	sharing := true
	if assignment, err := r.store.GetAssignment(deviceID); err == nil {
		sharing = assignment.SharingEnabled
	}

	status := canonical.TrackingStatus
	if status == models.TrackingActive && time.Since(canonical.LastUpdate) > r.cfg.StaleAfter {
		status = models.TrackingStale
	}

	view := &models.CurrentLocation{
		DeviceID:       canonical.DeviceID,
		VehicleID:      canonical.VehicleID,
		DriverID:       canonical.DriverID,
		ObservedAt:     canonical.ObservedAt,
		LastUpdate:     canonical.LastUpdate,
		TrackingStatus: status,
		SharingEnabled: sharing,
	}
	if sharing {
		lat, lon := canonical.Latitude, canonical.Longitude
		view.Latitude = &lat
		view.Longitude = &lon
		view.Accuracy = canonical.Accuracy
		view.Source = canonical.Source
	}
	return view, nil
}

// History returns the bounded observational record for a device.
func (r *Reconciler) History(deviceID string, filter store.HistoryFilter) ([]models.LocationSample, error) {
	return r.store.History(deviceID, filter)
}

func (r *Reconciler) stateFor(deviceID string) *deviceState {
	if state, ok := r.states.Get(deviceID); ok {
		return state
	}
	r.states.SetIfAbsent(deviceID, &deviceState{})
	state, _ := r.states.Get(deviceID)
	return state
}

func (r *Reconciler) notify(loc models.CanonicalLocation) {
	r.hookMu.RLock()
	defer r.hookMu.RUnlock()
	for _, hook := range r.hooks {
		hook(loc)
	}
}
