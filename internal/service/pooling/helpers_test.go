package pooling

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/ride-pooling/internal/adapter/memory"
	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/geo"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
)

var (
	testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Scenario B cluster in Delhi, roughly 70 m apart
	clusterA = geo.Point{Lat: 28.55, Lng: 77.10}
	clusterB = geo.Point{Lat: 28.5505, Lng: 77.1005}
	dropoff  = geo.Point{Lat: 28.60, Lng: 77.15}
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixedPricer struct {
	err error
}

func (p fixedPricer) Price(_ context.Context, distanceKm float64, poolSize, luggage int) (float64, error) {
	if p.err != nil {
		return 0, p.err
	}
	return 100 + distanceKm*10 + float64(luggage) - float64(poolSize), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.PoolEventMessage
}

func (p *recordingPublisher) PublishPoolEvent(_ context.Context, evt models.PoolEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) eventTypes() []types.PoolEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.PoolEvent, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingIndex struct {
	mu      sync.Mutex
	indexed map[uuid.UUID]bool
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{indexed: make(map[uuid.UUID]bool)}
}

func (i *recordingIndex) Upsert(_ context.Context, pool *models.Pool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.indexed[pool.ID] = true
	return nil
}

func (i *recordingIndex) Remove(_ context.Context, ids ...uuid.UUID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, id := range ids {
		delete(i.indexed, id)
	}
	return nil
}

func (i *recordingIndex) has(id uuid.UUID) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.indexed[id]
}

type harness struct {
	store     *memory.Store
	clock     *clock
	publisher *recordingPublisher
	index     *recordingIndex
	svc       *Service
	cfg       Config
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	cfg    Config
	pricer Pricer
	finder func(s *memory.Store) CandidateFinder
	pools  func(s *memory.Store) PoolRepo
}

func withPricer(p Pricer) harnessOption {
	return func(h *harnessConfig) { h.pricer = p }
}

func withConfig(fn func(*Config)) harnessOption {
	return func(h *harnessConfig) { fn(&h.cfg) }
}

func withFinder(f func(s *memory.Store) CandidateFinder) harnessOption {
	return func(h *harnessConfig) { h.finder = f }
}

func withPoolRepo(f func(s *memory.Store) PoolRepo) harnessOption {
	return func(h *harnessConfig) { h.pools = f }
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = 0
	return cfg
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	hc := harnessConfig{
		cfg:    testConfig(),
		pricer: fixedPricer{},
		finder: func(s *memory.Store) CandidateFinder { return s.Pools() },
		pools:  func(s *memory.Store) PoolRepo { return s.Pools() },
	}
	for _, o := range opts {
		o(&hc)
	}

	store := memory.NewStore()
	h := &harness{
		store:     store,
		clock:     &clock{t: testStart},
		publisher: &recordingPublisher{},
		index:     newRecordingIndex(),
		cfg:       hc.cfg,
	}
	h.svc = New(
		hc.pools(store), store.Rides(), hc.finder(store), hc.pricer, store, hc.cfg,
		logger.New(io.Discard, "pooling-test", logger.LevelError),
		WithClock(h.clock.Now),
		WithPublisher(h.publisher),
		WithGeoIndex(h.index),
	)

	return h
}

func rideRequest(pickup geo.Point, luggage int) models.RideRequest {
	return models.RideRequest{
		PassengerID: uuid.New(),
		Pickup:      models.LocationFromPoint(pickup),
		Dropoff:     models.LocationFromPoint(dropoff),
		Luggage:     luggage,
	}
}

func (h *harness) request(t *testing.T, pickup geo.Point, luggage int) *models.RideResult {
	t.Helper()

	res, err := h.svc.RequestRide(context.Background(), rideRequest(pickup, luggage))
	require.NoError(t, err)
	require.NotNil(t, res.Pool)
	return res
}

func (h *harness) pool(t *testing.T, id uuid.UUID) *models.Pool {
	t.Helper()

	p, err := h.store.Pools().Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) ride(t *testing.T, id uuid.UUID) *models.Ride {
	t.Helper()

	r, err := h.store.Rides().Get(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (h *harness) requireInvariants(t *testing.T) {
	t.Helper()
	require.NoError(t, h.store.CheckInvariants(h.cfg.Limits.MaxSeats))
}
