package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/metrics"
	"github.com/roach88/wot/internal/schema"
	"github.com/roach88/wot/internal/store"
)

type recordingNotifier struct {
	mu     sync.Mutex
	points []domain.DataPoint
	err    error
}

func (n *recordingNotifier) OnDataPointStored(_ context.Context, _ domain.Resource, dp domain.DataPoint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.points = append(n.points, dp)
	return n.err
}

// countingStore counts resource lookups.
type countingStore struct {
	*store.Store
	lookups int
}

func (s *countingStore) ResourceBySlug(ctx context.Context, appID int64, sl string) (domain.Resource, error) {
	s.lookups++
	return s.Store.ResourceBySlug(ctx, appID, sl)
}

func newStore(t *testing.T) *countingStore {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	app, err := s.CreateApplication(ctx, domain.Application{Name: "Greenhouse"})
	require.NoError(t, err)
	_, err = s.CreateResource(ctx, domain.Resource{
		ApplicationID: app.ID,
		Name:          "Sensor",
		Fields:        domain.Schema{{Name: "temp", Type: domain.TypeFloat}},
	})
	require.NoError(t, err)
	return &countingStore{Store: s}
}

func TestIngest_StoresAndNotifies(t *testing.T) {
	s := newStore(t)
	n := &recordingNotifier{}
	i := New(s, n)
	defer i.Close()

	dp, err := i.Ingest(context.Background(), "greenhouse", "sensor", domain.Data{"temp": domain.String("101.5")})
	require.NoError(t, err)
	assert.NotZero(t, dp.ID)

	require.Len(t, n.points, 1)
	assert.Equal(t, dp.ID, n.points[0].ID)

	stored, err := s.DataPoint(context.Background(), dp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.String("101.5"), stored.Data["temp"])
}

func TestIngest_SchemaErrorStoresNothing(t *testing.T) {
	s := newStore(t)
	n := &recordingNotifier{}
	i := New(s, n)
	defer i.Close()

	_, err := i.Ingest(context.Background(), "greenhouse", "sensor", domain.Data{"temp": domain.String("abc")})
	require.Error(t, err)
	assert.True(t, schema.IsTypeMismatch(err))

	_, err = i.Ingest(context.Background(), "greenhouse", "sensor", domain.Data{"color": domain.String("red")})
	require.Error(t, err)
	assert.True(t, schema.IsUnknownField(err))

	assert.Empty(t, n.points)
	res, err := i.Resolve(context.Background(), "greenhouse", "sensor")
	require.NoError(t, err)
	_, err = s.LatestDataPoint(context.Background(), res.ID)
	assert.True(t, store.IsNotFound(err))
}

func TestIngest_HandOffFailureKeepsPoint(t *testing.T) {
	s := newStore(t)
	n := &recordingNotifier{err: errors.New("queue closed")}
	i := New(s, n)
	defer i.Close()

	dp, err := i.Ingest(context.Background(), "greenhouse", "sensor", domain.Data{"temp": domain.Float(1)})
	require.NoError(t, err)

	_, err = s.DataPoint(context.Background(), dp.ID)
	assert.NoError(t, err)
}

func TestIngest_UnknownResource(t *testing.T) {
	s := newStore(t)
	i := New(s, nil)
	defer i.Close()

	_, err := i.Ingest(context.Background(), "greenhouse", "nope", domain.Data{})
	assert.True(t, store.IsNotFound(err))

	_, err = i.Ingest(context.Background(), "nope", "sensor", domain.Data{})
	assert.True(t, store.IsNotFound(err))
}

func TestResolve_CachesResource(t *testing.T) {
	s := newStore(t)
	i := New(s, nil)
	defer i.Close()
	ctx := context.Background()

	for n := 0; n < 3; n++ {
		_, err := i.Resolve(ctx, "greenhouse", "sensor")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.lookups)

	i.Forget("greenhouse", "sensor")
	_, err := i.Resolve(ctx, "greenhouse", "sensor")
	require.NoError(t, err)
	assert.Equal(t, 2, s.lookups)
}

func TestResolve_ZeroTTLDisablesCache(t *testing.T) {
	s := newStore(t)
	i := New(s, nil, WithResourceTTL(0))
	defer i.Close()

	for n := 0; n < 2; n++ {
		_, err := i.Resolve(context.Background(), "greenhouse", "sensor")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, s.lookups)
}

func TestParseAndIngest(t *testing.T) {
	s := newStore(t)
	reg := prometheus.NewRegistry()
	i := New(s, nil, WithMetrics(metrics.New(reg)))
	defer i.Close()
	ctx := context.Background()

	_, err := i.ParseAndIngest(ctx, "greenhouse", "sensor", []byte(`{"temp": 20.5}`))
	require.NoError(t, err)

	_, err = i.ParseAndIngest(ctx, "greenhouse", "sensor", []byte(`[1]`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	expected := `
# HELP wot_data_points_total Data points received, by result (accepted or rejected).
# TYPE wot_data_points_total counter
wot_data_points_total{result="accepted"} 1
wot_data_points_total{result="rejected"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "wot_data_points_total"))
}
