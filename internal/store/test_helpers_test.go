package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/wot/internal/domain"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixture is a seeded application → resource → event → subscription chain.
type fixture struct {
	app domain.Application
	res domain.Resource
	ev  domain.Event
	sub domain.Subscription
}

func seed(t *testing.T, s *Store) fixture {
	t.Helper()
	ctx := context.Background()

	app, err := s.CreateApplication(ctx, domain.Application{Name: "Greenhouse"})
	require.NoError(t, err)

	res, err := s.CreateResource(ctx, domain.Resource{
		ApplicationID: app.ID,
		Name:          "Sensor",
		Fields:        domain.Schema{{Name: "temp", Type: domain.TypeFloat}},
	})
	require.NoError(t, err)

	ev, err := s.CreateEvent(ctx, domain.Event{
		ApplicationID: app.ID,
		ResourceID:    res.ID,
		Name:          "Too Hot",
		Condition: domain.Condition{
			{Field: "temp", Operator: domain.OpGt, Literal: domain.Int(100)},
		},
	})
	require.NoError(t, err)

	sub, err := s.CreateSubscription(ctx, domain.Subscription{EventID: ev.ID, NotifyURL: "http://localhost/hook"})
	require.NoError(t, err)

	return fixture{app: app, res: res, ev: ev, sub: sub}
}
