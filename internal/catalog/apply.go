package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/store"
)

// Store is the persistence Apply writes through.
type Store interface {
	ApplicationBySlug(ctx context.Context, slug string) (domain.Application, error)
	CreateApplication(ctx context.Context, app domain.Application) (domain.Application, error)
	UpdateApplication(ctx context.Context, app domain.Application) (domain.Application, error)
	ResourceBySlug(ctx context.Context, applicationID int64, slug string) (domain.Resource, error)
	CreateResource(ctx context.Context, res domain.Resource) (domain.Resource, error)
	EventBySlug(ctx context.Context, applicationID int64, slug string) (domain.Event, error)
	CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	UpdateEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	ListSubscriptions(ctx context.Context, eventID int64) ([]domain.Subscription, error)
	CreateSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)
}

// Action is what Apply did to one entity.
type Action string

const (
	Created   Action = "created"
	Updated   Action = "updated"
	Unchanged Action = "unchanged"
)

// Change records one applied entity.
type Change struct {
	Kind   string `json:"kind"` // application, resource, event, subscription
	Path   string `json:"path"`
	Action Action `json:"action"`
}

// ErrSchemaChanged is returned when a catalog redeclares a stored
// resource with different fields. Stored schemas are immutable.
var ErrSchemaChanged = errors.New("resource fields differ from stored schema")

// Apply upserts the catalog into the store by slug. Entities missing from
// the catalog are left alone; subscriptions are only ever added.
//
// Apply stops at the first error; changes made before it are kept.
func Apply(ctx context.Context, s Store, cat *Catalog) ([]Change, error) {
	var changes []Change
	for _, def := range cat.Applications {
		c, err := applyApplication(ctx, s, def)
		changes = append(changes, c...)
		if err != nil {
			return changes, fmt.Errorf("application %s: %w", def.Slug, err)
		}
	}
	return changes, nil
}

func applyApplication(ctx context.Context, s Store, def Application) ([]Change, error) {
	change := Change{Kind: "application", Path: def.Slug}

	app, err := s.ApplicationBySlug(ctx, def.Slug)
	switch {
	case store.IsNotFound(err):
		app, err = s.CreateApplication(ctx, domain.Application{Slug: def.Slug, Name: def.Name, IsPrivate: def.IsPrivate})
		if err != nil {
			return nil, err
		}
		change.Action = Created
	case err != nil:
		return nil, err
	case app.Name != def.Name || app.IsPrivate != def.IsPrivate:
		app.Name, app.IsPrivate = def.Name, def.IsPrivate
		if app, err = s.UpdateApplication(ctx, app); err != nil {
			return nil, err
		}
		change.Action = Updated
	default:
		change.Action = Unchanged
	}
	changes := []Change{change}

	resources := map[string]domain.Resource{}
	for _, rd := range def.Resources {
		res, c, err := applyResource(ctx, s, app, rd)
		if err != nil {
			return changes, fmt.Errorf("resource %s: %w", rd.Slug, err)
		}
		resources[rd.Slug] = res
		changes = append(changes, c)
	}

	for _, ed := range def.Events {
		res, ok := resources[ed.Resource]
		if !ok {
			return changes, fmt.Errorf("event %s: unknown resource %q", ed.Slug, ed.Resource)
		}
		c, err := applyEvent(ctx, s, app, res, ed)
		changes = append(changes, c...)
		if err != nil {
			return changes, fmt.Errorf("event %s: %w", ed.Slug, err)
		}
	}
	return changes, nil
}

func applyResource(ctx context.Context, s Store, app domain.Application, def Resource) (domain.Resource, Change, error) {
	change := Change{Kind: "resource", Path: app.Slug + "/" + def.Slug}

	res, err := s.ResourceBySlug(ctx, app.ID, def.Slug)
	switch {
	case store.IsNotFound(err):
		res, err = s.CreateResource(ctx, domain.Resource{
			ApplicationID: app.ID,
			Slug:          def.Slug,
			Name:          def.Name,
			Fields:        def.Fields,
		})
		if err != nil {
			return domain.Resource{}, change, err
		}
		change.Action = Created
	case err != nil:
		return domain.Resource{}, change, err
	case !sameSchema(res.Fields, def.Fields):
		return domain.Resource{}, change, ErrSchemaChanged
	default:
		change.Action = Unchanged
	}
	return res, change, nil
}

func applyEvent(ctx context.Context, s Store, app domain.Application, res domain.Resource, def Event) ([]Change, error) {
	change := Change{Kind: "event", Path: app.Slug + "/" + def.Slug}

	ev, err := s.EventBySlug(ctx, app.ID, def.Slug)
	switch {
	case store.IsNotFound(err):
		ev, err = s.CreateEvent(ctx, domain.Event{
			ApplicationID: app.ID,
			ResourceID:    res.ID,
			Slug:          def.Slug,
			Name:          def.Name,
			Condition:     def.Condition,
		})
		if err != nil {
			return nil, err
		}
		change.Action = Created
	case err != nil:
		return nil, err
	case ev.ResourceID != res.ID:
		return nil, fmt.Errorf("stored event watches another resource")
	case ev.Name != def.Name || !sameCondition(ev.Condition, def.Condition):
		ev.Name, ev.Condition = def.Name, def.Condition
		if ev, err = s.UpdateEvent(ctx, ev); err != nil {
			return nil, err
		}
		change.Action = Updated
	default:
		change.Action = Unchanged
	}
	changes := []Change{change}

	subs, err := s.ListSubscriptions(ctx, ev.ID)
	if err != nil {
		return changes, err
	}
	known := make(map[string]bool, len(subs))
	for _, sub := range subs {
		known[sub.NotifyURL] = true
	}
	for _, u := range def.Subscriptions {
		c := Change{Kind: "subscription", Path: change.Path + " " + u, Action: Unchanged}
		if !known[u] {
			if _, err := s.CreateSubscription(ctx, domain.Subscription{EventID: ev.ID, NotifyURL: u}); err != nil {
				return changes, err
			}
			known[u] = true
			c.Action = Created
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func sameSchema(a, b domain.Schema) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameCondition(a, b domain.Condition) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}
