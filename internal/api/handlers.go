package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/roach88/wot/internal/condition"
	"github.com/roach88/wot/internal/dispatch"
	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/schema"
	"github.com/roach88/wot/internal/store"
)

const listPageSize = 100

func (s *Server) lookupApplication(r *http.Request) (domain.Application, error) {
	return s.store.ApplicationBySlug(r.Context(), r.PathValue("app"))
}

func (s *Server) lookupResource(r *http.Request) (domain.Application, domain.Resource, error) {
	app, err := s.lookupApplication(r)
	if err != nil {
		return app, domain.Resource{}, err
	}
	res, err := s.store.ResourceBySlug(r.Context(), app.ID, r.PathValue("res"))
	return app, res, err
}

func (s *Server) lookupEvent(r *http.Request) (domain.Application, domain.Resource, domain.Event, error) {
	app, res, err := s.lookupResource(r)
	if err != nil {
		return app, res, domain.Event{}, err
	}
	ev, err := s.store.EventBySlug(r.Context(), app.ID, r.PathValue("ev"))
	if err != nil {
		return app, res, ev, err
	}
	if ev.ResourceID != res.ID {
		return app, res, ev, fmt.Errorf("event %s of resource %s: %w", ev.Slug, res.Slug, store.ErrNotFound)
	}
	return app, res, ev, nil
}

func (s *Server) lookupSubscription(r *http.Request) (domain.Application, domain.Resource, domain.Event, domain.Subscription, error) {
	app, res, ev, err := s.lookupEvent(r)
	if err != nil {
		return app, res, ev, domain.Subscription{}, err
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return app, res, ev, domain.Subscription{}, fmt.Errorf("subscription %q: %w", r.PathValue("id"), store.ErrNotFound)
	}
	sub, err := s.store.Subscription(r.Context(), id)
	if err != nil {
		return app, res, ev, sub, err
	}
	if sub.EventID != ev.ID {
		return app, res, ev, sub, fmt.Errorf("subscription %d of event %s: %w", id, ev.Slug, store.ErrNotFound)
	}
	return app, res, ev, sub, nil
}

// Applications

func (s *Server) listApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.store.ListApplications(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]link, 0, len(apps))
	for _, app := range apps {
		out = append(out, link{Name: app.Slug, URL: applicationURL(app)})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) createApplication(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name      string `json:"name"`
		IsPrivate bool   `json:"is_private"`
	}
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	app, err := s.store.CreateApplication(r.Context(), domain.Application{Name: body.Name, IsPrivate: body.IsPrivate})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("application created", "application", app.Slug)
	created(w, applicationURL(app))
}

func (s *Server) getApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, err := s.lookupApplication(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resources, err := s.store.ListResources(ctx, app.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	events, err := s.store.ListApplicationEvents(ctx, app.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	v := applicationView{
		Name:      app.Slug,
		URL:       applicationURL(app),
		IsPrivate: app.IsPrivate,
		Created:   app.Created,
		Modified:  app.Modified,
	}
	v.Data.Resources = make([]link, 0, len(resources))
	v.Data.Events = make([]link, 0, len(events))

	byID := make(map[int64]domain.Resource, len(resources))
	for _, res := range resources {
		byID[res.ID] = res
		v.Data.Resources = append(v.Data.Resources, link{Name: res.Slug, URL: resourceURL(app, res)})
	}
	for _, ev := range events {
		v.Data.Events = append(v.Data.Events, link{Name: ev.Slug, URL: eventURL(app, byID[ev.ResourceID], ev)})
	}
	s.writeJSON(w, http.StatusOK, v)
}

// Resources

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	app, err := s.lookupApplication(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resources, err := s.store.ListResources(r.Context(), app.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]resourceView, 0, len(resources))
	for _, res := range resources {
		out = append(out, newResourceView(app, res))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	app, err := s.lookupApplication(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Name       string          `json:"name"`
		DataFields json.RawMessage `json:"data_fields"`
	}
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(body.DataFields) == 0 {
		s.writeError(w, r, badRequest("data_fields is required"))
		return
	}
	fields, err := schema.ParseSchema(body.DataFields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.store.CreateResource(r.Context(), domain.Resource{
		ApplicationID: app.ID,
		Name:          body.Name,
		Fields:        fields,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("resource created", "application", app.Slug, "resource", res.Slug)
	created(w, resourceURL(app, res))
}

// Data points

func (s *Server) latestDataPoint(w http.ResponseWriter, r *http.Request) {
	_, res, err := s.lookupResource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dp, err := s.store.LatestDataPoint(r.Context(), res.ID)
	if store.IsNotFound(err) {
		s.writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, latestView{Data: dp.Data, Time: dp.Created})
}

func (s *Server) writeDataPoint(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		s.writeError(w, r, badRequest("read body: %v", err))
		return
	}

	dp, err := s.ingester.ParseAndIngest(r.Context(), r.PathValue("app"), r.PathValue("res"), raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Debug("data point stored", "resource", r.PathValue("res"), "data_point_id", dp.ID)
	w.WriteHeader(http.StatusOK)
}

// Events

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	app, res, err := s.lookupResource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := []eventView{}
	var afterID int64
	for {
		page, err := s.store.ListEvents(r.Context(), res.ID, afterID, listPageSize)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		for _, ev := range page {
			out = append(out, newEventView(app, res, ev))
		}
		if len(page) < listPageSize {
			break
		}
		afterID = page[len(page)-1].ID
	}
	s.writeJSON(w, http.StatusOK, out)
}

type eventBody struct {
	Name      string          `json:"name"`
	Condition json.RawMessage `json:"condition"`
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	app, res, err := s.lookupResource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body eventBody
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(body.Condition) == 0 {
		s.writeError(w, r, badRequest("condition is required"))
		return
	}
	cond, err := condition.Parse(res.Fields, body.Condition)
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}

	ev, err := s.store.CreateEvent(r.Context(), domain.Event{
		ApplicationID: app.ID,
		ResourceID:    res.ID,
		Name:          body.Name,
		Condition:     cond,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("event created", "application", app.Slug, "event", ev.Slug)
	created(w, eventURL(app, res, ev))
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	app, res, ev, err := s.lookupEvent(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newEventView(app, res, ev))
}

// updateEvent changes the name and/or condition. Omitted keys keep their
// current value.
func (s *Server) updateEvent(w http.ResponseWriter, r *http.Request) {
	app, res, ev, err := s.lookupEvent(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body eventBody
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(body.Condition) > 0 {
		ev.Condition, err = condition.Parse(res.Fields, body.Condition)
		if err != nil {
			s.writeError(w, r, badRequest("%v", err))
			return
		}
	}
	if body.Name != "" {
		ev.Name = body.Name
	}

	ev, err = s.store.UpdateEvent(r.Context(), ev)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newEventView(app, res, ev))
}

// Subscriptions

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	app, res, ev, err := s.lookupEvent(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	subs, err := s.store.ListSubscriptions(r.Context(), ev.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]subscriptionView, 0, len(subs))
	for _, sub := range subs {
		out = append(out, newSubscriptionView(app, res, ev, sub))
	}
	s.writeJSON(w, http.StatusOK, out)
}

type subscriptionBody struct {
	NotifyURL string `json:"notify_url"`
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	app, res, ev, err := s.lookupEvent(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body subscriptionBody
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	sub, err := s.store.CreateSubscription(r.Context(), domain.Subscription{EventID: ev.ID, NotifyURL: body.NotifyURL})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("subscription created", "event", ev.Slug, "subscription_id", sub.ID)
	created(w, subscriptionURL(app, res, ev, sub))
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	app, res, ev, sub, err := s.lookupSubscription(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newSubscriptionView(app, res, ev, sub))
}

func (s *Server) updateSubscription(w http.ResponseWriter, r *http.Request) {
	app, res, ev, sub, err := s.lookupSubscription(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body subscriptionBody
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	sub.NotifyURL = body.NotifyURL

	sub, err = s.store.UpdateSubscription(r.Context(), sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newSubscriptionView(app, res, ev, sub))
}

func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	_, _, ev, sub, err := s.lookupSubscription(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteSubscription(r.Context(), sub.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("subscription deleted", "event", ev.Slug, "subscription_id", sub.ID)
	w.WriteHeader(http.StatusOK)
}

// hook is a sink for notifications; it logs what it receives.
func (s *Server) hook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		s.logger.Warn("notification sink read failed", "error", err)
	} else {
		s.logger.Info("notification received",
			"delivery", r.Header.Get(dispatch.HeaderDelivery),
			"body", string(body),
		)
	}
	w.WriteHeader(http.StatusOK)
}
