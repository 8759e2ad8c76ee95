package domain

import (
	"fmt"
	"net/url"
	"time"
)

// Application owns resources and events.
type Application struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	IsPrivate bool      `json:"is_private" db:"is_private"`
	Created   time.Time `json:"created" db:"created"`
	Modified  time.Time `json:"modified" db:"modified"`
}

// Resource is a named, schema-typed stream of data points.
type Resource struct {
	ID            int64     `json:"id" db:"id"`
	ApplicationID int64     `json:"application_id" db:"application_id"`
	Name          string    `json:"name" db:"name"`
	Slug          string    `json:"slug" db:"slug"`
	Fields        Schema    `json:"data_fields" db:"fields"`
	Created       time.Time `json:"created" db:"created"`
	Modified      time.Time `json:"modified" db:"modified"`
}

// DataPoint is one validated, timestamped observation of a resource.
type DataPoint struct {
	ID         int64     `json:"id" db:"id"`
	ResourceID int64     `json:"resource_id" db:"resource_id"`
	Data       Data      `json:"data" db:"data"`
	Created    time.Time `json:"created" db:"created"`
}

// Event is a named condition over a resource's data, owned by an application.
type Event struct {
	ID            int64     `json:"id" db:"id"`
	ApplicationID int64     `json:"application_id" db:"application_id"`
	ResourceID    int64     `json:"resource_id" db:"resource_id"`
	Name          string    `json:"name" db:"name"`
	Slug          string    `json:"slug" db:"slug"`
	Condition     Condition `json:"condition" db:"condition"`
	Created       time.Time `json:"created" db:"created"`
	Modified      time.Time `json:"modified" db:"modified"`
}

// Subscription is a webhook URL notified when its event fires.
type Subscription struct {
	ID        int64     `json:"id" db:"id"`
	EventID   int64     `json:"event_id" db:"event_id"`
	NotifyURL string    `json:"notify_url" db:"notify_url"`
	Created   time.Time `json:"created" db:"created"`
	Modified  time.Time `json:"modified" db:"modified"`
}

// JobState is the delivery state of a notification job.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobDelivering JobState = "delivering"
	JobDelivered  JobState = "delivered"
	JobFailed     JobState = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobState) Terminal() bool {
	return s == JobDelivered || s == JobFailed
}

// CanTransition reports whether a job may move from s to next.
// delivering -> queued is the retry path and is only taken while attempts remain.
func (s JobState) CanTransition(next JobState) bool {
	switch s {
	case JobQueued:
		return next == JobDelivering
	case JobDelivering:
		return next == JobDelivered || next == JobFailed || next == JobQueued
	default:
		return false
	}
}

// NotificationJob is one webhook delivery for a (data point, event,
// subscription) triple.
type NotificationJob struct {
	ID             string    `json:"id" db:"id"`
	DataPointID    int64     `json:"data_point_id" db:"data_point_id"`
	EventID        int64     `json:"event_id" db:"event_id"`
	SubscriptionID int64     `json:"subscription_id" db:"subscription_id"`
	State          JobState  `json:"state" db:"state"`
	Attempts       int       `json:"attempts" db:"attempts"`
	StatusCode     int       `json:"status_code,omitempty" db:"status_code"`
	LastError      string    `json:"last_error,omitempty" db:"last_error"`
	Created        time.Time `json:"created" db:"created"`
	Updated        time.Time `json:"updated" db:"updated"`
}

// Notification is the webhook body sent to subscribers.
type Notification struct {
	Name        string               `json:"name"`
	Application string               `json:"application"`
	Resource    NotificationResource `json:"resource"`
}

// NotificationResource carries the resource name and the triggering data.
type NotificationResource struct {
	Name string `json:"name"`
	Data Data   `json:"data"`
}

// NewNotification builds the webhook body for an event firing.
func NewNotification(app Application, res Resource, ev Event, dp DataPoint) Notification {
	data := dp.Data
	if data == nil {
		data = Data{}
	}
	return Notification{
		Name:        ev.Slug,
		Application: app.Slug,
		Resource: NotificationResource{
			Name: res.Slug,
			Data: data,
		},
	}
}

// ValidateNotifyURL checks that a subscription callback is an absolute
// http or https URL.
func ValidateNotifyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid notify_url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid notify_url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid notify_url %q: host is required", raw)
	}
	return nil
}
