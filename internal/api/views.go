package api

import (
	"fmt"
	"net/url"
	"time"

	"github.com/roach88/wot/internal/domain"
)

// link is a named reference to another entity.
type link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type applicationView struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	IsPrivate bool      `json:"is_private"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
	Data      struct {
		Events    []link `json:"events"`
		Resources []link `json:"resource"`
	} `json:"data"`
}

type resourceView struct {
	URL      string    `json:"url"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Data     struct {
		Name        string        `json:"name"`
		DataFields  domain.Schema `json:"data_fields"`
		Application link          `json:"application"`
	} `json:"data"`
}

type eventView struct {
	URL      string    `json:"url"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Data     struct {
		Name        string           `json:"name"`
		Condition   domain.Condition `json:"condition"`
		Resource    link             `json:"resource"`
		Application link             `json:"application"`
	} `json:"data"`
}

type subscriptionView struct {
	ID       int64     `json:"id"`
	URL      string    `json:"url"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Data     struct {
		NotifyURL   string `json:"notify_url"`
		Event       link   `json:"event"`
		Resource    link   `json:"resource"`
		Application link   `json:"application"`
	} `json:"data"`
}

type latestView struct {
	Data domain.Data `json:"data"`
	Time time.Time   `json:"time"`
}

func applicationURL(app domain.Application) string {
	return "/api/" + url.PathEscape(app.Slug)
}

func resourceURL(app domain.Application, res domain.Resource) string {
	return applicationURL(app) + "/resources/" + url.PathEscape(res.Slug)
}

func eventURL(app domain.Application, res domain.Resource, ev domain.Event) string {
	return resourceURL(app, res) + "/events/" + url.PathEscape(ev.Slug)
}

func subscriptionURL(app domain.Application, res domain.Resource, ev domain.Event, sub domain.Subscription) string {
	return fmt.Sprintf("%s/subscriptions/%d", eventURL(app, res, ev), sub.ID)
}

func newResourceView(app domain.Application, res domain.Resource) resourceView {
	v := resourceView{URL: resourceURL(app, res), Created: res.Created, Modified: res.Modified}
	v.Data.Name = res.Slug
	v.Data.DataFields = res.Fields
	v.Data.Application = link{Name: app.Slug, URL: applicationURL(app)}
	return v
}

func newEventView(app domain.Application, res domain.Resource, ev domain.Event) eventView {
	v := eventView{URL: eventURL(app, res, ev), Created: ev.Created, Modified: ev.Modified}
	v.Data.Name = ev.Slug
	v.Data.Condition = ev.Condition
	v.Data.Resource = link{Name: res.Slug, URL: resourceURL(app, res)}
	v.Data.Application = link{Name: app.Slug, URL: applicationURL(app)}
	return v
}

func newSubscriptionView(app domain.Application, res domain.Resource, ev domain.Event, sub domain.Subscription) subscriptionView {
	v := subscriptionView{
		ID:       sub.ID,
		URL:      subscriptionURL(app, res, ev, sub),
		Created:  sub.Created,
		Modified: sub.Modified,
	}
	v.Data.NotifyURL = sub.NotifyURL
	v.Data.Event = link{Name: ev.Slug, URL: eventURL(app, res, ev)}
	v.Data.Resource = link{Name: res.Slug, URL: resourceURL(app, res)}
	v.Data.Application = link{Name: app.Slug, URL: applicationURL(app)}
	return v
}
