// Package catalog compiles CUE catalog files into applications, resources,
// events and subscriptions, and applies them to the store.
//
// A catalog looks like:
//
//	application: greenhouse: {
//		name: "Greenhouse"
//		resource: sensor: {
//			name: "Sensor"
//			fields: {temp: "float"}
//		}
//		event: "too-hot": {
//			name:      "Too Hot"
//			resource:  "sensor"
//			condition: [["temp", "gt", 100]]
//			subscriptions: ["http://localhost:8000/hook"]
//		}
//	}
//
// Labels are the slugs the store addresses entities by.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/wot/internal/condition"
	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/schema"
	"github.com/roach88/wot/internal/slug"
)

//go:embed schema.cue
var schemaCUE string

// Catalog is a compiled set of application definitions.
type Catalog struct {
	Applications []Application
	FileCount    int
}

// Application is one application with everything it owns.
type Application struct {
	Slug      string
	Name      string
	IsPrivate bool
	Resources []Resource
	Events    []Event
}

// Resource is a resource definition.
type Resource struct {
	Slug   string
	Name   string
	Fields domain.Schema
}

// Event is an event definition. Resource is the slug of a resource of the
// same application.
type Event struct {
	Slug          string
	Name          string
	Resource      string
	Condition     domain.Condition
	Subscriptions []string
}

// LoadMode controls how errors are handled during compilation.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load compiles every CUE file in dir.
func Load(dir string, mode LoadMode) (*Catalog, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{&CompileError{Message: fmt.Sprintf("catalog directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&CompileError{Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, []error{&CompileError{Message: fmt.Sprintf("scanning %s: %v", dir, err)}}
	}
	if len(files) == 0 {
		return nil, []error{&CompileError{Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&CompileError{Message: "no CUE instances loaded"}}
	}
	if inst := instances[0]; inst.Err != nil {
		return nil, formatCUEErrors(inst.Err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(instances[0])
	cat, errs := Compile(v, mode)
	if cat != nil {
		cat.FileCount = len(files)
	}
	return cat, errs
}

// CompileString compiles catalog source held in memory.
func CompileString(src string, mode LoadMode) (*Catalog, []error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileString(src, cue.Filename("catalog.cue")), mode)
}

// Compile checks v against the catalog shape and decodes it.
func Compile(v cue.Value, mode LoadMode) (*Catalog, []error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEErrors(err)
	}

	def := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Catalog"))
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEErrors(err)
	}

	c := &compiler{mode: mode}
	cat := &Catalog{}

	apps := v.LookupPath(cue.ParsePath("application"))
	if !apps.Exists() {
		return cat, nil
	}
	iter, err := apps.Fields()
	if err != nil {
		return nil, formatCUEErrors(err)
	}
	for iter.Next() {
		app, ok := c.application(iter.Label(), iter.Value())
		if ok {
			cat.Applications = append(cat.Applications, app)
		}
		if c.stop() {
			break
		}
	}
	return cat, c.errs
}

type compiler struct {
	mode LoadMode
	errs []error
}

func (c *compiler) fail(path string, pos cue.Value, format string, args ...any) {
	c.errs = append(c.errs, &CompileError{
		Path:    path,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos.Pos(),
	})
}

func (c *compiler) stop() bool {
	return c.mode == LoadModeFailFast && len(c.errs) > 0
}

func (c *compiler) application(label string, v cue.Value) (Application, bool) {
	path := "application." + label
	if !c.checkSlug(path, label, v) {
		return Application{}, false
	}

	app := Application{Slug: label}
	app.Name, _ = v.LookupPath(cue.ParsePath("name")).String()
	if p := v.LookupPath(cue.ParsePath("is_private")); p.Exists() {
		app.IsPrivate, _ = p.Bool()
	}

	schemas := map[string]domain.Schema{}
	if res := v.LookupPath(cue.ParsePath("resource")); res.Exists() {
		iter, _ := res.Fields()
		for iter.Next() {
			r, ok := c.resource(path+".resource."+iter.Label(), iter.Label(), iter.Value())
			if ok {
				app.Resources = append(app.Resources, r)
				schemas[r.Slug] = r.Fields
			}
			if c.stop() {
				return Application{}, false
			}
		}
	}

	if evs := v.LookupPath(cue.ParsePath("event")); evs.Exists() {
		iter, _ := evs.Fields()
		for iter.Next() {
			ev, ok := c.event(path+".event."+iter.Label(), iter.Label(), iter.Value(), schemas)
			if ok {
				app.Events = append(app.Events, ev)
			}
			if c.stop() {
				return Application{}, false
			}
		}
	}
	return app, true
}

func (c *compiler) resource(path, label string, v cue.Value) (Resource, bool) {
	if !c.checkSlug(path, label, v) {
		return Resource{}, false
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	raw, err := fieldsVal.MarshalJSON()
	if err != nil {
		c.fail(path+".fields", fieldsVal, "%v", err)
		return Resource{}, false
	}
	fields, err := schema.ParseSchema(raw)
	if err != nil {
		c.fail(path+".fields", fieldsVal, "%v", err)
		return Resource{}, false
	}

	name, _ := v.LookupPath(cue.ParsePath("name")).String()
	return Resource{Slug: label, Name: name, Fields: fields}, true
}

func (c *compiler) event(path, label string, v cue.Value, schemas map[string]domain.Schema) (Event, bool) {
	if !c.checkSlug(path, label, v) {
		return Event{}, false
	}

	ev := Event{Slug: label}
	ev.Name, _ = v.LookupPath(cue.ParsePath("name")).String()

	resVal := v.LookupPath(cue.ParsePath("resource"))
	ev.Resource, _ = resVal.String()
	s, ok := schemas[ev.Resource]
	if !ok {
		c.fail(path+".resource", resVal, "unknown resource %q", ev.Resource)
		return Event{}, false
	}

	if condVal := v.LookupPath(cue.ParsePath("condition")); condVal.Exists() {
		raw, err := condVal.MarshalJSON()
		if err != nil {
			c.fail(path+".condition", condVal, "%v", err)
			return Event{}, false
		}
		ev.Condition, err = condition.Parse(s, raw)
		if err != nil {
			c.fail(path+".condition", condVal, "%v", err)
			return Event{}, false
		}
	}

	if subsVal := v.LookupPath(cue.ParsePath("subscriptions")); subsVal.Exists() {
		iter, _ := subsVal.List()
		for iter.Next() {
			u, _ := iter.Value().String()
			if err := domain.ValidateNotifyURL(u); err != nil {
				c.fail(path+".subscriptions", iter.Value(), "%v", err)
				return Event{}, false
			}
			ev.Subscriptions = append(ev.Subscriptions, u)
		}
	}
	return ev, true
}

func (c *compiler) checkSlug(path, label string, v cue.Value) bool {
	if slug.Make(label) != label {
		c.fail(path, v, "label %q is not a slug (lowercase letters, digits and dashes)", label)
		return false
	}
	return true
}
