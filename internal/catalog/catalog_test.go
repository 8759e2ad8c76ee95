package catalog

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wot/internal/domain"
)

func TestLoad_Directory(t *testing.T) {
	cat, errs := Load(filepath.Join("testdata", "greenhouse"), LoadModeCollectAll)
	require.Empty(t, errs)
	require.NotNil(t, cat)

	assert.Equal(t, 2, cat.FileCount)
	require.Len(t, cat.Applications, 2)

	var gh Application
	for _, a := range cat.Applications {
		if a.Slug == "greenhouse" {
			gh = a
		}
	}
	assert.Equal(t, "Greenhouse", gh.Name)
	require.Len(t, gh.Resources, 1)
	assert.Equal(t, domain.Schema{
		{Name: "temp", Type: domain.TypeFloat},
		{Name: "label", Type: domain.TypeString},
	}, gh.Resources[0].Fields)

	require.Len(t, gh.Events, 1)
	ev := gh.Events[0]
	assert.Equal(t, "too-hot", ev.Slug)
	assert.Equal(t, "sensor", ev.Resource)
	assert.Equal(t, domain.Condition{{Field: "temp", Operator: domain.OpGt, Literal: domain.Int(100)}}, ev.Condition)
	assert.Equal(t, []string{"http://localhost:8000/hook", "http://localhost:8001/hook"}, ev.Subscriptions)
}

func TestLoad_Errors(t *testing.T) {
	_, errs := Load(filepath.Join("testdata", "missing"), LoadModeFailFast)
	require.Len(t, errs, 1)

	_, errs = Load(filepath.Join("testdata", "broken"), LoadModeCollectAll)
	require.NotEmpty(t, errs)
	var ce *CompileError
	require.True(t, errors.As(errs[0], &ce))
	assert.True(t, ce.Pos.IsValid())
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "unknown key",
			src:  `application: a: {name: "A", resourse: {}}`,
		},
		{
			name: "bad label",
			src:  `application: "Not A Slug": {name: "A"}`,
		},
		{
			name: "unknown resource",
			src: `application: a: {
				name: "A"
				event: e: {name: "E", resource: "nope"}
			}`,
		},
		{
			name: "undeclared condition field",
			src: `application: a: {
				name: "A"
				resource: r: {name: "R", fields: {temp: "float"}}
				event: e: {name: "E", resource: "r", condition: [["humidity", "gt", 1]]}
			}`,
		},
		{
			name: "unknown operator",
			src: `application: a: {
				name: "A"
				resource: r: {name: "R", fields: {temp: "float"}}
				event: e: {name: "E", resource: "r", condition: [["temp", "between", 1]]}
			}`,
		},
		{
			name: "bad subscription url",
			src: `application: a: {
				name: "A"
				resource: r: {name: "R", fields: {temp: "float"}}
				event: e: {name: "E", resource: "r", subscriptions: ["ftp://x"]}
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := CompileString(tt.src, LoadModeCollectAll)
			assert.NotEmpty(t, errs)
		})
	}
}

func TestCompile_FailFastStopsAtFirst(t *testing.T) {
	src := `application: a: {
		name: "A"
		resource: r: {name: "R", fields: {temp: "float"}}
		event: e1: {name: "E1", resource: "x"}
		event: e2: {name: "E2", resource: "y"}
	}`

	_, errs := CompileString(src, LoadModeFailFast)
	assert.Len(t, errs, 1)

	_, errs = CompileString(src, LoadModeCollectAll)
	assert.Len(t, errs, 2)
}

func TestCompile_Empty(t *testing.T) {
	cat, errs := CompileString(``, LoadModeCollectAll)
	require.Empty(t, errs)
	assert.Empty(t, cat.Applications)
}
