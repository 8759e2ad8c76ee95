package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig writes a config with a fast dispatcher and returns its path.
func writeConfig(t *testing.T, dir, dbPath string) string {
	t.Helper()
	content := fmt.Sprintf(`database:
  path: %s
dispatch:
  pacing: 1ms
  timeout: 2s
`, dbPath)
	path := filepath.Join(dir, "wot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeCatalog writes a one-application catalog whose event notifies hookURL.
func writeCatalog(t *testing.T, dir, hookURL string) string {
	t.Helper()
	catDir := filepath.Join(dir, "catalog")
	require.NoError(t, os.MkdirAll(catDir, 0o755))
	src := fmt.Sprintf(`package catalog

application: greenhouse: {
	name: "Greenhouse"
	resource: sensor: {
		name: "Sensor"
		fields: temp: "float"
	}
	event: "too-hot": {
		name:     "Too Hot"
		resource: "sensor"
		condition: [["temp", "gt", 100]]
		subscriptions: [%q]
	}
}
`, hookURL)
	require.NoError(t, os.WriteFile(filepath.Join(catDir, "greenhouse.cue"), []byte(src), 0o644))
	return catDir
}
