package cli

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_AppliesCatalogAndStops(t *testing.T) {
	dir := t.TempDir()
	root := &RootOptions{
		Format: "text",
		Config: writeConfig(t, dir, filepath.Join(dir, "wot.db")),
	}
	ready := make(chan net.Addr, 1)
	opts := &ServeOptions{
		RootOptions: root,
		Addr:        "127.0.0.1:0",
		Catalog:     writeCatalog(t, dir, "http://localhost:9/hook"),
		Ready:       func(addr net.Addr) { ready <- addr },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := NewServeCommand(root)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- runServe(opts, cmd) }()

	var addr net.Addr
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr.String() + "/api/applications")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"greenhouse"`)

	resp, err = http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Contains(t, out.String(), "Listening on 127.0.0.1:")
}

func TestServe_BadAddr(t *testing.T) {
	dir := t.TempDir()
	root := &RootOptions{
		Format: "text",
		Config: writeConfig(t, dir, filepath.Join(dir, "wot.db")),
	}
	opts := &ServeOptions{RootOptions: root, Addr: "256.0.0.1:bad"}

	cmd := NewServeCommand(root)
	cmd.SetOut(io.Discard)
	cmd.SetContext(context.Background())

	err := runServe(opts, cmd)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
