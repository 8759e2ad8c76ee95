package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wot/internal/dispatch"
	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/testutil"
)

type reportResponse struct {
	Status string         `json:"status"`
	Data   DeliveryReport `json:"data"`
	Error  *CLIError      `json:"error"`
}

// loaded returns a config path for a database holding the test catalog.
func loaded(t *testing.T, hookURL string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := writeConfig(t, dir, filepath.Join(dir, "wot.db"))
	_, err := execute(t, "load", writeCatalog(t, dir, hookURL), "--config", cfg)
	require.NoError(t, err)
	return cfg
}

func TestIngest_DeliversAndReports(t *testing.T) {
	hooks := testutil.NewWebhookRecorder(t, nil)
	cfg := loaded(t, hooks.URL("/hook"))

	out, err := execute(t, "ingest", "greenhouse", "sensor", `{"temp": "101.5"}`, "--config", cfg, "--format", "json")
	require.NoError(t, err)

	var resp reportResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(1), resp.Data.DataPoint.ID)
	assert.Equal(t, domain.String("101.5"), resp.Data.DataPoint.Data["temp"])
	require.Len(t, resp.Data.Jobs, 1)
	assert.Equal(t, domain.JobDelivered, resp.Data.Jobs[0].State)
	assert.Equal(t, 200, resp.Data.Jobs[0].StatusCode)

	got := hooks.Deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, resp.Data.Jobs[0].ID, got[0].Header.Get(dispatch.HeaderDelivery))
	assert.JSONEq(t,
		`{"name":"too-hot","application":"greenhouse","resource":{"name":"sensor","data":{"temp":"101.5"}}}`,
		string(got[0].Body))
}

func TestIngest_UnsatisfiedSendsNothing(t *testing.T) {
	hooks := testutil.NewWebhookRecorder(t, nil)
	cfg := loaded(t, hooks.URL("/hook"))

	out, err := execute(t, "ingest", "greenhouse", "sensor", `{"temp": 20}`, "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "data point 1 stored for greenhouse/sensor\nno notifications\n", out)
	assert.Empty(t, hooks.Deliveries())
}

func TestIngest_Rejections(t *testing.T) {
	hooks := testutil.NewWebhookRecorder(t, nil)
	cfg := loaded(t, hooks.URL("/hook"))

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"type mismatch", []string{"greenhouse", "sensor", `{"temp": "abc"}`}, ErrCodeSchema},
		{"unknown field", []string{"greenhouse", "sensor", `{"color": "red"}`}, ErrCodeSchema},
		{"not json", []string{"greenhouse", "sensor", `{temp`}, ErrCodeInvalid},
		{"unknown resource", []string{"greenhouse", "attic", `{}`}, ErrCodeNotFound},
		{"unknown application", []string{"barn", "sensor", `{}`}, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"ingest"}, tt.args...)
			args = append(args, "--config", cfg, "--format", "json")
			out, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			var resp reportResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
	assert.Empty(t, hooks.Deliveries())
}

func TestReplay_DoesNotResend(t *testing.T) {
	hooks := testutil.NewWebhookRecorder(t, nil)
	cfg := loaded(t, hooks.URL("/hook"))

	_, err := execute(t, "ingest", "greenhouse", "sensor", `{"temp": 150}`, "--config", cfg)
	require.NoError(t, err)
	require.Len(t, hooks.Deliveries(), 1)

	out, err := execute(t, "replay", "1", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "data point 1 replayed\n")
	assert.Contains(t, out, "delivered")
	assert.Len(t, hooks.Deliveries(), 1)
}

func TestReplay_Errors(t *testing.T) {
	cfg := loaded(t, "http://localhost:9/hook")

	_, err := execute(t, "replay", "abc", "--config", cfg)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "replay", "0", "--config", cfg)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := execute(t, "replay", "99", "--config", cfg)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_NOT_FOUND]: data point 99 not found")
}

func TestDeliveries_ShowsFailedJob(t *testing.T) {
	hooks := testutil.NewWebhookRecorder(t, nil)
	hooks.RespondWith("/hook", 503)
	cfg := loaded(t, hooks.URL("/hook"))

	_, err := execute(t, "ingest", "greenhouse", "sensor", `{"temp": 150}`, "--config", cfg)
	require.NoError(t, err)

	out, err := execute(t, "deliveries", "1", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "503")

	_, err = execute(t, "deliveries", "2", "--config", cfg)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestPrune_EmptyLog(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, filepath.Join(dir, "wot.db"))

	out, err := execute(t, "prune", "--config", cfg, "--max-age", "1h")
	require.NoError(t, err)
	assert.Equal(t, "0 job(s) older than 1h0m0s removed\n", out)
}
