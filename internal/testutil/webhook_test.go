package testutil

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookRecorder_RecordsInOrder(t *testing.T) {
	rec := NewWebhookRecorder(t, nil)
	rec.RespondWith("/down", http.StatusServiceUnavailable)

	for _, p := range []string{"/a", "/down", "/b"} {
		resp, err := http.Post(rec.URL(p), "application/json", strings.NewReader(`{"p":"`+p+`"}`))
		require.NoError(t, err)
		resp.Body.Close()
		if p == "/down" {
			assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		} else {
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
	}

	assert.Equal(t, []string{"/a", "/down", "/b"}, rec.Paths())
	d := rec.Deliveries()
	require.Len(t, d, 3)
	assert.Equal(t, `{"p":"/a"}`, string(d[0].Body))
	assert.Equal(t, "application/json", d[0].Header.Get("Content-Type"))
}
