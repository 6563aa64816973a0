package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventually = 2 * time.Second
	tick       = 5 * time.Millisecond
)

func newTestKernel(t *testing.T) (*kernel, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	k, err := newKernel(DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), reg)
	require.NoError(t, err)

	srv := httptest.NewServer(k.router(reg))
	t.Cleanup(srv.Close)
	return k, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func fetch(url string) (int, string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), err
}

func TestServe_Probe(t *testing.T) {
	k, srv := newTestKernel(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("when probing a session, the demo widgets are listed", func(t *testing.T) {
		var out bytes.Buffer
		err := probe(context.Background(), &out, probeOptions{url: wsURL(srv), timeout: 5 * time.Second}, logger)
		require.NoError(t, err)

		text := out.String()
		assert.Contains(t, text, "MODEL ID")
		for _, name := range []string{"VBoxModel", "IntSliderModel", "TextModel", "LayoutModel", "SliderStyleModel", "DescriptionStyleModel"} {
			assert.Contains(t, text, name)
		}
	})

	t.Run("when asking for json, states are printed as is", func(t *testing.T) {
		var out bytes.Buffer
		err := probe(context.Background(), &out, probeOptions{url: wsURL(srv), timeout: 5 * time.Second, json: true}, logger)
		require.NoError(t, err)

		var states map[string]map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &states))

		var slider map[string]any
		for _, state := range states {
			if state["_model_name"] == "IntSliderModel" {
				slider = state
			}
		}
		require.NotNil(t, slider)
		assert.Equal(t, "value", slider["description"])
		assert.EqualValues(t, 100, slider["max"])
	})

	t.Run("when sessions end, they are not counted anymore", func(t *testing.T) {
		require.Eventually(t, func() bool {
			return k.sessions.Load() == 0
		}, eventually, tick)
	})

	t.Run("when the kernel is unreachable, probe fails", func(t *testing.T) {
		var out bytes.Buffer
		err := probe(context.Background(), &out, probeOptions{url: "ws://127.0.0.1:1/ws", timeout: time.Second}, logger)
		assert.Error(t, err)
		assert.Empty(t, out.String())
	})
}

func TestServe_Endpoints(t *testing.T) {
	_, srv := newTestKernel(t)

	var out bytes.Buffer
	err := probe(context.Background(), &out, probeOptions{url: wsURL(srv), timeout: 5 * time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	t.Run("when checking health, the kernel reports ok", func(t *testing.T) {
		code, body, err := fetch(srv.URL + "/healthz")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, code)

		var health map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &health))
		assert.Equal(t, "ok", health["status"])
		assert.Contains(t, health, "sessions")
	})

	t.Run("when scraping, widget and comm metrics are exposed", func(t *testing.T) {
		// The resync is counted once the reply is sent.
		require.Eventually(t, func() bool {
			code, body, err := fetch(srv.URL + "/metrics")
			return err == nil && code == http.StatusOK &&
				strings.Contains(body, "ipywire_widget_registered_count") &&
				strings.Contains(body, "ipywire_widget_resync_count")
		}, eventually, tick)
	})
}

func TestRootCommand(t *testing.T) {
	t.Run("when asking for the version, build information is printed", func(t *testing.T) {
		SetVersion("1.2.3", "abcdef", "today")
		t.Cleanup(func() { SetVersion("dev", "none", "unknown") })

		var stdout, stderr bytes.Buffer
		root := NewRootCommand(&stdout, &stderr)
		root.SetArgs([]string{"version"})
		require.NoError(t, root.ExecuteContext(context.Background()))
		assert.Contains(t, stdout.String(), "ipywire 1.2.3")
		assert.Contains(t, stdout.String(), "commit: abcdef")
	})

	t.Run("when the log level is invalid, the command fails", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		root := NewRootCommand(&stdout, &stderr)
		root.SetArgs([]string{"--log-level", "loud", "version"})
		assert.ErrorContains(t, root.ExecuteContext(context.Background()), "invalid --log-level")
	})

	t.Run("when probe has no target, the command fails", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		root := NewRootCommand(&stdout, &stderr)
		root.SetArgs([]string{"probe"})
		assert.ErrorContains(t, root.ExecuteContext(context.Background()), "--url")
	})

	t.Run("when serve has nothing to listen on, the command fails", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		root := NewRootCommand(&stdout, &stderr)
		root.SetArgs([]string{"serve", "--listen", ""})
		assert.ErrorIs(t, root.ExecuteContext(context.Background()), ErrInvalidConfig)
	})
}
