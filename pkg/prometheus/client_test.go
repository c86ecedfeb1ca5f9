package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantErr  bool
		wantPath string
	}{
		{name: "server disabled", cfg: Config{}},
		{
			name:     "fills defaults",
			cfg:      Config{HTTPServer: HTTPServerConfig{Enabled: true, Addr: ":0"}},
			wantPath: "/metrics",
		},
		{
			name:    "missing addr",
			cfg:     Config{HTTPServer: HTTPServerConfig{Enabled: true}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, tt.cfg.HTTPServer.Path)
		})
	}
}

func TestClientRegistryAndHandler(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	assert.False(t, c.Config().HTTPServer.Enabled)

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "proctor_test_total", Help: "test"})
	c.Registry().MustRegister(counter)
	counter.Inc()

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "proctor_test_total 1")
	assert.Contains(t, w.Body.String(), "go_goroutines")

	require.NoError(t, c.Start(), "start is a no-op when the server is disabled")
	assert.Nil(t, c.Addr())
	require.NoError(t, c.Close())
	assert.True(t, c.IsClosed())
}

func TestClientStandaloneServer(t *testing.T) {
	c, err := New(&Config{
		HTTPServer: HTTPServerConfig{Enabled: true, Addr: "127.0.0.1:0", Path: "/custom"},
	})
	require.NoError(t, err)
	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Start(), ErrServerStarted)

	resp, err := http.Get("http://" + c.Addr().String() + "/custom")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "go_goroutines", "collectors are disabled")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.GracefulStop(ctx))

	_, err = http.Get("http://" + c.Addr().String() + "/custom")
	assert.Error(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Start(), ErrClientClosed)
}
