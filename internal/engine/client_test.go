package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/daryltucker/kvharness/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckHealth(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Server.HealthURL = srv.URL + "/health"
	e := New(cfg)

	require.NoError(t, e.CheckHealth(context.Background()))

	status = http.StatusServiceUnavailable
	err := e.CheckHealth(context.Background())
	assert.ErrorIs(t, err, ErrServerUnavailable)
}

func TestCheckHealth_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/health"
	srv.Close()

	cfg := config.DefaultConfig()
	cfg.Server.HealthURL = url
	err := New(cfg).CheckHealth(context.Background())
	assert.ErrorIs(t, err, ErrServerUnavailable)
}

func TestGetModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"meta-llama/Llama-3.1-8B-Instruct","object":"model"}]}`))
	}))
	defer srv.Close()

	models, err := New(config.DefaultConfig()).GetModels(context.Background(), srv.URL+"/v1/models")
	require.NoError(t, err)
	assert.Equal(t, []string{"meta-llama/Llama-3.1-8B-Instruct"}, models)
}
