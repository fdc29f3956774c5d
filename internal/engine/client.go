/*
PURPOSE:
  HTTP side of the harness: the pre-flight health probe and model discovery
  against the OpenAI-compatible inference server.

REQUIREMENTS:
  User-specified:
  - One liveness check before a sweep; non-2xx or connection failure means
    "server not running".
  - No polling, no backoff.

  Implementation-discovered:
  - Listing /v1/models lets the sweep warn when the served model is not the
    one being benchmarked.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go, internal/cli (models)
  - Uses: internal/config

ERROR HANDLING:
  - Probe failures are wrapped in ErrServerUnavailable so the CLI can print
    start-the-server guidance.

IMPLEMENTATION RULES:
  - Use net/http with an explicit timeout.
  - Every request carries the caller's context.

USAGE:
  e := engine.New(cfg)
  err := e.CheckHealth(ctx)
  models, err := e.GetModels(ctx, cfg.Server.ModelsURL)

SELF-HEALING INSTRUCTIONS:
  - If the server moves its health route, update server.health_url, not code.

RELATED FILES:
  - internal/config/config.go

MAINTENANCE:
  - Update for new server API features.
*/

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/daryltucker/kvharness/internal/config"
)

// ErrServerUnavailable marks a failed pre-flight probe.
var ErrServerUnavailable = errors.New("inference server is not reachable")

// Engine handles server interactions.
type Engine struct {
	Config *config.Config
	Client *http.Client
}

// New creates a new Engine.
func New(cfg *config.Config) *Engine {
	return &Engine{
		Config: cfg,
		Client: &http.Client{
			Timeout: cfg.Server.ProbeTimeout,
		},
	}
}

// CheckHealth issues a single GET against the configured health endpoint.
func (e *Engine) CheckHealth(ctx context.Context) error {
	url := e.Config.Server.HealthURL
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrServerUnavailable, url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: GET %s: %s", ErrServerUnavailable, url, resp.Status)
	}
	return nil
}

// GetModels returns the model ids served at url (an OpenAI /v1/models endpoint).
func (e *Engine) GetModels(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}

	names := make([]string, 0, len(payload.Data))
	for _, m := range payload.Data {
		names = append(names, m.ID)
	}
	return names, nil
}
