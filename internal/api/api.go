// Package api wires versiontower's HTTP endpoints to the check workflow.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/api"
	"github.com/nicholas-fedor/versiontower/pkg/api/check"
	metricsAPI "github.com/nicholas-fedor/versiontower/pkg/api/metrics"
	"github.com/nicholas-fedor/versiontower/pkg/api/versions"
	"github.com/nicholas-fedor/versiontower/pkg/metrics"
)

// errStartAPI indicates the HTTP API server could not be started.
var errStartAPI = errors.New("failed to start HTTP API")

// Config selects the endpoints SetupAndStartAPI registers.
type Config struct {
	Host  string
	Port  string
	Token string

	EnableMetrics  bool
	EnableVersions bool
	EnableCheck    bool

	// Lock is shared with the scheduler so check cycles never overlap.
	Lock chan bool
	// Check runs one check cycle; required when EnableCheck is set.
	Check func(ctx context.Context) *metrics.Metric
	// Versions serves the latest report; required when EnableVersions is set.
	Versions *versions.Handler
	// Server replaces the http.Server, for tests.
	Server api.HTTPServer
}

// SetupAndStartAPI registers the enabled endpoints and starts the API server
// in the background. It returns the API so callers can reach its handler.
func SetupAndStartAPI(ctx context.Context, cfg Config) (*api.API, error) {
	address := api.GetAPIAddr(cfg.Host, cfg.Port)

	var httpAPI *api.API
	if cfg.Server != nil {
		httpAPI = api.New(cfg.Token, address, cfg.Server)
	} else {
		httpAPI = api.New(cfg.Token, address)
	}

	if cfg.EnableCheck && cfg.Check != nil {
		checkHandler := check.New(func() *metrics.Metric {
			metric := cfg.Check(ctx)
			metrics.Default().RegisterScan(metric)

			return metric
		}, cfg.Lock)
		httpAPI.RegisterFunc(checkHandler.Path, checkHandler.Handle)
	}

	if cfg.EnableVersions && cfg.Versions != nil {
		httpAPI.RegisterFunc(cfg.Versions.Path, cfg.Versions.Handle)
	}

	if cfg.EnableMetrics {
		metricsHandler := metricsAPI.New()
		httpAPI.RegisterHandler(metricsHandler.Path, metricsHandler.Handle)
	}

	if err := httpAPI.Start(ctx, false); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Error("Failed to start API")

		return nil, fmt.Errorf("%w: %w", errStartAPI, err)
	}

	return httpAPI, nil
}
