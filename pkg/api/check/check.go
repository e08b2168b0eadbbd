// Package check triggers version check cycles over the HTTP API.
package check

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/metrics"
)

// Handler runs a version check cycle on request.
type Handler struct {
	fn   func() *metrics.Metric // Runs one cycle.
	Path string                 // API endpoint path.
	lock chan bool              // Shared with the scheduler so cycles never overlap.
}

// New creates a handler for /v1/check.
//
// checkLock is shared with the scheduler; when nil a private lock is created.
func New(checkFn func() *metrics.Metric, checkLock chan bool) *Handler {
	lock := checkLock
	if lock == nil {
		lock = make(chan bool, 1)
		lock <- true
	}

	return &Handler{
		fn:   checkFn,
		Path: "/v1/check",
		lock: lock,
	}
}

// Handle runs a cycle and responds with its summary.
//
// When another cycle is already running it responds 429 without waiting,
// since the running cycle produces the same results.
func (handle *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	logrus.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Info("Received HTTP API check request")

	if _, err := io.Copy(io.Discard, r.Body); err != nil {
		logrus.WithError(err).Debug("Failed to read request body")
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)

		return
	}

	select {
	case chanValue := <-handle.lock:
		defer func() { handle.lock <- chanValue }()
	default:
		logrus.Debug("Skipped check, another check already in progress")

		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "another check is already running",
			"api_version": "v1",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		})

		return
	}

	startTime := time.Now()
	metric := handle.fn()
	duration := time.Since(startTime)

	summary := map[string]any{}
	if metric != nil {
		summary = map[string]any{
			"scanned": metric.Scanned,
			"fresh":   metric.Fresh,
			"stale":   metric.Stale,
			"unknown": metric.Unknown,
			"failed":  metric.Failed,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary": summary,
		"timing": map[string]any{
			"duration_ms": duration.Milliseconds(),
			"duration":    duration.String(),
		},
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"api_version": "v1",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	var buf bytes.Buffer

	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		logrus.WithError(err).Error("Failed to encode JSON response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(buf.Bytes()); err != nil {
		logrus.WithError(err).Error("Failed to write response")
	}
}
