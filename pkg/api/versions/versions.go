// Package versions serves the version information of the last check cycle.
package versions

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// Handler holds the last cycle's version information and serves it as JSON.
type Handler struct {
	Path string

	mu    sync.RWMutex
	infos []types.VersionInfo
}

// New creates an empty handler for /v1/versions.
func New() *Handler {
	return &Handler{
		Path:  "/v1/versions",
		infos: []types.VersionInfo{},
	}
}

// Update replaces the served information with the images of report.
// Failed images are included with whatever partial information they carry.
func (h *Handler) Update(report types.Report) {
	if report == nil {
		return
	}

	scanned := report.All()
	infos := make([]types.VersionInfo, 0, len(scanned))

	for _, image := range scanned {
		infos = append(infos, image.Version())
	}

	h.mu.Lock()
	h.infos = infos
	h.mu.Unlock()

	logrus.WithField("images", len(infos)).Debug("Updated served version information")
}

// Versions returns a copy of the served information.
func (h *Handler) Versions() []types.VersionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]types.VersionInfo(nil), h.infos...)
}

// Handle writes the served information as a JSON array.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

		return
	}

	infos := h.Versions()
	if infos == nil {
		infos = []types.VersionInfo{}
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(infos); err != nil {
		logrus.WithError(err).Error("Failed to write version information")
	}
}
