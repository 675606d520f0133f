package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/dataset"
)

// SnapshotSource exposes the published dataset snapshot. *dataset.Store
// satisfies it.
type SnapshotSource interface {
	Current() *dataset.Snapshot
}

// Reloader rebuilds the dataset. *worker.ReloadJob satisfies it.
type Reloader interface {
	Run(ctx context.Context) (*dataset.Snapshot, error)
}

// DatasetHandler handles dataset inspection and administration.
type DatasetHandler struct {
	snapshots SnapshotSource
	reloader  Reloader
	logger    zerolog.Logger
}

// NewDatasetHandler creates a new DatasetHandler. reloader may be nil, in
// which case reload requests fail with 503.
func NewDatasetHandler(snapshots SnapshotSource, reloader Reloader, logger zerolog.Logger) *DatasetHandler {
	return &DatasetHandler{snapshots: snapshots, reloader: reloader, logger: logger}
}

// GetDataset handles GET /v1/dataset - describe the active snapshot.
func (h *DatasetHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Current()
	if snap == nil {
		response.ServiceUnavailableRetryAfter(w, r, "crime dataset is not loaded yet", datasetRetryAfterSeconds)
		return
	}
	response.JSON(w, r, http.StatusOK, toDatasetInfo(snap))
}

// ReloadDataset handles POST /v1/admin/dataset:reload - rebuild the dataset
// from its source. The previous snapshot keeps serving if the reload fails.
func (h *DatasetHandler) ReloadDataset(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		response.ServiceUnavailable(w, r, "dataset reload is not available")
		return
	}

	var previous int64
	if snap := h.snapshots.Current(); snap != nil {
		previous = snap.Version
	}

	subject := middleware.GetSubject(r.Context())
	snap, err := h.reloader.Run(r.Context())
	if err != nil {
		h.logger.Error().Err(err).
			Str("subject", subject).
			Int64("active_version", previous).
			Msg("admin dataset reload failed")
		response.InternalError(w, r, "dataset reload failed; the previous snapshot remains active")
		return
	}

	h.logger.Info().
		Str("subject", subject).
		Int64("previous_version", previous).
		Int64("version", snap.Version).
		Int("records", snap.Records).
		Msg("admin dataset reload completed")

	response.JSON(w, r, http.StatusOK, models.DatasetReloadResponse{
		PreviousVersion: previous,
		Dataset:         toDatasetInfo(snap),
	})
}
