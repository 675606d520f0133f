package models

// DatasetInfo describes the crime dataset snapshot currently used for scoring.
type DatasetInfo struct {
	Version      int64          `json:"version"`
	Source       string         `json:"source"`
	LoadedAt     Timestamp      `json:"loadedAt"`
	Records      int            `json:"records"`
	Cells        int            `json:"cells"`
	CellSizeDeg  float64        `json:"cellSizeDegrees"`
	Dropped      int            `json:"dropped"`
	DropReasons  map[string]int `json:"dropReasons,omitempty"`
	LoadDuration string         `json:"loadDuration"`
}

// DatasetReloadResponse is returned after an admin-triggered reload.
type DatasetReloadResponse struct {
	PreviousVersion int64       `json:"previousVersion"`
	Dataset         DatasetInfo `json:"dataset"`
}
