package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/choreo/internal/metrics"
)

type ExportData struct {
	Run       RunMetadata        `json:"run"`
	Steps     int                `json:"steps"`
	Telemetry []metrics.Snapshot `json:"telemetry"`
}

// ExportJSON writes a run's metadata and telemetry as one JSON document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	snaps, err := s.LoadTelemetry(runID)
	if err != nil {
		return err
	}
	data := ExportData{Run: *meta, Steps: len(snaps), Telemetry: snaps}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (s *Store) ExportJSONFile(path, runID string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.ExportJSON(f, runID)
}
