// Package storage persists runs: one directory per run holding
// metadata.json, telemetry.csv and an optional zstd-compressed control log.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/san-kum/choreo/internal/metrics"
	"github.com/san-kum/choreo/internal/sim"
)

const (
	metadataFile  = "metadata.json"
	telemetryFile = "telemetry.csv"
	controlsFile  = "controls.jsonl.zst"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Timestamp   time.Time          `json:"timestamp"`
	Seed        int64              `json:"seed"`
	Dt          float64            `json:"dt"`
	Duration    float64            `json:"duration"`
	Integrator  string             `json:"integrator"`
	Agents      []string           `json:"agents"`
	Params      map[string]float64 `json:"params"`
	Ticks       int                `json:"ticks"`
	StageErrors int                `json:"stage_errors"`
	Final       metrics.Snapshot   `json:"final"`
	Controls    bool               `json:"controls"`
}

// Run is an open run directory. Controls may be recorded while the loop
// runs; Finish writes metadata and telemetry and closes the control log.
type Run struct {
	meta     RunMetadata
	dir      string
	recorder *Recorder
}

// Begin allocates a run directory under a fresh id. When recordControls is
// set the run also opens its compressed control log.
func (s *Store) Begin(meta RunMetadata, recordControls bool) (*Run, error) {
	meta.ID = uuid.NewString()
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	dir := s.Dir(meta.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	run := &Run{meta: meta, dir: dir}
	if recordControls {
		rec, err := NewRecorder(filepath.Join(dir, controlsFile))
		if err != nil {
			return nil, err
		}
		run.recorder = rec
		run.meta.Controls = true
	}
	return run, nil
}

func (r *Run) ID() string { return r.meta.ID }

func (r *Run) Dir() string { return r.dir }

// Recorder is nil unless the run records controls.
func (r *Run) Recorder() *Recorder { return r.recorder }

// Finish stores the result and closes the run.
func (r *Run) Finish(result *sim.Result) (err error) {
	if r.recorder != nil {
		defer func() {
			if cerr := r.recorder.Close(); err == nil {
				err = cerr
			}
		}()
	}
	if result == nil {
		result = &sim.Result{}
	}
	r.meta.Ticks = result.Ticks
	r.meta.Final = result.Final
	r.meta.StageErrors = result.Final.StageErrors

	if err := writeJSON(filepath.Join(r.dir, metadataFile), r.meta); err != nil {
		return err
	}
	return writeTelemetry(filepath.Join(r.dir, telemetryFile), result.Snapshots)
}

// Save stores a finished run without a control log.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	run, err := s.Begin(meta, false)
	if err != nil {
		return "", err
	}
	if err := run.Finish(result); err != nil {
		return "", err
	}
	return run.ID(), nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTelemetry(path string, snaps []metrics.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows := make([]*metrics.Snapshot, len(snaps))
	for i := range snaps {
		rows[i] = &snaps[i]
	}
	return gocsv.MarshalFile(&rows, f)
}

// List returns the metadata of every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadTelemetry(runID string) ([]metrics.Snapshot, error) {
	f, err := os.Open(filepath.Join(s.Dir(runID), telemetryFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []*metrics.Snapshot
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	out := make([]metrics.Snapshot, len(rows))
	for i, r := range rows {
		out[i] = *r
	}
	return out, nil
}

// LoadControls decodes the run's control log.
func (s *Store) LoadControls(runID string) ([]ControlRecord, error) {
	return ReadControls(filepath.Join(s.Dir(runID), controlsFile))
}
