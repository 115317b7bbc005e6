package storage

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/san-kum/choreo/internal/metrics"
)

// ControlRecord is one line of the control log: the full control buffer
// written during a tick.
type ControlRecord struct {
	Tick     int       `json:"tick"`
	Time     float64   `json:"t"`
	Controls []float64 `json:"u"`
}

// Recorder streams control records as zstd-compressed JSON lines.
type Recorder struct {
	file *os.File
	zw   *zstd.Encoder
	enc  *json.Encoder
	n    int
}

func NewRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Recorder{file: f, zw: zw, enc: json.NewEncoder(zw)}, nil
}

func (r *Recorder) Record(tick int, t float64, controls []float64) error {
	r.n++
	return r.enc.Encode(ControlRecord{Tick: tick, Time: t, Controls: controls})
}

// Len is the number of records written so far.
func (r *Recorder) Len() int { return r.n }

func (r *Recorder) Close() error {
	if err := r.zw.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Observer adapts the recorder to the host loop. source is read after every
// tick; write errors stop further recording.
func (r *Recorder) Observer(source func() []float64) *ControlObserver {
	return &ControlObserver{rec: r, source: source}
}

type ControlObserver struct {
	rec    *Recorder
	source func() []float64
	err    error
}

func (o *ControlObserver) OnTick(tick int, t float64, _ metrics.Snapshot) {
	if o.err != nil {
		return
	}
	o.err = o.rec.Record(tick, t, o.source())
}

// Err returns the first write error, if any.
func (o *ControlObserver) Err() error { return o.err }

func ReadControls(path string) ([]ControlRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var out []ControlRecord
	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var rec ControlRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}
