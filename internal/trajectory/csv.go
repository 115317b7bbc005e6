package trajectory

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/san-kum/choreo/internal/dynamo"
)

// Targets is a target vector serialized as a single ';'-separated CSV cell.
type Targets dynamo.Vector

func (t Targets) MarshalCSV() (string, error) {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}
	return strings.Join(parts, ";"), nil
}

func (t *Targets) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*t = Targets{}
		return nil
	}
	fields := strings.Split(s, ";")
	out := make(Targets, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return fmt.Errorf("target %d: %w", i, err)
		}
		out[i] = v
	}
	*t = out
	return nil
}

type csvRow struct {
	Time    float64 `csv:"time"`
	Targets Targets `csv:"targets"`
}

// LoadCSV reads a sequence from a file with columns time,targets.
func LoadCSV(path string) (Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []*csvRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	seq := make(Sequence, 0, len(rows))
	for _, r := range rows {
		seq = append(seq, Frame{Time: r.Time, Targets: dynamo.Vector(r.Targets)})
	}
	if !seq.IsSorted() {
		return nil, fmt.Errorf("%s: frame times are not ascending", path)
	}
	return seq, nil
}

// SaveCSV writes a sequence in the format LoadCSV reads.
func SaveCSV(path string, seq Sequence) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows := make([]*csvRow, len(seq))
	for i, fr := range seq {
		rows[i] = &csvRow{Time: fr.Time, Targets: Targets(fr.Targets)}
	}
	return gocsv.MarshalFile(rows, f)
}
