package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/forge/config"
)

// csvSink is one CSV file whose header is written with the first record.
type csvSink struct {
	f      *os.File
	header bool
}

func writeRecord[T any](s *csvSink, rec T) error {
	records := []T{rec}
	if !s.header {
		s.header = true
		return gocsv.Marshal(records, s.f)
	}
	return gocsv.MarshalWithoutHeaders(records, s.f)
}

// OutputManager writes a run's CSV logs and artefacts into one directory.
// A nil manager discards everything.
type OutputManager struct {
	dir       string
	telemetry csvSink
	perf      csvSink
	metrics   csvSink
	bookmarks csvSink
}

// NewOutputManager creates dir and opens the CSV files. It returns nil when
// dir is empty.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	for _, s := range []struct {
		name string
		sink *csvSink
	}{
		{"telemetry.csv", &om.telemetry},
		{"perf.csv", &om.perf},
		{"metrics.csv", &om.metrics},
		{"bookmarks.csv", &om.bookmarks},
	} {
		f, err := os.Create(filepath.Join(dir, s.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", s.name, err)
		}
		s.sink.f = f
	}
	return om, nil
}

// WriteConfig saves the configuration as config.yaml.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteTelemetry appends a window to telemetry.csv.
func (om *OutputManager) WriteTelemetry(s WindowStats) error {
	if om == nil {
		return nil
	}
	if err := writeRecord(&om.telemetry, s); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// WritePerf appends a perf row.
func (om *OutputManager) WritePerf(s PerfStats, frame uint64, level string) error {
	if om == nil {
		return nil
	}
	if err := writeRecord(&om.perf, s.ToCSV(frame, level)); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteMetrics appends a metrics row.
func (om *OutputManager) WriteMetrics(m Metrics) error {
	if om == nil {
		return nil
	}
	if err := writeRecord(&om.metrics, m); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

// WriteBookmark appends a bookmark.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	if err := writeRecord(&om.bookmarks, b); err != nil {
		return fmt.Errorf("writing bookmark: %w", err)
	}
	return nil
}

// WriteHallOfFame saves the hall as hall_of_fame.json.
func (om *OutputManager) WriteHallOfFame(h *HallOfFame) error {
	if om == nil || h == nil {
		return nil
	}
	data, err := h.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling hall of fame: %w", err)
	}
	if err := os.WriteFile(filepath.Join(om.dir, "hall_of_fame.json"), data, 0o644); err != nil {
		return fmt.Errorf("writing hall_of_fame.json: %w", err)
	}
	return nil
}

// SavePath returns a path inside the output directory for a save at frame.
func (om *OutputManager) SavePath(frame uint64) string {
	if om == nil {
		return ""
	}
	return filepath.Join(om.dir, fmt.Sprintf("save_%d.frge", frame))
}

// Dir returns the output directory.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes every file and returns the first error.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, s := range []*csvSink{&om.telemetry, &om.perf, &om.metrics, &om.bookmarks} {
		if s.f == nil {
			continue
		}
		if err := s.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.f = nil
	}
	return firstErr
}
