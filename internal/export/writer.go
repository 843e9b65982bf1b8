package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reddwatch/reddwatch/internal/telemetry"
)

// Writer persists export documents to a directory. Each export is
// written under a timestamped name, and latest.json is rewritten so
// downstream consumers have a stable path to poll.
type Writer struct {
	dir     string
	metrics *telemetry.Metrics
}

// NewWriter creates the export directory if needed.
func NewWriter(dir string, metrics *telemetry.Metrics) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir %s: %w", dir, err)
	}
	return &Writer{dir: dir, metrics: metrics}, nil
}

// Write serializes the document to disk and returns the timestamped
// file path.
func (w *Writer) Write(doc Document) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding export: %w", err)
	}

	name := fmt.Sprintf("reddwatch_%s.json", time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing export %s: %w", path, err)
	}

	latest := filepath.Join(w.dir, "latest.json")
	if err := os.WriteFile(latest, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", latest, err)
	}

	if w.metrics != nil {
		w.metrics.ExportsWritten.Inc()
	}
	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("export written")
	return path, nil
}
