package output

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/uidetective/uidetect/batch"
)

// RunExport pairs a run's meta with its full data document.
type RunExport struct {
	Meta *batch.RunMeta `json:"meta"`
	Data *batch.RunData `json:"data"`
}

// JSONWriter writes one RunExport per line (JSON Lines).
type JSONWriter struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter creates (or truncates) path.
func NewJSONWriter(path string) (*JSONWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{file: f, encoder: json.NewEncoder(f)}, nil
}

// WriteRun appends one run as a JSON line.
func (jw *JSONWriter) WriteRun(meta *batch.RunMeta, data *batch.RunData) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.encoder.Encode(RunExport{Meta: meta, Data: data})
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	return jw.file.Close()
}
