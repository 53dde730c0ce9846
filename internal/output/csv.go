// Package output exports run results to CSV and JSON Lines files.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/uidetective/uidetect/batch"
)

var csvHeader = []string{
	"batch_id", "run_id", "run_seq", "image_w", "image_h",
	"model_id", "model", "status", "latency_ms",
	"type", "x", "y", "width", "height", "confidence",
	"others_count", "notes", "error",
}

// CSVWriter writes one row per model call result, flushed after every run
// so a crash loses at most the run in flight.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates (or truncates) path and writes the header row.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRun appends every call result of one run. It is safe for
// concurrent use.
func (cw *CSVWriter) WriteRun(meta *batch.RunMeta, data *batch.RunData) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, res := range data.Results {
		if err := cw.writer.Write(callRecord(meta, res)); err != nil {
			return err
		}
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

func callRecord(meta *batch.RunMeta, res batch.CallResult) []string {
	record := []string{
		meta.BatchID,
		meta.ID,
		strconv.Itoa(meta.BatchSeq),
		strconv.Itoa(meta.ImageW),
		strconv.Itoa(meta.ImageH),
		res.ModelID,
		res.ModelDisplayName,
		res.Status,
		optionalInt(res.LatencyMs),
	}

	if res.Parsed != nil && res.Parsed.Primary != nil {
		p := res.Parsed.Primary
		record = append(record,
			p.Type,
			formatNum(p.X),
			formatNum(p.Y),
			formatNum(p.Width),
			formatNum(p.Height),
			optionalFloat(p.Confidence),
			strconv.Itoa(len(res.Parsed.Others)),
			res.Parsed.Notes,
		)
	} else {
		record = append(record, "", "", "", "", "", "", "", "")
	}

	return append(record, res.ErrorMessage)
}

func optionalInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatNum(*v)
}

func formatNum(v float64) string {
	return fmt.Sprintf("%g", v)
}

// Close flushes and closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.Close()
		return err
	}
	return cw.file.Close()
}
