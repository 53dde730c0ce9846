// Package history persists batches and runs on the local filesystem.
//
// Layout under the store root:
//
//	batches.json        newest-first batch meta index
//	runs.json           newest-first run meta index
//	images/<sha256>     content-addressed image blobs
//	rundata/<runID>.json  per-run results and call logs
package history

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uidetective/uidetect/batch"
)

const (
	batchIndexFile = "batches.json"
	runIndexFile   = "runs.json"
	imagesDir      = "images"
	runDataDir     = "rundata"
)

// Store is a file-backed implementation of batch.History. All index
// mutations are serialized through one mutex; per-run data documents are
// keyed by run id and written whole.
type Store struct {
	root string

	mu      sync.Mutex
	batches []*batch.BatchMeta
	runs    []*batch.RunMeta
}

// Open loads (or initializes) a store rooted at dir.
func Open(dir string) (*Store, error) {
	for _, sub := range []string{imagesDir, runDataDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("init store dir: %w", err)
		}
	}
	s := &Store{root: dir}
	if err := loadIndex(filepath.Join(dir, batchIndexFile), &s.batches); err != nil {
		return nil, err
	}
	if err := loadIndex(filepath.Join(dir, runIndexFile), &s.runs); err != nil {
		return nil, err
	}
	return s, nil
}

func loadIndex[T any](path string, out *[]T) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// A corrupt index is treated as empty rather than blocking new work.
		*out = nil
	}
	return nil
}

// writeFileAtomic writes via a temp file and rename so a crashed write
// never leaves a half-written index behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) saveIndexesLocked() error {
	rawBatches, err := json.MarshalIndent(s.batches, "", "  ")
	if err != nil {
		return err
	}
	rawRuns, err := json.MarshalIndent(s.runs, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(s.root, batchIndexFile), rawBatches); err != nil {
		return fmt.Errorf("save batch index: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.root, runIndexFile), rawRuns); err != nil {
		return fmt.Errorf("save run index: %w", err)
	}
	return nil
}

// idSeq backs id generation when the system randomness source fails, so
// ids minted within one millisecond still differ.
var idSeq atomic.Uint64

// newID returns a sortable id: millisecond timestamp in base36 plus random
// tail, 18 chars. Not a real ULID, but lexicographic order tracks time.
func newID() string {
	return newIDFrom(rand.Reader)
}

func newIDFrom(r io.Reader) string {
	t := strconv.FormatInt(time.Now().UnixMilli(), 36)
	for len(t) < 9 {
		t = "0" + t
	}
	buf := make([]byte, 8)
	// Low-order counter bytes go first: the id keeps only the leading
	// half of the tail.
	if _, err := io.ReadFull(r, buf); err != nil {
		binary.LittleEndian.PutUint64(buf, idSeq.Add(1))
	}
	id := t + hex.EncodeToString(buf)
	return id[:18]
}

// CreateBatchMeta builds the batch record and stores the image blob under
// its content hash so repeated batches over one image share storage.
func (s *Store) CreateBatchMeta(_ context.Context, req *batch.Request) (*batch.BatchMeta, error) {
	sum := sha256.Sum256(req.Image)
	hash := hex.EncodeToString(sum[:])
	if err := s.putImage(hash, req.Image); err != nil {
		return nil, err
	}

	snapshots := make([]batch.ModelSnapshot, 0, len(req.EnabledModels))
	for _, m := range req.EnabledModels {
		snapshots = append(snapshots, batch.ModelSnapshot{
			ModelConfigID: m.ID,
			Color:         m.Color,
			BaseURL:       m.BaseURL,
			Model:         m.Model,
			EndpointType:  m.EndpointType,
			Temperature:   m.Temperature,
			MaxTokens:     m.MaxTokens,
		})
	}
	return &batch.BatchMeta{
		ID:             newID(),
		CreatedAt:      time.Now().UTC(),
		Iterations:     req.Iterations,
		ImageName:      req.ImageName,
		Prompt:         req.Prompt,
		DinoPrompt:     req.DinoPrompt,
		ImageRef:       hash,
		ModelSnapshots: snapshots,
		Summary:        batch.BatchSummary{},
	}, nil
}

func (s *Store) putImage(hash string, data []byte) error {
	path := filepath.Join(s.root, imagesDir, hash)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("store image blob: %w", err)
	}
	return nil
}

// GetImage returns the blob for a batch's ImageRef hash.
func (s *Store) GetImage(hash string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, imagesDir, hash))
	if err != nil {
		return nil, fmt.Errorf("load image blob: %w", err)
	}
	return data, nil
}

func (s *Store) AddBatchMeta(_ context.Context, meta *batch.BatchMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append([]*batch.BatchMeta{meta}, s.batches...)
	return s.saveIndexesLocked()
}

func (s *Store) UpdateBatchMeta(_ context.Context, meta *batch.BatchMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.batches {
		if b.ID == meta.ID {
			s.batches[i] = meta
			break
		}
	}
	return s.saveIndexesLocked()
}

func (s *Store) CreateRunMeta(batchMeta *batch.BatchMeta, seq, imgW, imgH int) *batch.RunMeta {
	return &batch.RunMeta{
		ID:        newID(),
		BatchID:   batchMeta.ID,
		BatchSeq:  seq,
		CreatedAt: time.Now().UTC(),
		ImageW:    imgW,
		ImageH:    imgH,
		Summary:   batch.RunSummary{},
	}
}

func (s *Store) AddRunMeta(_ context.Context, meta *batch.RunMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append([]*batch.RunMeta{meta}, s.runs...)
	return s.saveIndexesLocked()
}

func (s *Store) UpdateRunMeta(_ context.Context, meta *batch.RunMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.runs {
		if r.ID == meta.ID {
			s.runs[i] = meta
			break
		}
	}
	return s.saveIndexesLocked()
}

func (s *Store) PutRunData(_ context.Context, runID string, data *batch.RunData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run data: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.root, runDataDir, runID+".json"), raw); err != nil {
		return fmt.Errorf("save run data: %w", err)
	}
	return nil
}

func (s *Store) GetRunData(_ context.Context, runID string) (*batch.RunData, error) {
	raw, err := os.ReadFile(filepath.Join(s.root, runDataDir, runID+".json"))
	if err != nil {
		return nil, fmt.Errorf("load run data: %w", err)
	}
	var data batch.RunData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode run data: %w", err)
	}
	return &data, nil
}

// LabelForRun numbers runs oldest-first across the whole store, so labels
// stay stable as new runs are prepended.
func (s *Store) LabelForRun(runID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.runs {
		if r.ID == runID {
			return strconv.Itoa(len(s.runs) - i)
		}
	}
	return "?"
}

// ListBatches returns batch metas newest first.
func (s *Store) ListBatches() []*batch.BatchMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*batch.BatchMeta, len(s.batches))
	copy(out, s.batches)
	return out
}

// ListRuns returns run metas newest first.
func (s *Store) ListRuns() []*batch.RunMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*batch.RunMeta, len(s.runs))
	copy(out, s.runs)
	return out
}

// ListRunsInBatch returns the runs of one batch, newest first.
func (s *Store) ListRunsInBatch(batchID string) []*batch.RunMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*batch.RunMeta
	for _, r := range s.runs {
		if r.BatchID == batchID {
			out = append(out, r)
		}
	}
	return out
}

// WipeAll removes every index entry, image blob and run document.
func (s *Store) WipeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = nil
	s.runs = nil
	if err := s.saveIndexesLocked(); err != nil {
		return err
	}
	for _, sub := range []string{imagesDir, runDataDir} {
		dir := filepath.Join(s.root, sub)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("wipe %s: %w", sub, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
