package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/uidetective/uidetect/apiclient"
	"github.com/uidetective/uidetect/detect"
)

type fakeHistory struct {
	mu      sync.Mutex
	batches []*BatchMeta
	runs    []*RunMeta
	data    map[string]*RunData
	nextRun int
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{data: map[string]*RunData{}}
}

func (h *fakeHistory) CreateBatchMeta(_ context.Context, req *Request) (*BatchMeta, error) {
	return &BatchMeta{
		ID:         "batch-1",
		CreatedAt:  time.Now(),
		Iterations: req.Iterations,
		ImageName:  req.ImageName,
		Prompt:     req.Prompt,
		Summary:    BatchSummary{},
	}, nil
}

func (h *fakeHistory) AddBatchMeta(_ context.Context, meta *BatchMeta) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, meta)
	return nil
}

func (h *fakeHistory) UpdateBatchMeta(_ context.Context, _ *BatchMeta) error { return nil }

func (h *fakeHistory) CreateRunMeta(batch *BatchMeta, seq, imgW, imgH int) *RunMeta {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextRun++
	return &RunMeta{
		ID:       fmt.Sprintf("run-%d", h.nextRun),
		BatchID:  batch.ID,
		BatchSeq: seq,
		ImageW:   imgW,
		ImageH:   imgH,
	}
}

func (h *fakeHistory) AddRunMeta(_ context.Context, meta *RunMeta) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, meta)
	return nil
}

func (h *fakeHistory) UpdateRunMeta(_ context.Context, _ *RunMeta) error { return nil }

func (h *fakeHistory) PutRunData(_ context.Context, runID string, data *RunData) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	copied := *data
	copied.Results = append([]CallResult{}, data.Results...)
	h.data[runID] = &copied
	return nil
}

func (h *fakeHistory) GetRunData(_ context.Context, runID string) (*RunData, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data[runID], nil
}

func (h *fakeHistory) LabelForRun(runID string) string { return runID }

type fakeOutcome struct {
	rawText string
	delay   time.Duration
	err     error
}

type fakeCaller struct {
	mu       sync.Mutex
	outcomes map[string]fakeOutcome
	calls    int
}

func (c *fakeCaller) CallModel(_ context.Context, cfg apiclient.ModelConfig, _ []byte, _ string, onLog apiclient.OnLogFunc, _, _ int, _ string) (*apiclient.CallOutcome, error) {
	c.mu.Lock()
	out := c.outcomes[cfg.ID]
	c.calls++
	c.mu.Unlock()
	if out.delay > 0 {
		time.Sleep(out.delay)
	}
	if onLog != nil {
		onLog(apiclient.CallLog{})
	}
	if out.err != nil {
		return nil, out.err
	}
	return &apiclient.CallOutcome{Status: 200, RawText: out.rawText, LatencyMs: int64(out.delay/time.Millisecond) + 1}, nil
}

type fixedSizer struct{ w, h int }

func (s fixedSizer) Size(_ []byte) (int, int, error) { return s.w, s.h, nil }

type errSizer struct{}

func (errSizer) Size(_ []byte) (int, int, error) { return 0, 0, errors.New("bad image") }

const okCanonical = `{"image_size":{"width":800,"height":600},"primary":{"type":"point","x":10,"y":20,"confidence":0.9},"others":[]}`

func chatModel(id string) apiclient.ModelConfig {
	return apiclient.ModelConfig{ID: id, EndpointType: apiclient.EndpointChat, BaseURL: "https://api.test/v1", Model: "model-" + id}
}

func TestRunBatchProducesAllRunsAndResults(t *testing.T) {
	history := newFakeHistory()
	caller := &fakeCaller{outcomes: map[string]fakeOutcome{
		"a": {rawText: okCanonical},
		"b": {rawText: okCanonical},
	}}
	runner := NewRunner(history, caller, fixedSizer{800, 600}, nil)

	req := &Request{
		Iterations:    3,
		Image:         []byte("img"),
		Prompt:        "find",
		EnabledModels: []apiclient.ModelConfig{chatModel("a"), chatModel("b")},
	}
	var progress []Progress
	obs := ObserverFuncs{Progress: func(ev Progress) { progress = append(progress, ev) }}
	if err := runner.RunBatch(context.Background(), req, obs, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(history.runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(history.runs))
	}
	for _, run := range history.runs {
		data := history.data[run.ID]
		if data == nil || len(data.Results) != 2 {
			t.Fatalf("run %s: expected 2 results, got %+v", run.ID, data)
		}
	}
	if history.batches[0].Summary.RunsDone != 3 {
		t.Fatalf("runsDone mismatch: %d", history.batches[0].Summary.RunsDone)
	}
	if history.batches[0].Summary.OKCount != 6 || history.batches[0].Summary.ErrorCount != 0 {
		t.Fatalf("batch counters mismatch: %+v", history.batches[0].Summary)
	}
	if len(progress) != 3 || progress[2].Done != 3 || progress[2].Total != 3 {
		t.Fatalf("progress events mismatch: %+v", progress)
	}
}

func TestRunBatchCancelBetweenIterations(t *testing.T) {
	history := newFakeHistory()
	caller := &fakeCaller{outcomes: map[string]fakeOutcome{"a": {rawText: okCanonical}}}
	runner := NewRunner(history, caller, fixedSizer{800, 600}, nil)

	token := &CancelToken{}
	obs := ObserverFuncs{Progress: func(ev Progress) {
		if ev.Done == 1 {
			token.Cancel()
		}
	}}
	req := &Request{Iterations: 5, Image: []byte("img"), Prompt: "find", EnabledModels: []apiclient.ModelConfig{chatModel("a")}}
	if err := runner.RunBatch(context.Background(), req, obs, token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history.runs) != 1 {
		t.Fatalf("cancel after run 1 must leave exactly 1 run, got %d", len(history.runs))
	}
}

func TestRunBatchCancelMidIterationLetsItComplete(t *testing.T) {
	history := newFakeHistory()
	caller := &fakeCaller{outcomes: map[string]fakeOutcome{"a": {rawText: okCanonical, delay: 30 * time.Millisecond}}}
	runner := NewRunner(history, caller, fixedSizer{800, 600}, nil)

	token := &CancelToken{}
	obs := ObserverFuncs{RunStart: func(ev RunStart) {
		// Cancel while run 2's call is still in flight.
		if ev.RunMeta.BatchSeq == 2 {
			token.Cancel()
		}
	}}
	req := &Request{Iterations: 3, Image: []byte("img"), Prompt: "find", EnabledModels: []apiclient.ModelConfig{chatModel("a")}}
	if err := runner.RunBatch(context.Background(), req, obs, token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history.runs) != 2 {
		t.Fatalf("run 2 must complete, run 3 must not start; got %d runs", len(history.runs))
	}
	if data := history.data["run-2"]; data == nil || len(data.Results) != 1 {
		t.Fatalf("run 2 results must be appended despite cancellation: %+v", data)
	}
}

func TestRunBatchFailureContainment(t *testing.T) {
	history := newFakeHistory()
	caller := &fakeCaller{outcomes: map[string]fakeOutcome{
		"ok":      {rawText: okCanonical},
		"timeout": {err: fmt.Errorf("request exceeded 50ms: %w", apiclient.ErrTimeout)},
		"broken":  {err: errors.New("connection refused")},
		"garbled": {rawText: "not json at all"},
	}}
	runner := NewRunner(history, caller, fixedSizer{800, 600}, nil)

	req := &Request{
		Iterations: 1,
		Image:      []byte("img"),
		Prompt:     "find",
		EnabledModels: []apiclient.ModelConfig{
			chatModel("ok"), chatModel("timeout"), chatModel("broken"), chatModel("garbled"),
		},
	}
	if err := runner.RunBatch(context.Background(), req, nil, nil); err != nil {
		t.Fatalf("model failures must never fail the batch: %v", err)
	}

	data := history.data["run-1"]
	if len(data.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(data.Results))
	}
	statuses := map[string]string{}
	for _, res := range data.Results {
		statuses[res.ModelID] = res.Status
		if res.ModelID == "garbled" && res.RawText == "" {
			t.Fatalf("raw text must survive a failed normalization")
		}
	}
	if statuses["ok"] != detect.StatusOK || statuses["timeout"] != detect.StatusTimeout ||
		statuses["broken"] != detect.StatusError || statuses["garbled"] != detect.StatusInvalidJSON {
		t.Fatalf("classification mismatch: %v", statuses)
	}
	if history.runs[0].Summary.OKCount != 1 || history.runs[0].Summary.ErrorCount != 3 {
		t.Fatalf("run summary mismatch: %+v", history.runs[0].Summary)
	}
}

func TestRunBatchResultsInCompletionOrder(t *testing.T) {
	history := newFakeHistory()
	caller := &fakeCaller{outcomes: map[string]fakeOutcome{
		"slow": {rawText: okCanonical, delay: 60 * time.Millisecond},
		"fast": {rawText: okCanonical},
	}}
	runner := NewRunner(history, caller, fixedSizer{800, 600}, nil)

	req := &Request{Iterations: 1, Image: []byte("img"), Prompt: "find",
		EnabledModels: []apiclient.ModelConfig{chatModel("slow"), chatModel("fast")}}
	if err := runner.RunBatch(context.Background(), req, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := history.data["run-1"]
	if data.Results[0].ModelID != "fast" || data.Results[1].ModelID != "slow" {
		t.Fatalf("results must appear in completion order: %v, %v", data.Results[0].ModelID, data.Results[1].ModelID)
	}
}

func TestRunBatchDetectorRoutesThroughAdapter(t *testing.T) {
	history := newFakeHistory()
	caller := &fakeCaller{outcomes: map[string]fakeOutcome{
		"dino": {rawText: `{"detections":[{"x":10,"y":20,"width":30,"height":40,"score":0.9}]}`},
	}}
	runner := NewRunner(history, caller, fixedSizer{800, 600}, nil)

	req := &Request{
		Iterations: 1,
		Image:      []byte("img"),
		Prompt:     "chat prompt",
		DinoPrompt: "dino prompt",
		EnabledModels: []apiclient.ModelConfig{{
			ID: "dino", EndpointType: apiclient.EndpointGroundingDINO, BaseURL: "http://dino.test",
		}},
	}
	if err := runner.RunBatch(context.Background(), req, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := history.data["run-1"].Results[0]
	if res.Status != detect.StatusOK || res.Parsed == nil || res.Parsed.Primary.Type != detect.TypeBBox {
		t.Fatalf("detector result mismatch: %+v", res)
	}
	if res.RequestPrompt != "dino prompt" {
		t.Fatalf("detector calls must use the dino prompt, got %q", res.RequestPrompt)
	}
}

func TestMergeBatchSummaryPairwiseMean(t *testing.T) {
	avg := func(v int64) *int64 { return &v }
	summary := BatchSummary{}
	mergeBatchSummary(&summary, 1, RunSummary{LatencyAvgMs: avg(100)})
	mergeBatchSummary(&summary, 2, RunSummary{LatencyAvgMs: avg(300)})
	if *summary.AvgLatencyMs != 200 {
		t.Fatalf("expected pairwise mean 200, got %d", *summary.AvgLatencyMs)
	}
	mergeBatchSummary(&summary, 3, RunSummary{LatencyAvgMs: avg(500)})
	if *summary.AvgLatencyMs != 350 {
		t.Fatalf("running mean of means keeps the historical approximation, got %d", *summary.AvgLatencyMs)
	}
	mergeBatchSummary(&summary, 4, RunSummary{})
	if *summary.AvgLatencyMs != 350 || summary.RunsDone != 4 {
		t.Fatalf("nil run average must not disturb the batch average: %+v", summary)
	}
}

func TestRunBatchImageDecodeFailureIsFatal(t *testing.T) {
	history := newFakeHistory()
	caller := &fakeCaller{outcomes: map[string]fakeOutcome{"a": {rawText: okCanonical}}}
	runner := NewRunner(history, caller, errSizer{}, nil)

	req := &Request{Iterations: 2, Image: []byte("img"), Prompt: "find", EnabledModels: []apiclient.ModelConfig{chatModel("a")}}
	if err := runner.RunBatch(context.Background(), req, nil, nil); err == nil {
		t.Fatalf("image decode failure must halt the batch")
	}
	if len(history.runs) != 0 {
		t.Fatalf("no runs should be recorded after a fatal decode failure")
	}
}
