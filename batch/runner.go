package batch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/uidetective/uidetect/apiclient"
	"github.com/uidetective/uidetect/detect"
)

// Runner drives batches: N sequential iterations, each fanning out one
// concurrent call per enabled model and fanning the results back in.
// Iterations never overlap; calls within an iteration always do.
type Runner struct {
	history History
	client  ModelCaller
	sizer   ImageSizer
	logger  *zap.Logger
}

func NewRunner(history History, client ModelCaller, sizer ImageSizer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{history: history, client: client, sizer: sizer, logger: logger}
}

// RunBatch executes one batch. A nil token means the batch cannot be
// cancelled. Per-model failures are contained in their CallResult; only
// image decoding and start-of-iteration persistence failures halt the
// batch.
func (r *Runner) RunBatch(ctx context.Context, req *Request, obs Observer, token *CancelToken) error {
	if req.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1")
	}
	if obs == nil {
		obs = ObserverFuncs{}
	}

	batchMeta, err := r.history.CreateBatchMeta(ctx, req)
	if err != nil {
		return fmt.Errorf("create batch meta: %w", err)
	}
	if err := r.history.AddBatchMeta(ctx, batchMeta); err != nil {
		return fmt.Errorf("add batch meta: %w", err)
	}

	for seq := 1; seq <= req.Iterations; seq++ {
		if token != nil && token.Cancelled() {
			r.logger.Info("batch cancelled", zap.String("batch_id", batchMeta.ID), zap.Int("after_runs", seq-1))
			break
		}
		if err := r.runIteration(ctx, req, batchMeta, seq, obs); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runIteration(ctx context.Context, req *Request, batchMeta *BatchMeta, seq int, obs Observer) error {
	imgW, imgH, err := r.sizer.Size(req.Image)
	if err != nil {
		return fmt.Errorf("decode image size: %w", err)
	}
	if seq == 1 {
		batchMeta.ImageW, batchMeta.ImageH = imgW, imgH
		if err := r.history.UpdateBatchMeta(ctx, batchMeta); err != nil {
			return fmt.Errorf("update batch meta: %w", err)
		}
	}

	runMeta := r.history.CreateRunMeta(batchMeta, seq, imgW, imgH)
	if err := r.history.AddRunMeta(ctx, runMeta); err != nil {
		return fmt.Errorf("add run meta: %w", err)
	}
	runData := &RunData{ID: runMeta.ID, Results: []CallResult{}, Logs: map[string]apiclient.CallLog{}}
	if err := r.history.PutRunData(ctx, runMeta.ID, runData); err != nil {
		return fmt.Errorf("put run data: %w", err)
	}
	obs.OnRunStart(RunStart{BatchID: batchMeta.ID, RunID: runMeta.ID, RunMeta: runMeta})
	r.logger.Info("run started",
		zap.String("batch_id", batchMeta.ID),
		zap.String("run_id", runMeta.ID),
		zap.Int("seq", seq),
		zap.Int("models", len(req.EnabledModels)))

	// Appends are serialized: concurrently settling calls write to one
	// run document that is persisted after every mutation.
	var mu sync.Mutex
	persist := func() {
		if err := r.history.PutRunData(ctx, runMeta.ID, runData); err != nil {
			r.logger.Warn("persist run data failed", zap.String("run_id", runMeta.ID), zap.Error(err))
		}
	}

	var wg sync.WaitGroup
	for _, m := range req.EnabledModels {
		wg.Add(1)
		go func(cfg apiclient.ModelConfig) {
			defer wg.Done()
			result := r.callOne(ctx, cfg, req, imgW, imgH, func(log apiclient.CallLog) {
				mu.Lock()
				runData.Logs[cfg.ID] = log
				persist()
				mu.Unlock()
			})
			mu.Lock()
			runData.Results = append(runData.Results, result)
			persist()
			mu.Unlock()
		}(m)
	}
	wg.Wait()

	runMeta.Summary = summarizeRun(runData.Results)
	if err := r.history.UpdateRunMeta(ctx, runMeta); err != nil {
		r.logger.Warn("update run meta failed", zap.String("run_id", runMeta.ID), zap.Error(err))
	}

	mergeBatchSummary(&batchMeta.Summary, seq, runMeta.Summary)
	if err := r.history.UpdateBatchMeta(ctx, batchMeta); err != nil {
		r.logger.Warn("update batch meta failed", zap.String("batch_id", batchMeta.ID), zap.Error(err))
	}

	obs.OnProgress(Progress{
		Done:     seq,
		Total:    req.Iterations,
		BatchID:  batchMeta.ID,
		RunID:    runMeta.ID,
		RunLabel: r.history.LabelForRun(runMeta.ID),
		RunMeta:  runMeta,
	})
	return nil
}

// callOne executes a single model call and folds its outcome into a
// CallResult. Errors never escape: they become the result's status.
func (r *Runner) callOne(ctx context.Context, cfg apiclient.ModelConfig, req *Request, imgW, imgH int, onLog apiclient.OnLogFunc) CallResult {
	prompt := req.Prompt
	if cfg.EndpointType == apiclient.EndpointGroundingDINO {
		prompt = req.DinoPrompt
	}
	result := CallResult{
		ModelID:          cfg.ID,
		ModelDisplayName: cfg.Model,
		Color:            cfg.Color,
		RequestPrompt:    prompt,
		Status:           detect.StatusOK,
	}

	out, err := r.client.CallModel(ctx, cfg, req.Image, prompt, onLog, imgW, imgH, req.SystemTemplate)
	if err != nil {
		result.Status = classifyCallError(err)
		result.ErrorMessage = err.Error()
		return result
	}

	result.LatencyMs = &out.LatencyMs
	result.RawText = out.RawText
	result.RawFull = out.RawFull

	if cfg.EndpointType == apiclient.EndpointGroundingDINO {
		result.Parsed = detect.FromDetector(out.RawText, float64(imgW), float64(imgH))
		return result
	}

	parsed := detect.Parse(out.RawText, float64(imgW), float64(imgH))
	if !parsed.OK {
		result.Status = parsed.Status
		result.ErrorMessage = parsed.Error
		return result
	}
	result.Parsed = parsed.Value
	return result
}

func classifyCallError(err error) string {
	if errors.Is(err, apiclient.ErrTimeout) || strings.Contains(err.Error(), "timeout") {
		return detect.StatusTimeout
	}
	return detect.StatusError
}

func summarizeRun(results []CallResult) RunSummary {
	summary := RunSummary{}
	var total, n int64
	for _, res := range results {
		if res.Status == detect.StatusOK {
			summary.OKCount++
		} else {
			summary.ErrorCount++
		}
		if res.LatencyMs != nil && *res.LatencyMs > 0 {
			total += *res.LatencyMs
			n++
		}
	}
	if n > 0 {
		avg := int64(math.Round(float64(total) / float64(n)))
		summary.LatencyAvgMs = &avg
	}
	return summary
}

// mergeBatchSummary folds a run summary into the batch summary. The
// average is a pairwise running mean of run averages.
func mergeBatchSummary(batch *BatchSummary, seq int, run RunSummary) {
	batch.RunsDone = seq
	batch.OKCount += run.OKCount
	batch.ErrorCount += run.ErrorCount
	if run.LatencyAvgMs == nil {
		return
	}
	if batch.AvgLatencyMs == nil {
		v := *run.LatencyAvgMs
		batch.AvgLatencyMs = &v
		return
	}
	v := int64(math.Round(float64(*batch.AvgLatencyMs+*run.LatencyAvgMs) / 2))
	batch.AvgLatencyMs = &v
}
