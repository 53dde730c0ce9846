package batch

import (
	"context"
	"time"

	"github.com/lyricat/goutils/structs"
	"github.com/uidetective/uidetect/apiclient"
	"github.com/uidetective/uidetect/detect"
)

// CallResult is one model's outcome for one run. It is created by the
// runner, appended to the run's data the moment the call settles, and never
// mutated afterward. RawText survives even when Parsed is nil so a failed
// normalization can still be inspected.
type CallResult struct {
	ModelID          string           `json:"modelId"`
	ModelDisplayName string           `json:"modelDisplayName"`
	Color            string           `json:"color"`
	RequestPrompt    string           `json:"requestPrompt"`
	Status           string           `json:"status"`
	LatencyMs        *int64           `json:"latencyMs"`
	RawText          string           `json:"rawText"`
	RawFull          structs.JSONMap  `json:"rawFull,omitempty"`
	Parsed           *detect.Response `json:"parsed"`
	ErrorMessage     string           `json:"errorMessage,omitempty"`
}

// RunSummary holds the rolling counters of one run, recomputed after its
// fan-in completes.
type RunSummary struct {
	OKCount      int    `json:"okCount"`
	ErrorCount   int    `json:"errorCount"`
	LatencyAvgMs *int64 `json:"latencyAvgMs"`
}

// BatchSummary accumulates across runs. AvgLatencyMs is a running mean of
// per-run averages, not a weighted mean over all calls; downstream tooling
// depends on the existing numbers, so the approximation stays.
type BatchSummary struct {
	RunsDone     int    `json:"runsDone"`
	OKCount      int    `json:"okCount"`
	ErrorCount   int    `json:"errorCount"`
	AvgLatencyMs *int64 `json:"avgLatencyMs"`
}

// ModelSnapshot freezes the call-relevant fields of a model config at batch
// creation time, so history stays meaningful after configs change.
type ModelSnapshot struct {
	ModelConfigID string                 `json:"modelConfigId"`
	Color         string                 `json:"color"`
	BaseURL       string                 `json:"baseURL"`
	Model         string                 `json:"model"`
	EndpointType  apiclient.EndpointType `json:"endpointType"`
	Temperature   float64                `json:"temperature"`
	MaxTokens     int                    `json:"maxTokens"`
}

type BatchMeta struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"createdAt"`
	Iterations     int             `json:"iterations"`
	ImageName      string          `json:"imageName"`
	ImageW         int             `json:"imageW"`
	ImageH         int             `json:"imageH"`
	Prompt         string          `json:"prompt"`
	DinoPrompt     string          `json:"dinoPrompt,omitempty"`
	ImageRef       string          `json:"imageRef"`
	ModelSnapshots []ModelSnapshot `json:"modelSnapshots"`
	Summary        BatchSummary    `json:"summary"`
}

type RunMeta struct {
	ID        string     `json:"id"`
	BatchID   string     `json:"batchId"`
	BatchSeq  int        `json:"batchSeq"`
	CreatedAt time.Time  `json:"createdAt"`
	ImageW    int        `json:"imageW"`
	ImageH    int        `json:"imageH"`
	Summary   RunSummary `json:"summary"`
}

// RunData is the durable per-run document: results in completion order plus
// the latest sanitized call log per model.
type RunData struct {
	ID      string                       `json:"id"`
	Results []CallResult                 `json:"results"`
	Logs    map[string]apiclient.CallLog `json:"logs"`
}

// Request describes one batch: N iterations of one image and prompt across
// a fixed snapshot of enabled model configs.
type Request struct {
	Iterations     int
	Image          []byte
	ImageName      string
	Prompt         string
	DinoPrompt     string
	EnabledModels  []apiclient.ModelConfig
	SystemTemplate string
}

// History is the persistence collaborator. Operations may fail; the runner
// does not retry them.
type History interface {
	CreateBatchMeta(ctx context.Context, req *Request) (*BatchMeta, error)
	AddBatchMeta(ctx context.Context, meta *BatchMeta) error
	UpdateBatchMeta(ctx context.Context, meta *BatchMeta) error
	CreateRunMeta(batch *BatchMeta, seq, imgW, imgH int) *RunMeta
	AddRunMeta(ctx context.Context, meta *RunMeta) error
	UpdateRunMeta(ctx context.Context, meta *RunMeta) error
	PutRunData(ctx context.Context, runID string, data *RunData) error
	GetRunData(ctx context.Context, runID string) (*RunData, error)
	LabelForRun(runID string) string
}

// ImageSizer reports the pixel dimensions of an encoded image,
// EXIF-orientation aware.
type ImageSizer interface {
	Size(image []byte) (width, height int, err error)
}

// ModelCaller abstracts the transport client for the runner.
type ModelCaller interface {
	CallModel(ctx context.Context, cfg apiclient.ModelConfig, image []byte, prompt string, onLog apiclient.OnLogFunc, imgW, imgH int, systemTemplate string) (*apiclient.CallOutcome, error)
}
