package apiclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lyricat/goutils/structs"
	"github.com/tidwall/gjson"
	"github.com/uidetective/uidetect/internal/httputil"
)

// ErrTimeout marks an attempt that exceeded its configured budget. Callers
// classify with errors.Is; the message also carries "timeout" for callers
// that only see the string.
var ErrTimeout = errors.New("timeout")

// Retryable status sets for the detector multipart negotiation. The second
// attempt's set is narrower: a 422 after the field rename means the server
// understood the form but rejected the content, so switching to JSON will
// not help.
var (
	detectorRetryMultipart = map[int]bool{400: true, 401: true, 403: true, 404: true, 405: true, 406: true, 415: true, 422: true}
	detectorRetryJSON      = map[int]bool{400: true, 401: true, 403: true, 404: true, 405: true, 406: true, 415: true}
)

// Client owns the HTTP transport for model calls: header construction,
// per-attempt timeouts, the provider retry/fallback state machines, and
// response-to-text extraction.
type Client struct {
	httpClient *http.Client
}

func New() *Client {
	return &Client{httpClient: httputil.SharedClient}
}

// CallOutcome is the transport-level result of one model call.
type CallOutcome struct {
	Status    int             `json:"status"`
	RawText   string          `json:"rawText"`
	RawFull   structs.JSONMap `json:"rawFull,omitempty"`
	LatencyMs int64           `json:"latencyMs"`
}

// attemptResult is the outcome of a single wire attempt inside a call.
type attemptResult struct {
	status      int
	body        []byte
	contentType string
}

// CallModel executes one model call. Truncated chat/responses answers are
// retried once with a doubled token budget; groundingdino calls walk the
// multipart negotiation sequence. Network and timeout failures return an
// error; HTTP-level failures return the response for the caller to parse,
// since many providers put their diagnostics in the body.
func (c *Client) CallModel(ctx context.Context, cfg ModelConfig, image []byte, prompt string, onLog OnLogFunc, imgW, imgH int, systemTemplate string) (*CallOutcome, error) {
	cfg = cfg.WithDefaults()
	if cfg.EndpointType == EndpointGroundingDINO {
		return c.callDetector(ctx, cfg, image, prompt, onLog)
	}
	return c.callCompletion(ctx, cfg, image, prompt, onLog, imgW, imgH, systemTemplate)
}

// callCompletion drives the chat/responses state machine: one request with
// the configured token budget, plus at most one truncation retry with the
// budget doubled, capped at MaxTokensCeiling.
func (c *Client) callCompletion(ctx context.Context, cfg ModelConfig, image []byte, prompt string, onLog OnLogFunc, imgW, imgH int, systemTemplate string) (*CallOutcome, error) {
	endpoint := EndpointURL(cfg)
	headers := buildHeaders(cfg)
	dataURL := imageToDataURL(image)

	var attempts []string
	tokens := cfg.MaxTokens
	for attemptNo := 0; ; attemptNo++ {
		attemptCfg := cfg
		attemptCfg.MaxTokens = tokens

		sysPrompt := FillTemplate(systemTemplate, templateData(attemptCfg, prompt, imgW, imgH))
		payload, err := BuildRequestBody(BuildContext{
			Config:       attemptCfg,
			Prompt:       prompt,
			SystemPrompt: sysPrompt,
			ImageDataURL: dataURL,
		})
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}

		attempts = append(attempts, fmt.Sprintf("%s:max_tokens=%d", cfg.EndpointType, tokens))
		started := time.Now()
		res, err := c.doAttempt(ctx, http.MethodPost, endpoint, headers, body, cfg.TimeoutMs)
		latency := time.Since(started).Milliseconds()
		if err != nil {
			emitLog(onLog, endpoint, headers, body, attempts, CallLogResponse{
				RawText:      err.Error(),
				ParsedStatus: classifyTransportError(err),
			}, started, latency)
			return nil, err
		}

		if truncationSignal(res.body, cfg.EndpointType) && attemptNo == 0 {
			next := tokens * 2
			if next > MaxTokensCeiling {
				next = MaxTokensCeiling
			}
			if next != tokens {
				emitLog(onLog, endpoint, headers, body, attempts, CallLogResponse{
					Status:       res.status,
					RawText:      string(res.body),
					ParsedStatus: "truncated",
				}, started, latency)
				tokens = next
				continue
			}
		}

		rawText := string(res.body)
		var rawFull structs.JSONMap
		if strings.Contains(res.contentType, "application/json") {
			rawText = ExtractText(res.body, cfg.EndpointType)
			rawFull = decodeJSONMap(res.body)
		}
		emitLog(onLog, endpoint, headers, body, attempts, CallLogResponse{
			Status:       res.status,
			RawText:      rawText,
			ParsedStatus: "ok",
		}, started, latency)
		return &CallOutcome{
			Status:    res.status,
			RawText:   rawText,
			RawFull:   rawFull,
			LatencyMs: latency,
		}, nil
	}
}

// callDetector drives the groundingdino negotiation: multipart with the
// image field, multipart with the file field, then a JSON body, each step
// gated on the previous attempt's HTTP status.
func (c *Client) callDetector(ctx context.Context, cfg ModelConfig, image []byte, prompt string, onLog OnLogFunc) (*CallOutcome, error) {
	endpoint := EndpointURL(cfg)
	headers := buildHeaders(cfg)

	plan := []struct {
		name      string
		retryable map[int]bool
	}{
		{name: "multipart:image", retryable: detectorRetryMultipart},
		{name: "multipart:file", retryable: detectorRetryJSON},
		{name: "json", retryable: nil},
	}

	var attempts []string
	for i, step := range plan {
		var reqHeaders map[string]string
		var body []byte
		var err error

		if step.name == "json" {
			payload := buildDetectorPayload(BuildContext{
				Config:       cfg,
				Prompt:       prompt,
				ImageDataURL: imageToDataURL(image),
			})
			body, err = json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("marshal detector body: %w", err)
			}
			reqHeaders = headers
		} else {
			field := "image"
			if step.name == "multipart:file" {
				field = "file"
			}
			var contentType string
			contentType, body, err = encodeMultipart(field, image, prompt, cfg)
			if err != nil {
				return nil, err
			}
			reqHeaders = stripContentType(headers)
			reqHeaders["Content-Type"] = contentType
		}

		attempts = append(attempts, step.name)
		started := time.Now()
		res, err := c.doAttempt(ctx, http.MethodPost, endpoint, reqHeaders, body, cfg.TimeoutMs)
		latency := time.Since(started).Milliseconds()
		if err != nil {
			emitLog(onLog, endpoint, reqHeaders, body, attempts, CallLogResponse{
				RawText:      err.Error(),
				ParsedStatus: classifyTransportError(err),
			}, started, latency)
			return nil, err
		}

		if i < len(plan)-1 && step.retryable[res.status] {
			emitLog(onLog, endpoint, reqHeaders, body, attempts, CallLogResponse{
				Status:       res.status,
				RawText:      string(res.body),
				ParsedStatus: "retried",
			}, started, latency)
			continue
		}

		rawText := string(res.body)
		emitLog(onLog, endpoint, reqHeaders, body, attempts, CallLogResponse{
			Status:       res.status,
			RawText:      rawText,
			ParsedStatus: "ok",
		}, started, latency)
		return &CallOutcome{
			Status:    res.status,
			RawText:   rawText,
			RawFull:   decodeJSONMap(res.body),
			LatencyMs: latency,
		}, nil
	}
	return nil, fmt.Errorf("detector negotiation exhausted") // unreachable
}

// doAttempt issues one HTTP request bound to a fresh timeout window.
func (c *Client) doAttempt(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, timeoutMs int) (*attemptResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("request exceeded %dms: %w", timeoutMs, ErrTimeout)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := httputil.ReadBody(resp.Body)
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("request exceeded %dms: %w", timeoutMs, ErrTimeout)
		}
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &attemptResult{
		status:      resp.StatusCode,
		body:        respBody,
		contentType: resp.Header.Get("Content-Type"),
	}, nil
}

// ProbeResult is the outcome of a connection test.
type ProbeResult struct {
	OK     bool  `json:"ok"`
	Status int   `json:"status"`
	TimeMs int64 `json:"timeMs"`
}

// TestConnection issues a minimal probe appropriate for the endpoint type:
// a single-token completion for chat/responses, a plain GET for detector
// servers. Used for configuration validation only.
func (c *Client) TestConnection(ctx context.Context, cfg ModelConfig) (ProbeResult, error) {
	cfg = cfg.WithDefaults()

	method := http.MethodPost
	var body []byte
	switch cfg.EndpointType {
	case EndpointResponses:
		body, _ = json.Marshal(map[string]any{
			"model":             cfg.Model,
			"max_output_tokens": 1,
			"input": []map[string]any{
				{"role": "user", "content": []map[string]any{{"type": "input_text", "text": "ping"}}},
			},
		})
	case EndpointGroundingDINO:
		method = http.MethodGet
	default:
		body, _ = json.Marshal(map[string]any{
			"model":      cfg.Model,
			"max_tokens": 1,
			"messages":   []map[string]any{{"role": "user", "content": "ping"}},
		})
	}

	started := time.Now()
	res, err := c.doAttempt(ctx, method, EndpointURL(cfg), buildHeaders(cfg), body, cfg.TimeoutMs)
	elapsed := time.Since(started).Milliseconds()
	if err != nil {
		return ProbeResult{TimeMs: elapsed}, err
	}
	return ProbeResult{
		OK:     res.status >= 200 && res.status < 300,
		Status: res.status,
		TimeMs: elapsed,
	}, nil
}

func classifyTransportError(err error) string {
	if errors.Is(err, ErrTimeout) {
		return "timeout"
	}
	return "error"
}

func emitLog(onLog OnLogFunc, endpoint string, headers map[string]string, body []byte, attempts []string, resp CallLogResponse, started time.Time, latency int64) {
	if onLog == nil {
		return
	}
	onLog(CallLog{
		Request: CallLogRequest{
			URL:         endpoint,
			Headers:     SanitizeHeaders(headers),
			BodyPreview: truncatePreview(string(body)),
		},
		Response: resp,
		Timing: CallLogTiming{
			StartedAt:  started,
			FinishedAt: started.Add(time.Duration(latency) * time.Millisecond),
			LatencyMs:  latency,
		},
		Attempts: append([]string{}, attempts...),
	})
}

func decodeJSONMap(body []byte) structs.JSONMap {
	if !gjson.ValidBytes(body) {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}
	return structs.JSONMap(m)
}

func imageToDataURL(image []byte) string {
	return "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}
