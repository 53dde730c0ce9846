package apiclient

import (
	"time"
	"unicode/utf8"
)

const bodyPreviewLimit = 1200

// CallLog is the sanitized per-attempt observability record. One log is
// emitted per wire attempt via the OnLog callback, on success, failure and
// retry paths alike; it is persisted with the run so the operator can
// inspect exactly what was sent and received, including the intermediate
// responses that drove a retry. Authentication headers are stripped before
// a log is built, never before transmission.
type CallLog struct {
	Request  CallLogRequest  `json:"request"`
	Response CallLogResponse `json:"response"`
	Timing   CallLogTiming   `json:"timing"`

	// Attempts records the encoding sequence actually taken, for
	// diagnosing multipart negotiation and truncation retries.
	Attempts []string `json:"attempts,omitempty"`
}

type CallLogRequest struct {
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers"`
	BodyPreview string            `json:"bodyPreview"`
}

type CallLogResponse struct {
	Status       int    `json:"status"`
	RawText      string `json:"rawText"`
	ParsedStatus string `json:"parsedStatus"`
}

type CallLogTiming struct {
	StartedAt  time.Time `json:"startedAtIso"`
	FinishedAt time.Time `json:"finishedAtIso"`
	LatencyMs  int64     `json:"latencyMs"`
}

// OnLogFunc receives the sanitized log of a completed call.
type OnLogFunc func(log CallLog)

func truncatePreview(s string) string {
	if len(s) <= bodyPreviewLimit {
		return s
	}
	// Back up to a rune boundary so the preview stays valid UTF-8.
	cut := bodyPreviewLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
