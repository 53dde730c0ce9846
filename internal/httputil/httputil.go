package httputil

import (
	"fmt"
	"io"
	"net/http"
)

// MaxResponseBodySize bounds how much of a provider response is read.
// Vision model answers are small; anything near this limit is a
// misbehaving server, not a detection.
const MaxResponseBodySize = 32 * 1024 * 1024

// SharedClient is the process-wide HTTP client. It carries no client-level
// timeout: every call attempt binds its own deadline through the request
// context, so a slow endpoint cannot inherit another endpoint's budget.
var SharedClient = &http.Client{}

// ReadBody drains a response body with a size cap to prevent memory
// exhaustion from runaway servers.
func ReadBody(body io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxResponseBodySize {
		return nil, fmt.Errorf("response body exceeds %d bytes limit", MaxResponseBodySize)
	}
	return data, nil
}
