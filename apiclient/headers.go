package apiclient

import "strings"

// buildHeaders assembles call headers: JSON content type, operator extras,
// then the API key under the header the provider expects. Azure endpoints
// authenticate with api-key, everything else with a bearer token. An
// explicit Authorization or api-key entry in the extras wins over APIKey.
func buildHeaders(cfg ModelConfig) map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	for k, v := range cfg.ExtraHeaders {
		headers[k] = v
	}
	if cfg.APIKey != "" && !hasAuthHeader(headers) {
		if ResolveProvider(cfg.BaseURL) == ProviderAzure {
			headers["api-key"] = cfg.APIKey
		} else {
			headers["Authorization"] = "Bearer " + cfg.APIKey
		}
	}
	return headers
}

func hasAuthHeader(headers map[string]string) bool {
	for k := range headers {
		lowered := strings.ToLower(k)
		if lowered == "authorization" || lowered == "api-key" {
			return true
		}
	}
	return false
}

// SanitizeHeaders returns a copy with authentication entries stripped.
// Sanitization applies to logging only, never to transmission.
func SanitizeHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		lowered := strings.ToLower(k)
		if lowered == "authorization" || lowered == "api-key" {
			continue
		}
		out[k] = v
	}
	return out
}

// stripContentType removes any Content-Type entry so the multipart writer
// can set its own boundary.
func stripContentType(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") {
			continue
		}
		out[k] = v
	}
	return out
}
