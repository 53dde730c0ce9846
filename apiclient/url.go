package apiclient

import (
	"net/url"
	"strings"
)

// EndpointURL resolves the request URL for a model config. Base URLs may be
// plain bases or already-fully-qualified URLs carrying a query string (for
// example an api-version parameter): the endpoint path segment is appended
// to the URL path, never after the query string, and appending is idempotent
// when the path already ends with a known endpoint segment. GroundingDINO
// base URLs are taken verbatim, they already name the detection endpoint.
func EndpointURL(cfg ModelConfig) string {
	if cfg.EndpointType == EndpointGroundingDINO {
		return cfg.BaseURL
	}

	segment := "/chat/completions"
	if cfg.EndpointType == EndpointResponses {
		segment = "/responses"
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || !u.IsAbs() {
		return concatEndpointURL(cfg.BaseURL, segment, cfg.APIVersion)
	}

	path := strings.TrimSuffix(u.Path, "/")
	if !hasEndpointSuffix(path) {
		u.Path = path + segment
	}
	if cfg.APIVersion != "" {
		q := u.Query()
		if !q.Has("api-version") {
			q.Set("api-version", cfg.APIVersion)
			u.RawQuery = q.Encode()
		}
	}
	return u.String()
}

func hasEndpointSuffix(path string) bool {
	return strings.HasSuffix(path, "/responses") || strings.HasSuffix(path, "/chat/completions")
}

// concatEndpointURL handles non-absolute bases with plain string assembly.
func concatEndpointURL(base, segment, apiVersion string) string {
	out := strings.TrimSuffix(base, "/") + segment
	if apiVersion != "" && !strings.Contains(out, "api-version=") {
		sep := "?"
		if strings.Contains(out, "?") {
			sep = "&"
		}
		out += sep + "api-version=" + apiVersion
	}
	return out
}
