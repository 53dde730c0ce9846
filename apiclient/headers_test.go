package apiclient

import "testing"

func TestBuildHeadersBearer(t *testing.T) {
	h := buildHeaders(ModelConfig{BaseURL: "https://api.openai.com/v1", APIKey: "sk-test"})
	if h["Authorization"] != "Bearer sk-test" {
		t.Fatalf("expected bearer auth, got %v", h)
	}
	if h["Content-Type"] != "application/json" {
		t.Fatalf("missing content type")
	}
}

func TestBuildHeadersAzureAPIKey(t *testing.T) {
	h := buildHeaders(ModelConfig{BaseURL: "https://myorg.openai.azure.com/openai", APIKey: "azkey"})
	if h["api-key"] != "azkey" {
		t.Fatalf("expected api-key header for azure, got %v", h)
	}
	if _, ok := h["Authorization"]; ok {
		t.Fatalf("azure must not also get a bearer token")
	}
}

func TestBuildHeadersExtraAuthWins(t *testing.T) {
	h := buildHeaders(ModelConfig{
		BaseURL:      "https://api.openai.com/v1",
		APIKey:       "sk-test",
		ExtraHeaders: map[string]string{"authorization": "Custom scheme"},
	})
	if h["authorization"] != "Custom scheme" {
		t.Fatalf("extra auth header must be preserved")
	}
	if _, ok := h["Authorization"]; ok {
		t.Fatalf("api key must not override an explicit auth header")
	}
}

func TestSanitizeHeadersStripsSecrets(t *testing.T) {
	in := map[string]string{
		"Authorization": "Bearer sk-test",
		"api-key":       "azkey",
		"Api-Key":       "azkey2",
		"X-Custom":      "keep",
		"Content-Type":  "application/json",
	}
	out := SanitizeHeaders(in)
	if len(out) != 2 || out["X-Custom"] != "keep" || out["Content-Type"] != "application/json" {
		t.Fatalf("sanitize mismatch: %v", out)
	}
	if in["Authorization"] == "" {
		t.Fatalf("sanitize must not mutate the original")
	}
}

func TestStripContentType(t *testing.T) {
	out := stripContentType(map[string]string{"Content-Type": "application/json", "X-A": "1"})
	if _, ok := out["Content-Type"]; ok {
		t.Fatalf("content type must be stripped before multipart")
	}
	if out["X-A"] != "1" {
		t.Fatalf("other headers must survive")
	}
}
