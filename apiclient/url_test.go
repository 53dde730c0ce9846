package apiclient

import "testing"

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		name string
		cfg  ModelConfig
		want string
	}{
		{
			name: "chat plain base",
			cfg:  ModelConfig{EndpointType: EndpointChat, BaseURL: "https://api.openai.com/v1"},
			want: "https://api.openai.com/v1/chat/completions",
		},
		{
			name: "responses plain base",
			cfg:  ModelConfig{EndpointType: EndpointResponses, BaseURL: "https://api.openai.com/v1"},
			want: "https://api.openai.com/v1/responses",
		},
		{
			name: "trailing slash trimmed",
			cfg:  ModelConfig{EndpointType: EndpointChat, BaseURL: "https://api.openai.com/v1/"},
			want: "https://api.openai.com/v1/chat/completions",
		},
		{
			name: "query string stays after path",
			cfg:  ModelConfig{EndpointType: EndpointResponses, BaseURL: "https://foo.azure.com/openai?api-version=2024-08-01"},
			want: "https://foo.azure.com/openai/responses?api-version=2024-08-01",
		},
		{
			name: "idempotent on full url",
			cfg:  ModelConfig{EndpointType: EndpointChat, BaseURL: "https://api.example.com/v1/chat/completions"},
			want: "https://api.example.com/v1/chat/completions",
		},
		{
			name: "api version injected",
			cfg:  ModelConfig{EndpointType: EndpointChat, BaseURL: "https://foo.azure.com/openai", APIVersion: "2024-08-01"},
			want: "https://foo.azure.com/openai/chat/completions?api-version=2024-08-01",
		},
		{
			name: "existing api version wins",
			cfg:  ModelConfig{EndpointType: EndpointChat, BaseURL: "https://foo.azure.com/openai?api-version=old", APIVersion: "new"},
			want: "https://foo.azure.com/openai/chat/completions?api-version=old",
		},
		{
			name: "groundingdino verbatim",
			cfg:  ModelConfig{EndpointType: EndpointGroundingDINO, BaseURL: "http://localhost:8600/predict?foo=1"},
			want: "http://localhost:8600/predict?foo=1",
		},
		{
			name: "relative base falls back to concatenation",
			cfg:  ModelConfig{EndpointType: EndpointChat, BaseURL: "example.com/v1", APIVersion: "v1"},
			want: "example.com/v1/chat/completions?api-version=v1",
		},
	}

	for _, tc := range cases {
		if got := EndpointURL(tc.cfg); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}
