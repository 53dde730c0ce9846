package apiclient

import (
	"net/url"
	"strings"
)

// Provider identifies the hosting side of a base URL. Payload compatibility
// quirks branch on the (Provider, ModelFamily) pair, resolved once per call.
type Provider int

const (
	ProviderGeneric Provider = iota
	ProviderOpenRouter
	ProviderAzure
)

func (p Provider) String() string {
	switch p {
	case ProviderOpenRouter:
		return "openrouter"
	case ProviderAzure:
		return "azure"
	default:
		return "generic"
	}
}

// ModelFamily identifies model lineages with known wire-format quirks.
type ModelFamily int

const (
	FamilyGeneric ModelFamily = iota
	FamilyQwenVL
)

func (f ModelFamily) String() string {
	if f == FamilyQwenVL {
		return "qwen-vl"
	}
	return "generic"
}

// ResolveProvider classifies a base URL by host.
func ResolveProvider(baseURL string) Provider {
	lowered := strings.ToLower(baseURL)
	if strings.Contains(lowered, "openrouter.ai") {
		return ProviderOpenRouter
	}
	if u, err := url.Parse(baseURL); err == nil {
		host := strings.ToLower(u.Hostname())
		if strings.HasSuffix(host, ".azure.com") {
			return ProviderAzure
		}
	}
	return ProviderGeneric
}

// ResolveModelFamily classifies a model identifier.
func ResolveModelFamily(model string) ModelFamily {
	m := strings.ToLower(model)
	if strings.Contains(m, "qwen") && strings.Contains(m, "vl") {
		return FamilyQwenVL
	}
	return FamilyGeneric
}
