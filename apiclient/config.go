package apiclient

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type EndpointType string

const (
	EndpointChat          EndpointType = "chat"
	EndpointResponses     EndpointType = "responses"
	EndpointGroundingDINO EndpointType = "groundingdino"
)

const (
	DefaultTemperature = 0.0
	DefaultMaxTokens   = 300
	DefaultTimeoutMs   = 60000

	// MaxTokensCeiling caps the doubled budget of a truncation retry.
	MaxTokensCeiling = 4096
)

// ModelConfig is one configured target endpoint. The engine treats it as an
// immutable snapshot per call; ownership and mutation live with the settings
// layer.
type ModelConfig struct {
	ID           string       `yaml:"id" json:"id" validate:"required"`
	Enabled      bool         `yaml:"enabled" json:"enabled"`
	Color        string       `yaml:"color" json:"color"`
	EndpointType EndpointType `yaml:"endpoint_type" json:"endpointType" validate:"required,oneof=chat responses groundingdino"`
	BaseURL      string       `yaml:"base_url" json:"baseURL" validate:"required"`
	APIVersion   string       `yaml:"api_version" json:"apiVersion,omitempty"`
	APIKey       string       `yaml:"api_key" json:"-"`
	Model        string       `yaml:"model" json:"model" validate:"required_unless=EndpointType groundingdino"`
	Temperature  float64      `yaml:"temperature" json:"temperature"`
	MaxTokens    int          `yaml:"max_tokens" json:"maxTokens" validate:"gte=0"`
	TimeoutMs    int          `yaml:"timeout_ms" json:"timeoutMs" validate:"gte=0"`
	ExtraHeaders map[string]string `yaml:"extra_headers" json:"extraHeaders,omitempty"`

	// ReasoningEffort applies to responses endpoints only.
	ReasoningEffort string `yaml:"reasoning_effort" json:"reasoningEffort,omitempty" validate:"omitempty,oneof=minimal low medium high"`

	// Detector thresholds apply to groundingdino endpoints only.
	BoxThreshold  *float64 `yaml:"box_threshold" json:"boxThreshold,omitempty"`
	TextThreshold *float64 `yaml:"text_threshold" json:"textThreshold,omitempty"`
}

var configValidator = validator.New()

// Validate checks the structural validity of a model configuration.
func (c ModelConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("model config %q: %w", c.ID, err)
	}
	return nil
}

// WithDefaults fills zero-valued call parameters.
func (c ModelConfig) WithDefaults() ModelConfig {
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = DefaultTimeoutMs
	}
	return c
}
