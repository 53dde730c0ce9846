package apiclient

import (
	"fmt"
)

// Wire payload shapes for the OpenAI-compatible endpoints. Content fields
// are typed as any where providers disagree on the encoding of the same
// logical field: a chat system message may be a plain string or a part
// array, and image_url may be a bare string or a {url} object.

type chatPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL any    `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type jsonObjectFormat struct {
	Type string `json:"type"`
}

type chatPayload struct {
	Model          string           `json:"model"`
	Temperature    float64          `json:"temperature"`
	MaxTokens      int              `json:"max_tokens"`
	Messages       []chatMessage    `json:"messages"`
	ResponseFormat jsonObjectFormat `json:"response_format"`
}

type responsesPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesMessage struct {
	Role    string          `json:"role"`
	Content []responsesPart `json:"content"`
}

type responsesText struct {
	Format jsonObjectFormat `json:"format"`
}

type responsesReasoning struct {
	Effort string `json:"effort"`
}

type responsesPayload struct {
	Model           string              `json:"model"`
	Input           []responsesMessage  `json:"input"`
	Text            responsesText       `json:"text"`
	MaxOutputTokens int                 `json:"max_output_tokens"`
	Reasoning       *responsesReasoning `json:"reasoning,omitempty"`
}

type detectorPayload struct {
	Image         string   `json:"image"`
	Prompt        string   `json:"prompt"`
	BoxThreshold  *float64 `json:"box_threshold,omitempty"`
	TextThreshold *float64 `json:"text_threshold,omitempty"`
}

// BuildContext carries the per-call inputs of the request builder.
type BuildContext struct {
	Config       ModelConfig
	Prompt       string
	SystemPrompt string
	ImageDataURL string
}

// BuildRequestBody maps a call context to the wire payload for the config's
// endpoint type. The function is pure; transport concerns stay in Client.
func BuildRequestBody(ctx BuildContext) (any, error) {
	switch ctx.Config.EndpointType {
	case EndpointChat:
		return buildChatPayload(ctx), nil
	case EndpointResponses:
		return buildResponsesPayload(ctx), nil
	case EndpointGroundingDINO:
		return buildDetectorPayload(ctx), nil
	default:
		return nil, fmt.Errorf("unknown endpoint type %q", ctx.Config.EndpointType)
	}
}

func buildChatPayload(ctx BuildContext) chatPayload {
	cfg := ctx.Config
	provider := ResolveProvider(cfg.BaseURL)
	family := ResolveModelFamily(cfg.Model)

	// OpenRouter forwards Qwen VL requests to backends that reject the
	// structured encodings: system content must be a plain string and
	// image_url a bare data URL.
	flatten := provider == ProviderOpenRouter && family == FamilyQwenVL

	var systemMsg chatMessage
	var imagePart chatPart
	if flatten {
		systemMsg = chatMessage{Role: "system", Content: ctx.SystemPrompt}
		imagePart = chatPart{Type: "image_url", ImageURL: ctx.ImageDataURL}
	} else {
		systemMsg = chatMessage{Role: "system", Content: []chatPart{{Type: "text", Text: ctx.SystemPrompt}}}
		imagePart = chatPart{Type: "image_url", ImageURL: chatImageURL{URL: ctx.ImageDataURL}}
	}

	return chatPayload{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Messages: []chatMessage{
			systemMsg,
			{Role: "user", Content: []chatPart{
				{Type: "text", Text: ctx.Prompt},
				imagePart,
			}},
		},
		ResponseFormat: jsonObjectFormat{Type: "json_object"},
	}
}

func buildResponsesPayload(ctx BuildContext) responsesPayload {
	cfg := ctx.Config
	out := responsesPayload{
		Model: cfg.Model,
		Input: []responsesMessage{
			{Role: "system", Content: []responsesPart{{Type: "input_text", Text: ctx.SystemPrompt}}},
			{Role: "user", Content: []responsesPart{
				{Type: "input_text", Text: ctx.Prompt},
				{Type: "input_image", ImageURL: ctx.ImageDataURL},
			}},
		},
		Text: responsesText{Format: jsonObjectFormat{Type: "json_object"}},
		// Temperature is omitted: newer responses deployments reject it
		// alongside max_output_tokens.
		MaxOutputTokens: cfg.MaxTokens,
	}
	if cfg.ReasoningEffort != "" {
		out.Reasoning = &responsesReasoning{Effort: cfg.ReasoningEffort}
	}
	return out
}

func buildDetectorPayload(ctx BuildContext) detectorPayload {
	cfg := ctx.Config
	return detectorPayload{
		Image:         ctx.ImageDataURL,
		Prompt:        ctx.Prompt,
		BoxThreshold:  cfg.BoxThreshold,
		TextThreshold: cfg.TextThreshold,
	}
}
