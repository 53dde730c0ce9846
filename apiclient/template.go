package apiclient

import (
	"regexp"
	"strconv"
)

var placeholderRe = regexp.MustCompile(`\$\{(\w+)\}`)

// FillTemplate substitutes ${name} placeholders in a user-editable prompt
// template. Unresolved placeholders are left verbatim rather than erroring,
// since the template is operator-supplied free text.
func FillTemplate(template string, data map[string]string) string {
	if template == "" {
		return ""
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		key := m[2 : len(m)-1]
		if v, ok := data[key]; ok {
			return v
		}
		return m
	})
}

// templateData assembles the placeholder values for a call. max_tokens is
// left unset for responses endpoints, where the token budget is carried by
// max_output_tokens instead.
func templateData(cfg ModelConfig, prompt string, imgW, imgH int) map[string]string {
	data := map[string]string{
		"coordinate_system": "pixel",
		"origin":            "top-left",
		"user_prompt":       prompt,
		"model_id":          cfg.Model,
		"endpoint_type":     string(cfg.EndpointType),
		"temperature":       strconv.FormatFloat(cfg.Temperature, 'f', -1, 64),
	}
	if imgW > 0 {
		data["image_width"] = strconv.Itoa(imgW)
	} else {
		data["image_width"] = ""
	}
	if imgH > 0 {
		data["image_height"] = strconv.Itoa(imgH)
	} else {
		data["image_height"] = ""
	}
	if cfg.EndpointType != EndpointResponses {
		data["max_tokens"] = strconv.Itoa(cfg.MaxTokens)
	}
	return data
}

// DefaultSystemPromptTemplate is the shipped locate-instruction template.
// Operators may replace it; the placeholders are filled per call.
const DefaultSystemPromptTemplate = `You are a strictly JSON-only assistant. Output ONLY a single valid JSON object — no prose, no code fences, no keys missing, no trailing commas.
Task: Given one image and an instruction, locate the UI element and return coordinates.

Return exactly this schema (keys and types must match):
{
  "coordinate_system": "pixel",
  "origin": "top-left",
  "image_size": { "width": ${image_width}, "height": ${image_height} },
  "primary":
    { "type": "point", "x": INT, "y": INT, "confidence": NUMBER_0_TO_1 }
    OR
    { "type": "bbox",  "x": INT, "y": INT, "width": INT, "height": INT, "confidence": NUMBER_0_TO_1 },
  "others": [
    zero or more detection objects with the same shape as "primary"
  ],
  "notes": STRING (optional)
}

Hard rules:
- Output JSON only. No markdown, no explanations. The first character must be '{' and the last must be '}'.
- Use integer pixels for coordinates; confidence is a float in [0.0, 1.0].
- Coordinates must be within the image bounds: width=${image_width}, height=${image_height}.
- Always include all required top-level keys: coordinate_system, origin, image_size, primary, others.
- If uncertain, still return your best guess with a reasonable confidence.
- Prefer a "point" primary when both point and bbox are reasonable.
- If you cannot find anything, set primary to a point guess near the most likely area with low confidence (e.g., 0.1) and others to [].

Good example (point):
{"coordinate_system":"pixel","origin":"top-left","image_size":{"width":${image_width},"height":${image_height}},"primary":{"type":"point","x":214,"y":358,"confidence":0.83},"others":[]}

Good example (bbox):
{"coordinate_system":"pixel","origin":"top-left","image_size":{"width":${image_width},"height":${image_height}},"primary":{"type":"bbox","x":180,"y":300,"width":120,"height":80,"confidence":0.78},"others":[]}`
