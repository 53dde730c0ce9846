package apiclient

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractText pulls the model's text answer out of a provider response
// body. Every known location is tried for the endpoint type; when none
// matches the whole body is returned so nothing is silently lost.
func ExtractText(body []byte, endpointType EndpointType) string {
	raw := string(body)
	switch endpointType {
	case EndpointResponses:
		if t := gjson.Get(raw, "output_text"); t.Type == gjson.String {
			return t.String()
		}
		if text, ok := searchOutputBlocks(raw); ok {
			return text
		}
	case EndpointChat:
		content := gjson.Get(raw, "choices.0.message.content")
		if content.Type == gjson.String {
			return content.String()
		}
		if content.IsArray() {
			if text, ok := searchTextParts(content); ok {
				return text
			}
		}
		if t := gjson.Get(raw, "choices.0.text"); t.Type == gjson.String {
			return t.String()
		}
	}
	return raw
}

// searchOutputBlocks walks output[].content[] of a responses body for a
// text-typed part.
func searchOutputBlocks(raw string) (string, bool) {
	found := ""
	ok := false
	gjson.Get(raw, "output").ForEach(func(_, block gjson.Result) bool {
		content := block.Get("content")
		if !content.IsArray() {
			return true
		}
		if text, hit := searchTextParts(content); hit {
			found, ok = text, true
			return false
		}
		return true
	})
	return found, ok
}

func searchTextParts(parts gjson.Result) (string, bool) {
	found := ""
	ok := false
	parts.ForEach(func(_, part gjson.Result) bool {
		typ := part.Get("type").String()
		text := part.Get("text")
		if strings.Contains(typ, "text") && text.Exists() && text.String() != "" {
			found, ok = text.String(), true
			return false
		}
		return true
	})
	return found, ok
}

// truncationSignal reports whether a response body indicates the output was
// cut off by the token budget, per endpoint convention.
func truncationSignal(body []byte, endpointType EndpointType) bool {
	raw := string(body)
	switch endpointType {
	case EndpointChat:
		return gjson.Get(raw, "choices.0.finish_reason").String() == "length"
	case EndpointResponses:
		return gjson.Get(raw, "status").String() == "incomplete" &&
			gjson.Get(raw, "incomplete_details.reason").String() == "max_output_tokens"
	}
	return false
}
