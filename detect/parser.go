package detect

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Parse validates and clamps raw model text into a canonical Response.
// It is deliberately permissive: malformed numeric fields are coerced or
// clamped rather than rejected, because the upstream producer is an
// uncontrolled third-party model. Only structurally missing or invalid
// required fields fail the whole response.
func Parse(rawText string, imgW, imgH float64) ParseResult {
	var obj map[string]any
	if err := json.Unmarshal([]byte(rawText), &obj); err != nil || obj == nil {
		return ParseResult{Status: StatusInvalidJSON, Error: "invalid JSON"}
	}

	rawSize, hasSize := obj["image_size"]
	rawPrimary, hasPrimary := obj["primary"]
	if !hasSize || !hasPrimary {
		return ParseResult{Status: StatusInvalidJSON, Error: "missing required keys"}
	}

	sizeMap, _ := rawSize.(map[string]any)
	width, okW := toNum(sizeMap, "width")
	height, okH := toNum(sizeMap, "height")
	if !okW || !okH {
		return ParseResult{Status: StatusInvalidJSON, Error: "invalid image_size"}
	}

	primary := normalizeDetection(rawPrimary, width, height)
	if primary == nil {
		return ParseResult{Status: StatusInvalidJSON, Error: "invalid primary"}
	}

	others := []Detection{}
	if rawOthers, ok := obj["others"].([]any); ok {
		for _, raw := range rawOthers {
			if d := normalizeDetection(raw, width, height); d != nil {
				others = append(others, *d)
			}
		}
	}

	out := &Response{
		ImageSize: ImageSize{Width: width, Height: height},
		Primary:   primary,
		Others:    others,
	}
	if notes, ok := obj["notes"].(string); ok {
		out.Notes = notes
	}
	return ParseResult{OK: true, Status: StatusOK, Value: out}
}

// normalizeDetection turns one raw detection object into a canonical
// Detection, or nil when the type tag is not point/bbox. Coordinates are
// clamped into the image bounds; bbox width/height are clamped against the
// image axis bound itself, not against the remaining span, so an
// out-of-range box may still extend past the image edge. Confidence passes
// through unclamped, or nil when absent or non-numeric.
func normalizeDetection(raw any, w, h float64) *Detection {
	d, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	typ, _ := d["type"].(string)
	if typ != TypePoint && typ != TypeBBox {
		return nil
	}

	out := Detection{
		Type:       typ,
		X:          clampNum(d["x"], 0, w),
		Y:          clampNum(d["y"], 0, h),
		Confidence: coerceConfidence(d["confidence"]),
	}
	if typ == TypeBBox {
		out.Width = clampNum(d["width"], 0, w)
		out.Height = clampNum(d["height"], 0, h)
	}
	return &out
}

// toNum coerces a map entry to a finite number. A missing key fails;
// an explicit null coerces to 0.
func toNum(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	n, ok := asNumber(v)
	if !ok || !isFinite(n) {
		return 0, false
	}
	return n, true
}

func clampNum(v any, min, max float64) float64 {
	n, ok := asNumber(v)
	if !ok || !isFinite(n) {
		return min
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func coerceConfidence(v any) *float64 {
	if v == nil {
		return nil
	}
	n, ok := asNumber(v)
	if !ok || !isFinite(n) {
		return nil
	}
	return &n
}

// asNumber applies loose numeric coercion: numbers pass through, numeric
// strings parse, booleans map to 0/1, null maps to 0.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

func isFinite(n float64) bool {
	return !math.IsNaN(n) && !math.IsInf(n, 0)
}
