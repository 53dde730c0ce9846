package apiclient

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
)

// encodeMultipart builds a multipart/form-data body for a detector call,
// with the image under the given field name. Detector servers disagree on
// the field name, which is what the negotiation sequence probes.
func encodeMultipart(fieldName string, image []byte, prompt string, cfg ModelConfig) (string, []byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(fieldName, imageFileName(image))
	if err != nil {
		return "", nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", nil, fmt.Errorf("write image part: %w", err)
	}

	if err := w.WriteField("prompt", prompt); err != nil {
		return "", nil, err
	}
	if cfg.BoxThreshold != nil {
		if err := w.WriteField("box_threshold", formatThreshold(*cfg.BoxThreshold)); err != nil {
			return "", nil, err
		}
	}
	if cfg.TextThreshold != nil {
		if err := w.WriteField("text_threshold", formatThreshold(*cfg.TextThreshold)); err != nil {
			return "", nil, err
		}
	}
	if err := w.Close(); err != nil {
		return "", nil, err
	}
	return w.FormDataContentType(), buf.Bytes(), nil
}

func imageFileName(image []byte) string {
	switch http.DetectContentType(image) {
	case "image/jpeg":
		return "image.jpg"
	case "image/gif":
		return "image.gif"
	case "image/webp":
		return "image.webp"
	default:
		return "image.png"
	}
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
