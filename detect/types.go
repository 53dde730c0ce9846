package detect

const (
	TypePoint = "point"
	TypeBBox  = "bbox"
)

// Call statuses shared across the engine. A status other than StatusOK
// always leaves the raw model text available for inspection.
const (
	StatusOK          = "ok"
	StatusInvalidJSON = "invalid_json"
	StatusTimeout     = "timeout"
	StatusError       = "error"
)

// Detection is the canonical point-or-bbox representation, independent of
// any provider's wire format. Width and Height are only meaningful when
// Type is TypeBBox. Confidence is nil when the producer did not report one;
// callers must treat nil as "unknown", not zero.
type Detection struct {
	Type       string   `json:"type"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Width      float64  `json:"width,omitempty"`
	Height     float64  `json:"height,omitempty"`
	Confidence *float64 `json:"confidence"`
}

type ImageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Response is one normalized model answer. Primary is always valid when the
// response was reported ok; Others may be empty.
type Response struct {
	ImageSize ImageSize   `json:"imageSize"`
	Primary   *Detection  `json:"primary"`
	Others    []Detection `json:"others"`
	Notes     string      `json:"notes,omitempty"`
}

// ParseResult is the outcome of normalizing raw model text.
type ParseResult struct {
	OK     bool      `json:"ok"`
	Status string    `json:"status"`
	Value  *Response `json:"value,omitempty"`
	Error  string    `json:"error,omitempty"`
}

func Conf(v float64) *float64 { return &v }

// Point builds a canonical point detection.
func Point(x, y float64, confidence *float64) Detection {
	return Detection{Type: TypePoint, X: x, Y: y, Confidence: confidence}
}

// BBox builds a canonical bbox detection.
func BBox(x, y, w, h float64, confidence *float64) Detection {
	return Detection{Type: TypeBBox, X: x, Y: y, Width: w, Height: h, Confidence: confidence}
}

// Area returns the box area, or 0 for points.
func (d Detection) Area() float64 {
	if d.Type != TypeBBox {
		return 0
	}
	return d.Width * d.Height
}

func (d Detection) confidenceOrZero() float64 {
	if d.Confidence == nil {
		return 0
	}
	return *d.Confidence
}
