package detect

import (
	"sort"

	"github.com/tidwall/gjson"
)

// FromDetector converts a GroundingDINO-style server response into a
// canonical Response. Three upstream shapes are recognized:
//
//   - Label-Studio predictions: {results:[{result:[{type:"rectanglelabels",
//     value:{x,y,width,height,score}}]}]} with fraction or percentage
//     coordinates
//   - flat detections: {detections:[{x,y,width,height,confidence|score}]}
//     (also accepting a nested bbox object), pixel coordinates
//   - raw model output: {boxes:[[x1,y1,x2,y2]], scores:[...]}
//
// Candidates are pooled and sorted by confidence descending; the best one
// becomes Primary. Detector servers are unreliable, so when nothing parses
// at all the adapter emits a low-confidence center-of-image point instead
// of failing: a weak guess is more useful than a hard error here.
func FromDetector(rawText string, imgW, imgH float64) *Response {
	candidates := labelStudioCandidates(rawText, imgW, imgH)
	if len(candidates) == 0 {
		candidates = flatCandidates(rawText)
	}
	if len(candidates) == 0 {
		candidates = rawBoxCandidates(rawText, imgW, imgH)
	}

	out := &Response{
		ImageSize: ImageSize{Width: imgW, Height: imgH},
		Others:    []Detection{},
	}
	if len(candidates) == 0 {
		p := Point(imgW/2, imgH/2, Conf(0.1))
		out.Primary = &p
		return out
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].confidenceOrZero() > candidates[j].confidenceOrZero()
	})
	out.Primary = &candidates[0]
	out.Others = candidates[1:]
	return out
}

func labelStudioCandidates(rawText string, imgW, imgH float64) []Detection {
	var out []Detection
	gjson.Get(rawText, "results").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("result").ForEach(func(_, item gjson.Result) bool {
			if item.Get("type").String() != "rectanglelabels" {
				return true
			}
			value := item.Get("value")
			if !value.Exists() {
				return true
			}
			x := value.Get("x").Float()
			y := value.Get("y").Float()
			w := value.Get("width").Float()
			h := value.Get("height").Float()
			scale := detectScale([]float64{x, y, w, h})
			var conf *float64
			if score := value.Get("score"); score.Exists() {
				conf = Conf(score.Float())
			}
			out = append(out, candidate(
				scale(x, imgW), scale(y, imgH),
				scale(w, imgW), scale(h, imgH), conf))
			return true
		})
		return true
	})
	return out
}

func flatCandidates(rawText string) []Detection {
	var out []Detection
	gjson.Get(rawText, "detections").ForEach(func(_, det gjson.Result) bool {
		box := det
		if nested := det.Get("bbox"); nested.Exists() {
			box = nested
		}
		var conf *float64
		if c := det.Get("confidence"); c.Exists() {
			conf = Conf(c.Float())
		} else if s := det.Get("score"); s.Exists() {
			conf = Conf(s.Float())
		}
		out = append(out, candidate(
			box.Get("x").Float(), box.Get("y").Float(),
			box.Get("width").Float(), box.Get("height").Float(), conf))
		return true
	})
	return out
}

func rawBoxCandidates(rawText string, imgW, imgH float64) []Detection {
	boxes := gjson.Get(rawText, "boxes").Array()
	scores := gjson.Get(rawText, "scores").Array()

	var out []Detection
	for i, box := range boxes {
		coords := box.Array()
		if len(coords) < 4 {
			continue
		}
		x1, y1 := coords[0].Float(), coords[1].Float()
		x2, y2 := coords[2].Float(), coords[3].Float()
		scale := detectScale([]float64{x1, y1, x2, y2})
		var conf *float64
		if i < len(scores) {
			conf = Conf(scores[i].Float())
		}
		out = append(out, candidate(
			scale(x1, imgW), scale(y1, imgH),
			scale(x2, imgW)-scale(x1, imgW), scale(y2, imgH)-scale(y1, imgH), conf))
	}
	return out
}

// candidate builds a bbox candidate, demoting degenerate zero-area boxes to
// point candidates instead of discarding them.
func candidate(x, y, w, h float64, conf *float64) Detection {
	if w > 0 && h > 0 {
		return BBox(x, y, w, h, conf)
	}
	return Point(x, y, conf)
}

// detectScale picks a coordinate interpretation for a set of values:
// all at most 1 means fractions of the image dimension, all at most 100
// means percentages, anything larger is taken as pixels.
func detectScale(values []float64) func(v, dim float64) float64 {
	maxVal := 0.0
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
	}
	switch {
	case maxVal <= 1:
		return func(v, dim float64) float64 { return v * dim }
	case maxVal <= 100:
		return func(v, dim float64) float64 { return v / 100 * dim }
	default:
		return func(v, _ float64) float64 { return v }
	}
}
