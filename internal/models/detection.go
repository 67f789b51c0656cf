package models

// Detection is one labelled object found in a frame.
type Detection struct {
	Label      string     `json:"label"`
	BBox       [4]float32 `json:"bbox"` // x1, y1, x2, y2
	Confidence float32    `json:"confidence,omitempty"`
}

// Face is a located face and the identity it matched, if any.
type Face struct {
	BBox     [4]float32
	Identity *Identity
	Distance float64
}
