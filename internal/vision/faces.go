package vision

import (
	"fmt"
	"image"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// FaceBox is one located face.
type FaceBox struct {
	BBox       [4]float32 // x1, y1, x2, y2 in frame pixels
	Confidence float32
}

// FaceLocator runs RetinaFace (det_10g) face detection.
type FaceLocator struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

var faceStrides = []int{8, 16, 32}

const anchorsPerStride = 2

const faceNMSThreshold = 0.4

// NewFaceLocator loads the RetinaFace model. opts may be nil.
func NewFaceLocator(modelPath string, threshold float32, opts *ort.SessionOptions) (*FaceLocator, error) {
	inputW, inputH := 640, 640

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Outputs carry no batch dimension. Per stride s there are
	// (640/s)^2 * 2 anchors: 12800, 3200 and 800.
	outputs := []struct {
		name  string
		shape ort.Shape
	}{
		{"448", ort.NewShape(12800, 1)},
		{"471", ort.NewShape(3200, 1)},
		{"494", ort.NewShape(800, 1)},
		{"451", ort.NewShape(12800, 4)},
		{"474", ort.NewShape(3200, 4)},
		{"497", ort.NewShape(800, 4)},
		{"454", ort.NewShape(12800, 10)},
		{"477", ort.NewShape(3200, 10)},
		{"500", ort.NewShape(800, 10)},
	}

	names := make([]string, len(outputs))
	tensors := make([]*ort.Tensor[float32], 0, len(outputs))
	values := make([]ort.Value, len(outputs))
	destroy := func() {
		inputTensor.Destroy()
		for _, t := range tensors {
			t.Destroy()
		}
	}

	for i, o := range outputs {
		names[i] = o.name
		t, err := ort.NewEmptyTensor[float32](o.shape)
		if err != nil {
			destroy()
			return nil, fmt.Errorf("create output tensor %s: %w", o.name, err)
		}
		tensors = append(tensors, t)
		values[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{inputTensor}, values,
		opts,
	)
	if err != nil {
		destroy()
		return nil, fmt.Errorf("create face session: %w", err)
	}

	return &FaceLocator{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: tensors,
		threshold:     threshold,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// Locate returns the faces in img, highest confidence first.
func (l *FaceLocator) Locate(img image.Image) ([]FaceBox, error) {
	b := img.Bounds()
	copy(l.inputTensor.GetData(), preprocessForFaces(img, l.inputW, l.inputH))

	if err := l.session.Run(); err != nil {
		return nil, fmt.Errorf("run face detection: %w", err)
	}

	scores := make([][]float32, len(faceStrides))
	bboxes := make([][]float32, len(faceStrides))
	for i := range faceStrides {
		scores[i] = l.outputTensors[i].GetData()
		bboxes[i] = l.outputTensors[i+3].GetData()
	}
	boxes := decodeFaces(scores, bboxes, l.threshold, l.inputW, l.inputH, b.Dx(), b.Dy())
	return nmsFaces(boxes, faceNMSThreshold), nil
}

func (l *FaceLocator) Close() {
	if l.session != nil {
		l.session.Destroy()
	}
	if l.inputTensor != nil {
		l.inputTensor.Destroy()
	}
	for _, t := range l.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// decodeFaces turns anchor distances at each stride into frame-pixel boxes.
func decodeFaces(scores, bboxes [][]float32, threshold float32, inputW, inputH, origW, origH int) []FaceBox {
	var out []FaceBox
	scaleW := float32(origW) / float32(inputW)
	scaleH := float32(origH) / float32(inputH)

	for si, stride := range faceStrides {
		fmW, fmH := inputW/stride, inputH/stride
		st := float32(stride)
		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if idx >= len(scores[si]) {
						return out
					}
					if score := scores[si][idx]; score >= threshold {
						ax, ay := float32(cx)*st, float32(cy)*st
						d := bboxes[si][idx*4 : idx*4+4]
						out = append(out, FaceBox{
							BBox: [4]float32{
								clampF((ax-d[0]*st)*scaleW, 0, float32(origW)),
								clampF((ay-d[1]*st)*scaleH, 0, float32(origH)),
								clampF((ax+d[2]*st)*scaleW, 0, float32(origW)),
								clampF((ay+d[3]*st)*scaleH, 0, float32(origH)),
							},
							Confidence: score,
						})
					}
					idx++
				}
			}
		}
	}
	return out
}

func nmsFaces(boxes []FaceBox, iouThreshold float32) []FaceBox {
	if len(boxes) == 0 {
		return boxes
	}
	sort.Slice(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})

	kept := make([]FaceBox, 0, len(boxes))
	for _, b := range boxes {
		overlaps := false
		for _, k := range kept {
			if iou(k.BBox, b.BBox) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, b)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	inter := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
