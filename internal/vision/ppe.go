package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
)

// PPEClasses maps the detector's class ids to item labels. Ids 13 and 15
// are both trained as coverall.
var PPEClasses = map[int]string{
	0: "person", 1: "ear", 2: "ear-muffs", 3: "face", 4: "face-guard",
	5: "face-mask", 6: "foot", 7: "tool", 8: "glasses", 9: "gloves",
	10: "helmet", 11: "hands", 12: "head", 13: "coverall", 14: "shoes",
	15: "coverall", 16: "safety-vest",
}

const (
	ppeInputSize = 640
	// YOLOv10 emits a fixed number of post-NMS rows of
	// x1, y1, x2, y2, score, class.
	ppeMaxDetections = 300
	ppeRowLen        = 6
)

// PPEDetector runs the YOLOv10 PPE model.
type PPEDetector struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	threshold    float32
}

func NewPPEDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*PPEDetector, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, ppeInputSize, ppeInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, ppeMaxDetections, ppeRowLen))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create ppe session: %w", err)
	}

	return &PPEDetector{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		threshold:    threshold,
	}, nil
}

// Detect returns every PPE item above the confidence threshold.
func (d *PPEDetector) Detect(img image.Image) ([]models.Detection, error) {
	b := img.Bounds()
	lb := newLetterbox(b.Dx(), b.Dy(), ppeInputSize, ppeInputSize)
	copy(d.inputTensor.GetData(), preprocessForPPE(img, lb))

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run ppe detection: %w", err)
	}
	return parsePPE(d.outputTensor.GetData(), d.threshold, lb), nil
}

func (d *PPEDetector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
	}
}

// parsePPE decodes the detector's output rows. Rows with an unknown class
// id are dropped.
func parsePPE(raw []float32, threshold float32, lb letterbox) []models.Detection {
	var out []models.Detection
	for i := 0; i+ppeRowLen <= len(raw); i += ppeRowLen {
		row := raw[i : i+ppeRowLen]
		score := row[4]
		if score < threshold {
			continue
		}
		label, ok := PPEClasses[int(row[5])]
		if !ok {
			continue
		}
		out = append(out, models.Detection{
			Label:      label,
			BBox:       lb.toFrame([4]float32{row[0], row[1], row[2], row[3]}),
			Confidence: score,
		})
	}
	return out
}
