package vision

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"
	"time"
)

func TestParsePPE(t *testing.T) {
	lb := newLetterbox(640, 640, ppeInputSize, ppeInputSize)
	raw := []float32{
		10, 10, 100, 100, 0.9, 10, // helmet
		20, 20, 200, 300, 0.8, 15, // coverall (alias id)
		0, 0, 5, 5, 0.1, 14, // below threshold
		0, 0, 5, 5, 0.9, 99, // unknown class
		0, 0, 0, 0, 0, 0, // padding row
	}
	got := parsePPE(raw, 0.25, lb)
	if len(got) != 2 {
		t.Fatalf("parsed %d detections, want 2: %+v", len(got), got)
	}
	if got[0].Label != "helmet" || got[1].Label != "coverall" {
		t.Errorf("labels = %s, %s", got[0].Label, got[1].Label)
	}
	if got[0].BBox != [4]float32{10, 10, 100, 100} {
		t.Errorf("bbox = %v", got[0].BBox)
	}
}

func TestCoverallAliases(t *testing.T) {
	if PPEClasses[13] != "coverall" || PPEClasses[15] != "coverall" {
		t.Fatalf("class 13=%q 15=%q", PPEClasses[13], PPEClasses[15])
	}
	if len(PPEClasses) != 17 {
		t.Fatalf("class count = %d", len(PPEClasses))
	}
}

func TestLetterboxMapsBack(t *testing.T) {
	// 1280x720 scales by 0.5 to 640x360 with 140px bars top and bottom.
	lb := newLetterbox(1280, 720, 640, 640)
	if lb.scale != 0.5 || lb.padX != 0 || lb.padY != 140 {
		t.Fatalf("letterbox = %+v", lb)
	}
	got := lb.toFrame([4]float32{100, 140, 200, 500})
	want := [4]float32{200, 0, 400, 720}
	if got != want {
		t.Fatalf("toFrame = %v, want %v", got, want)
	}
}

func TestPreprocessForPPEShape(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	lb := newLetterbox(32, 16, 64, 64)
	data := preprocessForPPE(img, lb)
	if len(data) != 3*64*64 {
		t.Fatalf("len = %d", len(data))
	}
	// Top-left lies in the grey bar.
	if math.Abs(float64(data[0])-114.0/255) > 1e-6 {
		t.Errorf("pad value = %v", data[0])
	}
}

func TestDecodeFaces(t *testing.T) {
	scores := [][]float32{make([]float32, 12800), make([]float32, 3200), make([]float32, 800)}
	bboxes := [][]float32{make([]float32, 12800*4), make([]float32, 3200*4), make([]float32, 800*4)}

	// Stride 32, cell (2,1), first anchor: anchor centre (64, 32).
	idx := (1*20 + 2) * anchorsPerStride
	scores[2][idx] = 0.9
	copy(bboxes[2][idx*4:], []float32{1, 1, 1, 1})

	got := decodeFaces(scores, bboxes, 0.5, 640, 640, 1280, 1280)
	if len(got) != 1 {
		t.Fatalf("decoded %d faces, want 1", len(got))
	}
	want := [4]float32{64, 0, 192, 128}
	if got[0].BBox != want {
		t.Fatalf("bbox = %v, want %v", got[0].BBox, want)
	}
}

func TestNMSFaces(t *testing.T) {
	boxes := []FaceBox{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.7},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.9},
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.8},
	}
	got := nmsFaces(boxes, faceNMSThreshold)
	if len(got) != 2 {
		t.Fatalf("kept %d boxes, want 2", len(got))
	}
	if got[0].Confidence != 0.9 || got[1].Confidence != 0.8 {
		t.Errorf("kept = %+v", got)
	}
}

func TestIoU(t *testing.T) {
	if v := iou([4]float32{0, 0, 10, 10}, [4]float32{0, 0, 10, 10}); v != 1 {
		t.Errorf("identical iou = %v", v)
	}
	if v := iou([4]float32{0, 0, 10, 10}, [4]float32{20, 20, 30, 30}); v != 0 {
		t.Errorf("disjoint iou = %v", v)
	}
}

func TestCropFace(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	crop := cropFace(img, [4]float32{20, 20, 60, 60})
	if crop == nil || crop.Bounds().Dx() != 48 || crop.Bounds().Dy() != 48 {
		t.Fatalf("crop bounds = %v", crop.Bounds())
	}
	if cropFace(img, [4]float32{200, 200, 300, 300}) != nil {
		t.Error("crop outside the frame returned an image")
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Fatalf("normalize = %v", v)
	}
	zero := []float32{0, 0}
	normalize(zero)
	if zero[0] != 0 {
		t.Fatal("zero vector changed")
	}
}

type stubEngine struct{ closed bool }

func (s *stubEngine) Close() { s.closed = true }

func TestPoolExclusive(t *testing.T) {
	var built []*stubEngine
	p, err := NewPool(2, func() (*stubEngine, error) {
		e := &stubEngine{}
		built = append(built, e)
		return e, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	a, _ := p.Acquire(context.Background())
	b, _ := p.Acquire(context.Background())
	if a == b {
		t.Fatal("same engine handed out twice")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire on empty pool = %v", err)
	}

	p.Release(a)
	if p.Available() != 1 {
		t.Fatalf("available = %d", p.Available())
	}
	p.Close()
	for i, e := range built {
		if !e.closed {
			t.Errorf("engine %d not closed", i)
		}
	}
}

func TestPoolBuildFailureClosesBuilt(t *testing.T) {
	var built []*stubEngine
	_, err := NewPool(3, func() (*stubEngine, error) {
		if len(built) == 2 {
			return nil, errors.New("model missing")
		}
		e := &stubEngine{}
		built = append(built, e)
		return e, nil
	})
	if err == nil {
		t.Fatal("NewPool succeeded")
	}
	for _, e := range built {
		if !e.closed {
			t.Error("engine leaked after build failure")
		}
	}
}
