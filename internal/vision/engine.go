package vision

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/config"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
)

// Engine bundles the three models one session needs. An Engine is not safe
// for concurrent use; the Pool hands each one to a single session at a time.
type Engine struct {
	ppe      *PPEDetector
	faces    *FaceLocator
	embedder *Embedder
}

// InitRuntime loads the ONNX Runtime shared library. libPath may be empty to
// use the platform default name.
func InitRuntime(libPath string) error {
	if libPath == "" {
		libPath = defaultLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

func DestroyRuntime() {
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Warn("destroy onnx runtime", "error", err)
	}
}

func defaultLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

func NewEngine(cfg config.VisionConfig) (*Engine, error) {
	ppePath := filepath.Join(cfg.ModelsDir, cfg.PPEModel)
	facePath := filepath.Join(cfg.ModelsDir, cfg.FaceModel)
	embPath := filepath.Join(cfg.ModelsDir, cfg.EmbeddingModel)

	slog.Debug("loading ppe model", "path", ppePath)
	ppe, err := NewPPEDetector(ppePath, float32(cfg.DetectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load ppe detector: %w", err)
	}

	slog.Debug("loading face model", "path", facePath)
	faces, err := NewFaceLocator(facePath, float32(cfg.FaceThreshold), nil)
	if err != nil {
		ppe.Close()
		return nil, fmt.Errorf("load face locator: %w", err)
	}

	slog.Debug("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, nil)
	if err != nil {
		ppe.Close()
		faces.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &Engine{ppe: ppe, faces: faces, embedder: emb}, nil
}

func (e *Engine) Detect(img image.Image) ([]models.Detection, error) {
	return e.ppe.Detect(img)
}

func (e *Engine) LocateFaces(img image.Image) ([][4]float32, error) {
	located, err := e.faces.Locate(img)
	if err != nil {
		return nil, err
	}
	boxes := make([][4]float32, len(located))
	for i, f := range located {
		boxes[i] = f.BBox
	}
	return boxes, nil
}

func (e *Engine) ExtractEmbedding(img image.Image, box [4]float32) ([]float32, error) {
	return e.embedder.Extract(img, box)
}

func (e *Engine) Close() {
	e.ppe.Close()
	e.faces.Close()
	e.embedder.Close()
}
