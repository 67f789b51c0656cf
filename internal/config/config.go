package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Vision   VisionConfig   `yaml:"vision"`
	Capture  CaptureConfig  `yaml:"capture"`
	Gate     GateConfig     `yaml:"gate"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	APIKey      string   `yaml:"api_key"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// MQTTConfig configures the gate relay notifier. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type VisionConfig struct {
	// ONNXLibPath is the onnxruntime shared library; empty uses the platform name.
	ONNXLibPath        string  `yaml:"onnx_lib_path"`
	ModelsDir          string  `yaml:"models_dir"`
	PPEModel           string  `yaml:"ppe_model"`
	FaceModel          string  `yaml:"face_model"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	FaceThreshold      float64 `yaml:"face_threshold"`
	// WorkerCount is the number of engines in the pool, i.e. the number of
	// sessions that can run inference at the same time.
	WorkerCount int `yaml:"worker_count"`
}

type CaptureConfig struct {
	// Device is a v4l2 device path, an RTSP URL or an HTTP(S) MJPEG URL.
	Device     string `yaml:"device"`
	FrameWidth int    `yaml:"frame_width"`
	FPS        int    `yaml:"fps"`
}

type GateConfig struct {
	CCTVID           string        `yaml:"cctv_id"`
	DebounceWindow   time.Duration `yaml:"debounce_window"`
	MatchThreshold   float64       `yaml:"match_threshold"`
	MatchStrategy    string        `yaml:"match_strategy"`
	MandatoryPPE     []string      `yaml:"mandatory_ppe"`
	OptionalPPE      []string      `yaml:"optional_ppe"`
	CommandPoll      time.Duration `yaml:"command_poll"`
	TickRate         float64       `yaml:"tick_rate"`
	JPEGQuality      int           `yaml:"jpeg_quality"`
	StoreTimeout     time.Duration `yaml:"store_timeout"`
	SnapshotTimeout  time.Duration `yaml:"snapshot_timeout"`
	BreakerFailures  uint32        `yaml:"breaker_failures"`
	BreakerOpenFor   time.Duration `yaml:"breaker_open_for"`
	SnapshotsEnabled bool          `yaml:"snapshots_enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "gate-snapshots"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "ppe-gate"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "gate"
	}
	if cfg.Vision.PPEModel == "" {
		cfg.Vision.PPEModel = "ppe_yolov10m.onnx"
	}
	if cfg.Vision.FaceModel == "" {
		cfg.Vision.FaceModel = "det_10g.onnx"
	}
	if cfg.Vision.EmbeddingModel == "" {
		cfg.Vision.EmbeddingModel = "w600k_r50.onnx"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.FaceThreshold == 0 {
		cfg.Vision.FaceThreshold = 0.5
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 2
	}
	if cfg.Capture.Device == "" {
		cfg.Capture.Device = "/dev/video0"
	}
	if cfg.Capture.FrameWidth == 0 {
		cfg.Capture.FrameWidth = 640
	}
	if cfg.Capture.FPS == 0 {
		cfg.Capture.FPS = 10
	}
	if cfg.Gate.DebounceWindow == 0 {
		cfg.Gate.DebounceWindow = 60 * time.Second
	}
	if cfg.Gate.MatchThreshold == 0 {
		cfg.Gate.MatchThreshold = 0.5
	}
	if cfg.Gate.MatchStrategy == "" {
		cfg.Gate.MatchStrategy = "nearest"
	}
	if len(cfg.Gate.MandatoryPPE) == 0 {
		cfg.Gate.MandatoryPPE = []string{"coverall", "helmet", "shoes"}
	}
	if len(cfg.Gate.OptionalPPE) == 0 {
		cfg.Gate.OptionalPPE = []string{"glasses", "gloves", "face-mask"}
	}
	if cfg.Gate.CommandPoll == 0 {
		cfg.Gate.CommandPoll = 10 * time.Millisecond
	}
	if cfg.Gate.TickRate == 0 {
		cfg.Gate.TickRate = 10
	}
	if cfg.Gate.JPEGQuality == 0 {
		cfg.Gate.JPEGQuality = 80
	}
	if cfg.Gate.StoreTimeout == 0 {
		cfg.Gate.StoreTimeout = 2 * time.Second
	}
	if cfg.Gate.SnapshotTimeout == 0 {
		cfg.Gate.SnapshotTimeout = time.Second
	}
	if cfg.Gate.BreakerFailures == 0 {
		cfg.Gate.BreakerFailures = 5
	}
	if cfg.Gate.BreakerOpenFor == 0 {
		cfg.Gate.BreakerOpenFor = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GATE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("GATE_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("GATE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("GATE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("GATE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("GATE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("GATE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("GATE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("GATE_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("GATE_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("GATE_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("GATE_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("GATE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("GATE_ONNX_LIB"); v != "" {
		cfg.Vision.ONNXLibPath = v
	}
	if v := os.Getenv("GATE_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("GATE_VISION_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.WorkerCount = n
		}
	}
	if v := os.Getenv("GATE_CAPTURE_DEVICE"); v != "" {
		cfg.Capture.Device = v
	}
	if v := os.Getenv("GATE_CCTV_ID"); v != "" {
		cfg.Gate.CCTVID = v
	}
	if v := os.Getenv("GATE_MATCH_STRATEGY"); v != "" {
		cfg.Gate.MatchStrategy = v
	}
	if v := os.Getenv("GATE_DEBOUNCE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Gate.DebounceWindow = d
		}
	}
}
