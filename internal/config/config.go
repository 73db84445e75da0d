package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

type BackendType string

const (
	BackendONNX   BackendType = "onnx"
	BackendRemote BackendType = "remote"
)

type LoggingLevel string

const (
	LoggingLevelDebug LoggingLevel = "debug"
	LoggingLevelInfo  LoggingLevel = "info"
	LoggingLevelWarn  LoggingLevel = "warn"
	LoggingLevelError LoggingLevel = "error"
)

const (
	DefaultConfigPath  string = "config.toml"
	DefaultModelPath   string = "models/best.onnx"
	DefaultLogPath     string = "detections.csv"
	DefaultRemoteURL   string = "ws://localhost:8080/ws"
	DefaultWebcamID    string = "/dev/video0"
	DefaultThemeName   string = "light"
	DefaultTargetFPS   uint   = 24
	DefaultScaledWidth int    = 640
)

type ModelConfig struct {
	Path                string  `toml:"path"`
	LabelsPath          string  `toml:"labels_path"`
	InputSize           int     `toml:"input_size"`
	ConfidenceThreshold float32 `toml:"confidence_threshold"`
	NMSThreshold        float32 `toml:"nms_threshold"`
}

type DetectorConfig struct {
	Backend   BackendType `toml:"backend"`
	RemoteURL string      `toml:"remote_url"`
	TimeoutMs uint        `toml:"timeout_ms"`
}

type CaptureConfig struct {
	TargetFPS    uint   `toml:"target_fps"`
	ScaledWidth  int    `toml:"scaled_width"`
	ScaledHeight int    `toml:"scaled_height"`
	DeviceID     string `toml:"device_id"`
}

type OutputConfig struct {
	LogPath string `toml:"log_path"`
}

type LoggingConfig struct {
	Level LoggingLevel `toml:"level"`
}

type UIConfig struct {
	Theme string `toml:"theme"`
}

type Config struct {
	mu sync.RWMutex
	// baseDir anchors relative paths; it is never written back to the file.
	baseDir string

	Model    ModelConfig    `toml:"model"`
	Detector DetectorConfig `toml:"detector"`
	Capture  CaptureConfig  `toml:"capture"`
	Output   OutputConfig   `toml:"output"`
	Logging  LoggingConfig  `toml:"logging"`
	UI       UIConfig       `toml:"ui"`
}

func (c *Config) GetFPS() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture.TargetFPS
}

func (c *Config) SetFPS(fps uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.TargetFPS = fps
}

func (c *Config) GetWidth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture.ScaledWidth
}

func (c *Config) SetWidth(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.ScaledWidth = width
}

func (c *Config) GetHeight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture.ScaledHeight
}

func (c *Config) SetHeight(height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.ScaledHeight = height
}

func (c *Config) GetDevice() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture.DeviceID
}

func (c *Config) SetDevice(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.DeviceID = id
}

func (c *Config) GetConfidence() float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Model.ConfidenceThreshold
}

func (c *Config) SetConfidence(v float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Model.ConfidenceThreshold = v
}

func (c *Config) GetTheme() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.UI.Theme
}

func (c *Config) SetTheme(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UI.Theme = name
}

func (c *Config) Save(path string) error {
	c.mu.RLock()
	data, err := toml.Marshal(c)
	c.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("unable to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("unable to write %s: %w", path, err)
	}

	return nil
}

// ResolvePaths makes relative model, label and log paths relative to dir.
// The stored values stay as written so Save keeps them relative.
func (c *Config) ResolvePaths(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseDir = dir
}

func (c *Config) ModelPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Resolve(c.baseDir, c.Model.Path)
}

// LabelsPath is empty when no label file is configured.
func (c *Config) LabelsPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Model.LabelsPath == "" {
		return ""
	}
	return Resolve(c.baseDir, c.Model.LabelsPath)
}

func (c *Config) LogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Resolve(c.baseDir, c.Output.LogPath)
}

// Locate finds the config file. A relative path is looked up in the working
// directory first, then next to the executable, which is also where a
// missing file gets created.
func Locate(path, exeDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return Resolve(exeDir, path)
}

// LoadConfigFile returns defaults when the file is missing. A file that
// exists but does not parse is an error.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("unable to read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return NewDefaultConfig(), fmt.Errorf("unable to unmarshal %s: %w", path, err)
	}

	return cfg, nil
}

func NewDefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Path:                DefaultModelPath,
			InputSize:           640,
			ConfidenceThreshold: 0.25,
			NMSThreshold:        0.45,
		},
		Detector: DetectorConfig{
			Backend:   BackendONNX,
			RemoteURL: DefaultRemoteURL,
			TimeoutMs: 5000,
		},
		Capture: CaptureConfig{
			TargetFPS:    DefaultTargetFPS,
			ScaledWidth:  DefaultScaledWidth,
			ScaledHeight: 0,
			DeviceID:     DefaultWebcamID,
		},
		Output:  OutputConfig{LogPath: DefaultLogPath},
		Logging: LoggingConfig{Level: LoggingLevelInfo},
		UI:      UIConfig{Theme: DefaultThemeName},
	}
}

func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("can't find executable's location: %w", err)
	}
	return filepath.Dir(exe), nil
}

// Resolve returns path if it's absolute, joined onto dir otherwise.
func Resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}
