package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Camera ingest modes.
const (
	ModeRTPH264 = "rtp_h264"
	ModeUDPJPEG = "udp_jpeg"
)

// Config is the full arenad configuration, loaded from a JSON file.
type Config struct {
	System          SystemConfig         `json:"system"`
	Camera          CameraConfig         `json:"camera"`
	Frontend        FrontendConfig       `json:"frontend"`
	Communications  CommunicationsConfig `json:"communications"`
	MachineLearning MLConfig             `json:"machinelearning"`
	Arena           ArenaConfig          `json:"arena"`
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	LogLevel string `json:"log_level"` // DEBUG|INFO|WARN|ERROR|FATAL
}

// CameraConfig holds video ingest settings.
type CameraConfig struct {
	Mode       string `json:"mode"` // rtp_h264 or udp_jpeg
	BindIP     string `json:"bind_ip"`
	BindPort   int    `json:"bind_port"`
	RTPPayload int    `json:"rtp_payload"`
}

// FrontendConfig holds browser HTTP server settings.
type FrontendConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// CommunicationsConfig holds the robot websocket server settings.
type CommunicationsConfig struct {
	WSHost string `json:"ws_host"`
	WSPort int    `json:"ws_port"`
}

// MLConfig holds the inference relay settings. Workers dial WSHost:WSPort.
type MLConfig struct {
	Enabled   bool   `json:"enabled"`
	WSHost    string `json:"ws_host"`
	WSPort    int    `json:"ws_port"`
	ModelsDir string `json:"models_dir"`
}

// CornerIDs maps the four arena corner markers to their fiducial ids.
type CornerIDs struct {
	BL int `json:"bl"`
	TL int `json:"tl"`
	TR int `json:"tr"`
	BR int `json:"br"`
}

// JPEGQuality holds per-stream JPEG encode quality.
type JPEGQuality struct {
	Overlay int `json:"overlay"`
	Crop    int `json:"crop"`
}

// ArenaConfig holds the physical arena geometry and crop settings.
type ArenaConfig struct {
	IDs CornerIDs `json:"ids"`

	// WorldCorners are the arena coordinates the corner marker origins map
	// to, in TL, TR, BR, BL order.
	WorldCorners [4][2]float64 `json:"world_corners"`

	CropRefreshSeconds      int         `json:"crop_refresh_seconds"`
	BorderMarkerFraction    float64     `json:"border_marker_fraction"`
	OutputWidth             int         `json:"output_width"`
	OutputHeight            int         `json:"output_height"`
	VerticalPaddingFraction float64     `json:"vertical_padding_fraction"`
	JPEGQuality             JPEGQuality `json:"jpeg_quality"`
}

// Default returns the built-in configuration. Values from the config file
// overlay these.
func Default() *Config {
	return &Config{
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Camera: CameraConfig{
			Mode:       ModeUDPJPEG,
			BindIP:     "0.0.0.0",
			BindPort:   5000,
			RTPPayload: 96,
		},
		Frontend: FrontendConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Communications: CommunicationsConfig{
			WSHost: "0.0.0.0",
			WSPort: 7755,
		},
		MachineLearning: MLConfig{
			Enabled:   false,
			WSHost:    "0.0.0.0",
			WSPort:    7756,
			ModelsDir: "models",
		},
		Arena: ArenaConfig{
			IDs: CornerIDs{BL: 0, TL: 1, TR: 2, BR: 3},
			WorldCorners: [4][2]float64{
				{0, 2}, {4, 2}, {4, 0}, {0, 0},
			},
			CropRefreshSeconds:      600,
			BorderMarkerFraction:    0.5,
			OutputWidth:             1000,
			OutputHeight:            500,
			VerticalPaddingFraction: 0.01,
			JPEGQuality:             JPEGQuality{Overlay: 80, Crop: 75},
		},
	}
}

// Load reads the JSON config at path over the defaults. A missing file is an
// error: the arena geometry must be deliberate.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration for values the rest of the system
// cannot work with.
func (c *Config) Validate() error {
	switch c.Camera.Mode {
	case ModeRTPH264, ModeUDPJPEG:
	default:
		return fmt.Errorf("camera.mode: unknown mode %q", c.Camera.Mode)
	}
	if c.Camera.BindPort <= 0 || c.Camera.BindPort > 65535 {
		return fmt.Errorf("camera.bind_port: invalid port %d", c.Camera.BindPort)
	}
	if c.Frontend.Port <= 0 || c.Frontend.Port > 65535 {
		return fmt.Errorf("frontend.port: invalid port %d", c.Frontend.Port)
	}
	if c.Communications.WSPort <= 0 || c.Communications.WSPort > 65535 {
		return fmt.Errorf("communications.ws_port: invalid port %d", c.Communications.WSPort)
	}
	if c.MachineLearning.Enabled && (c.MachineLearning.WSPort <= 0 || c.MachineLearning.WSPort > 65535) {
		return fmt.Errorf("machinelearning.ws_port: invalid port %d", c.MachineLearning.WSPort)
	}
	if c.Arena.OutputWidth <= 0 || c.Arena.OutputHeight <= 0 {
		return fmt.Errorf("arena: output size %dx%d is not positive",
			c.Arena.OutputWidth, c.Arena.OutputHeight)
	}
	if c.Arena.CropRefreshSeconds <= 0 {
		return fmt.Errorf("arena.crop_refresh_seconds: must be positive, got %d",
			c.Arena.CropRefreshSeconds)
	}
	if q := c.Arena.JPEGQuality; q.Overlay < 1 || q.Overlay > 100 || q.Crop < 1 || q.Crop > 100 {
		return fmt.Errorf("arena.jpeg_quality: quality must be 1..100")
	}
	ids := map[int]bool{c.Arena.IDs.BL: true, c.Arena.IDs.TL: true, c.Arena.IDs.TR: true, c.Arena.IDs.BR: true}
	if len(ids) != 4 {
		return fmt.Errorf("arena.ids: corner ids must be distinct")
	}
	return nil
}
