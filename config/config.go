// Package config loads the YAML configuration of the particle demo, applies environment overrides and validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure returned from Validate.
var ErrInvalid = errors.New("invalid config")

// Config is the root configuration document.
type Config struct {
	Window    WindowConfig    `yaml:"window"`
	Renderer  RendererConfig  `yaml:"renderer"`
	Particles ParticlesConfig `yaml:"particles"`
	Tunables  Tunables        `yaml:"tunables"`
	Camera    CameraConfig    `yaml:"camera"`
	Assets    AssetsConfig    `yaml:"assets"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// WindowConfig holds the initial window settings.
type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// RendererConfig holds the frame pacing and surface settings.
type RendererConfig struct {
	// TickRate is the simulation tick frequency in ticks per second.
	TickRate int `yaml:"tick_rate"`
	// FrameLimit caps the render loop in frames per second. Zero renders uncapped.
	FrameLimit int `yaml:"frame_limit"`
	// MSAA is the sample count of the surface pass, 1 or 4.
	MSAA int `yaml:"msaa"`
	// Profiling enables the periodic FPS / memory profiler.
	Profiling bool `yaml:"profiling"`
	// ValidateShaders compiles every shader with naga before creating GPU modules.
	ValidateShaders bool `yaml:"validate_shaders"`
}

// ParticlesConfig holds the fixed sizes of the particle system. These cannot change at runtime.
type ParticlesConfig struct {
	// MaxParticles is the capacity of the particle ring buffer.
	MaxParticles uint32 `yaml:"max_particles"`
}

// Tunables are the values that can change while the demo runs, either from the keyboard or by editing the config file.
type Tunables struct {
	// AlphaReference is the dissolve threshold. Fragments with noise below it are gone.
	AlphaReference float32 `yaml:"alpha_reference"`
	// DeltaAlphaEstimation is the width of the emitting band below AlphaReference.
	DeltaAlphaEstimation float32 `yaml:"delta_alpha_estimation"`
	// HideSpeed is how fast AlphaReference rises per second while the dissolve is running.
	HideSpeed float32 `yaml:"hide_speed"`
	// Speed scales the particle velocity.
	Speed float32 `yaml:"speed"`
	// Lifetime is the number of seconds a particle stays visible.
	Lifetime float32 `yaml:"lifetime"`
	// Wind is the constant acceleration direction applied to particles.
	Wind [3]float32 `yaml:"wind"`
}

// CameraConfig holds the initial camera placement.
type CameraConfig struct {
	Position [3]float32 `yaml:"position"`
	FOV      float32    `yaml:"fov"`
	Near     float32    `yaml:"near"`
	Far      float32    `yaml:"far"`
}

// AssetsConfig points at optional textures on disk. Empty paths select the procedural defaults.
type AssetsConfig struct {
	NoiseTexture string `yaml:"noise_texture"`
	SpawnTexture string `yaml:"spawn_texture"`
	// Mesh is a .gltf or .glb model dissolved instead of the procedural sphere.
	Mesh string `yaml:"mesh"`
	// TextureSize is the side length textures are resampled to.
	TextureSize int `yaml:"texture_size"`
	// ShaderDir, when set, loads WGSL sources from disk instead of the embedded copies.
	ShaderDir string `yaml:"shader_dir"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Encoding    string `yaml:"encoding"`
	Environment string `yaml:"environment"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
//
// Returns:
//   - *Config: a fully populated configuration
func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "oxy-particles",
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			TickRate:   60,
			FrameLimit: 0,
			MSAA:       4,
		},
		Particles: ParticlesConfig{
			MaxParticles: 1 << 18,
		},
		Tunables: Tunables{
			AlphaReference:       0,
			DeltaAlphaEstimation: 0.02,
			HideSpeed:            0.1,
			Speed:                1,
			Lifetime:             3,
			Wind:                 [3]float32{0.2, 0.6, 0},
		},
		Camera: CameraConfig{
			Position: [3]float32{0, 0, -2.5},
			FOV:      60,
			Near:     0.1,
			Far:      256,
		},
		Assets: AssetsConfig{
			TextureSize: 256,
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "console",
			Environment: "development",
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
	}
}

// Load reads the YAML file at path on top of the defaults and applies environment overrides.
// An empty path loads only defaults and environment.
//
// Parameters:
//   - path: the YAML file to read, may be empty
//
// Returns:
//   - *Config: the loaded and validated configuration
//   - error: error if the file could not be read, parsed or validated
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML data into cfg. Fields absent from data keep their current values.
//
// Parameters:
//   - data: the YAML document
//   - cfg: the configuration to decode into
//
// Returns:
//   - error: error if the document is malformed or contains unknown fields
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides values from OXY_* environment variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("OXY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("OXY_LOG_ENCODING"); v != "" {
		c.Log.Encoding = v
	}
	if v := getenv("OXY_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
		c.Metrics.Enabled = true
	}
	if v := getenv("OXY_SHADER_DIR"); v != "" {
		c.Assets.ShaderDir = v
	}
	if v := getenv("OXY_MAX_PARTICLES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid OXY_MAX_PARTICLES: %w", err)
		}
		c.Particles.MaxParticles = uint32(n)
	}
	if v := getenv("OXY_MSAA"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid OXY_MSAA: %w", err)
		}
		c.Renderer.MSAA = n
	}
	return nil
}

// Validate checks the configuration for values the renderer cannot work with.
//
// Returns:
//   - error: an error wrapping ErrInvalid describing the first problem found
func (c *Config) Validate() error {
	switch {
	case c.Window.Width <= 0 || c.Window.Height <= 0:
		return fmt.Errorf("%w: window size %dx%d", ErrInvalid, c.Window.Width, c.Window.Height)
	case c.Renderer.TickRate <= 0:
		return fmt.Errorf("%w: tick_rate must be positive", ErrInvalid)
	case c.Renderer.FrameLimit < 0:
		return fmt.Errorf("%w: frame_limit must not be negative", ErrInvalid)
	case c.Renderer.MSAA != 1 && c.Renderer.MSAA != 4:
		return fmt.Errorf("%w: msaa must be 1 or 4, got %d", ErrInvalid, c.Renderer.MSAA)
	case c.Particles.MaxParticles == 0:
		return fmt.Errorf("%w: max_particles must be positive", ErrInvalid)
	case c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near:
		return fmt.Errorf("%w: camera planes near=%v far=%v", ErrInvalid, c.Camera.Near, c.Camera.Far)
	case c.Camera.FOV <= 0 || c.Camera.FOV >= 180:
		return fmt.Errorf("%w: camera fov %v", ErrInvalid, c.Camera.FOV)
	case c.Assets.TextureSize <= 0:
		return fmt.Errorf("%w: texture_size must be positive", ErrInvalid)
	}
	return c.Tunables.Validate()
}

// Validate checks the runtime tunables.
//
// Returns:
//   - error: an error wrapping ErrInvalid describing the first problem found
func (t Tunables) Validate() error {
	switch {
	case t.AlphaReference < 0 || t.AlphaReference > 1:
		return fmt.Errorf("%w: alpha_reference %v outside [0,1]", ErrInvalid, t.AlphaReference)
	case t.DeltaAlphaEstimation <= 0 || t.DeltaAlphaEstimation > 1:
		return fmt.Errorf("%w: delta_alpha_estimation %v outside (0,1]", ErrInvalid, t.DeltaAlphaEstimation)
	case t.HideSpeed < 0:
		return fmt.Errorf("%w: hide_speed must not be negative", ErrInvalid)
	case t.Lifetime <= 0:
		return fmt.Errorf("%w: lifetime must be positive", ErrInvalid)
	}
	return nil
}
