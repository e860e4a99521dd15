// Package config loads the viewer configuration from TOML.
package config

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type Renderer struct {
	// FramesInFlight is the number of frames the CPU may record ahead of the
	// GPU, between 1 and 3.
	FramesInFlight int  `toml:"frames_in_flight"`
	Depth          bool `toml:"depth"`
	MSAA           bool `toml:"msaa"`
	// MaxSamples caps the MSAA sample count. The highest of 16, 8 and 4 the
	// device supports at or below it is used.
	MaxSamples int `toml:"max_samples"`
	// MinExtent is the smallest surface width and height rendered into.
	MinExtent  int        `toml:"min_extent"`
	ClearColor [4]float32 `toml:"clear_color"`
	Validation bool       `toml:"validation"`
}

type Camera struct {
	Eye    [3]float32 `toml:"eye"`
	Center [3]float32 `toml:"center"`
	Up     [3]float32 `toml:"up"`
	FovY   float32    `toml:"fov_y"`
	Near   float32    `toml:"near"`
	Far    float32    `toml:"far"`
}

type Animation struct {
	DegreesPerSecond float32 `toml:"degrees_per_second"`
}

type Model struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

type Assets struct {
	ShaderDir      string  `toml:"shader_dir"`
	VertexShader   string  `toml:"vertex_shader"`
	FragmentShader string  `toml:"fragment_shader"`
	Texture        string  `toml:"texture"`
	Models         []Model `toml:"models"`
}

type Config struct {
	Window    Window    `toml:"window"`
	Renderer  Renderer  `toml:"renderer"`
	Camera    Camera    `toml:"camera"`
	Animation Animation `toml:"animation"`
	Assets    Assets    `toml:"assets"`
}

func Default() Config {
	return Config{
		Window: Window{
			Title:  "Vulkan",
			Width:  800,
			Height: 600,
		},
		Renderer: Renderer{
			FramesInFlight: 2,
			Depth:          true,
			MSAA:           true,
			MaxSamples:     16,
			MinExtent:      5,
			ClearColor:     [4]float32{0, 0, 0, 1},
		},
		Camera: Camera{
			Eye:    [3]float32{2, 2, 2},
			Center: [3]float32{0, 0, 0},
			Up:     [3]float32{0, 0, 1},
			FovY:   45,
			Near:   0.1,
			Far:    10,
		},
		Animation: Animation{DegreesPerSecond: 90},
		Assets: Assets{
			ShaderDir:      "assets/shaders",
			VertexShader:   "vert.spv",
			FragmentShader: "frag.spv",
			Texture:        "assets/textures/viking_room.png",
			Models: []Model{
				{Name: "VikingRoom", Path: "assets/models/viking_room.obj"},
			},
		},
	}
}

// Parse decodes TOML over the defaults. Keys not in Config are rejected. A
// document listing models replaces the default model list.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	cfg.Assets.Models = nil
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, errors.Wrapf(err, "config line %d column %d", row, col)
		}
		return Config{}, errors.Wrap(err, "config")
	}
	if cfg.Assets.Models == nil {
		cfg.Assets.Models = Default().Assets.Models
	}
	return cfg, cfg.Validate()
}

// Load reads path. An empty path or a missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Renderer.FramesInFlight < 1 || c.Renderer.FramesInFlight > 3 {
		return errors.Newf("frames_in_flight must be between 1 and 3, got %d", c.Renderer.FramesInFlight)
	}
	if c.Window.Width < 0 || c.Window.Height < 0 {
		return errors.Newf("window size %dx%d is negative", c.Window.Width, c.Window.Height)
	}
	if c.Renderer.MinExtent < 1 {
		return errors.Newf("min_extent must be at least 1, got %d", c.Renderer.MinExtent)
	}
	if c.Renderer.MSAA && c.Renderer.MaxSamples < 1 {
		return errors.Newf("max_samples must be positive, got %d", c.Renderer.MaxSamples)
	}
	if c.Camera.Near <= 0 || c.Camera.Near >= c.Camera.Far {
		return errors.Newf("camera near %g must be positive and below far %g", c.Camera.Near, c.Camera.Far)
	}
	if len(c.Assets.Models) == 0 {
		return errors.New("no models configured")
	}
	for i, m := range c.Assets.Models {
		if m.Name == "" || m.Path == "" {
			return errors.Newf("model %d needs both name and path", i)
		}
	}
	return nil
}
