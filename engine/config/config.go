// Package config loads the engine settings from a TOML file and watches it for changes.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

const DefaultPath = "anima.toml"

type Config struct {
	Application Application `toml:"application"`
	Log         Log         `toml:"log"`
	Renderer    Renderer    `toml:"renderer"`
	Descriptors Descriptors `toml:"descriptors"`
	Geometry    Geometry    `toml:"geometry"`
}

type Application struct {
	Name   string `toml:"name"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type Log struct {
	Level string `toml:"level"`
}

type Renderer struct {
	Backend        string `toml:"backend"`
	FramesInFlight int    `toml:"frames_in_flight"`
	PresentMode    string `toml:"present_mode"`
	Validation     bool   `toml:"validation"`
	// Debug panics on frame state misuse instead of returning an error.
	Debug              bool       `toml:"debug"`
	RequireDiscreteGPU bool       `toml:"require_discrete_gpu"`
	ClearColor         [4]float32 `toml:"clear_color"`
	StorageArenaSize   uint64     `toml:"storage_arena_size"`
}

type Descriptors struct {
	SetsPerPool uint32 `toml:"sets_per_pool"`
}

type Geometry struct {
	VertexArenaSize uint64 `toml:"vertex_arena_size"`
	IndexArenaSize  uint64 `toml:"index_arena_size"`
	MaxMeshes       int    `toml:"max_meshes"`
}

func Default() Config {
	return Config{
		Application: Application{
			Name:   "Anima",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Log: Log{Level: "info"},
		Renderer: Renderer{
			Backend:          "vulkan",
			FramesInFlight:   2,
			PresentMode:      "mailbox",
			ClearColor:       [4]float32{0.01, 0.01, 0.01, 1},
			StorageArenaSize: 1 << 20,
		},
		Descriptors: Descriptors{SetsPerPool: 1000},
		Geometry: Geometry{
			VertexArenaSize: 4 << 20,
			IndexArenaSize:  1 << 20,
			MaxMeshes:       1024,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults; unknown keys are an
// error.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		core.LogInfo("no config at %s, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		err = fmt.Errorf("failed to open config %s: %w", path, err)
		core.LogError(err.Error())
		return Config{}, err
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			err = fmt.Errorf("config %s has unknown keys:\n%s", path, strict.String())
		} else {
			err = fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		core.LogError(err.Error())
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Application.Width == 0 || c.Application.Height == 0 {
		errs = append(errs, fmt.Errorf("application: window size %dx%d must be non-zero", c.Application.Width, c.Application.Height))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		errs = append(errs, fmt.Errorf("log: unknown level %q", c.Log.Level))
	}
	if _, err := renderer.ParseRendererType(c.Renderer.Backend); err != nil {
		errs = append(errs, fmt.Errorf("renderer: %w", err))
	}
	if c.Renderer.FramesInFlight < 1 {
		errs = append(errs, fmt.Errorf("renderer: frames_in_flight must be at least 1, got %d", c.Renderer.FramesInFlight))
	}
	if _, err := driver.ParsePresentMode(c.Renderer.PresentMode); err != nil {
		errs = append(errs, fmt.Errorf("renderer: %w", err))
	}
	for i, v := range c.Renderer.ClearColor {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("renderer: clear_color[%d] = %g is outside [0, 1]", i, v))
		}
	}
	if c.Renderer.StorageArenaSize == 0 {
		errs = append(errs, errors.New("renderer: storage_arena_size must be non-zero"))
	}
	if c.Descriptors.SetsPerPool == 0 {
		errs = append(errs, errors.New("descriptors: sets_per_pool must be non-zero"))
	}
	if c.Geometry.VertexArenaSize == 0 || c.Geometry.IndexArenaSize == 0 {
		errs = append(errs, errors.New("geometry: arena sizes must be non-zero"))
	}
	if c.Geometry.MaxMeshes < 1 {
		errs = append(errs, fmt.Errorf("geometry: max_meshes must be at least 1, got %d", c.Geometry.MaxMeshes))
	}

	if err := errors.Join(errs...); err != nil {
		err = fmt.Errorf("invalid config: %w", err)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// Mode parses PresentMode, falling back to FIFO which every device supports.
func (r Renderer) Mode() driver.PresentMode {
	mode, _ := driver.ParsePresentMode(r.PresentMode)
	return mode
}
