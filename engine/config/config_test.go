package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "anima.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Fatalf("got %+v, want defaults", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[application]
name = "testbed"

[renderer]
frames_in_flight = 3
present_mode = "fifo"
clear_color = [0.5, 0.25, 0.0, 1.0]

[geometry]
max_meshes = 16
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Application.Name != "testbed" || cfg.Application.Width != Default().Application.Width {
		t.Fatalf("application = %+v", cfg.Application)
	}
	if cfg.Renderer.FramesInFlight != 3 || cfg.Renderer.Mode() != driver.PresentModeFifo {
		t.Fatalf("renderer = %+v", cfg.Renderer)
	}
	if cfg.Renderer.ClearColor != [4]float32{0.5, 0.25, 0, 1} {
		t.Fatalf("clear color = %v", cfg.Renderer.ClearColor)
	}
	if cfg.Geometry.MaxMeshes != 16 || cfg.Geometry.VertexArenaSize != Default().Geometry.VertexArenaSize {
		t.Fatalf("geometry = %+v", cfg.Geometry)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "[renderer]\nframes = 2\n", "unknown keys"},
		{"unknown section", "[audio]\nvolume = 1\n", "unknown keys"},
		{"syntax", "[renderer\n", "failed to parse"},
		{"zero frames", "[renderer]\nframes_in_flight = 0\n", "frames_in_flight"},
		{"present mode", "[renderer]\npresent_mode = \"vsync\"\n", "present mode"},
		{"backend", "[renderer]\nbackend = \"metal\"\n", "not implemented"},
		{"log level", "[log]\nlevel = \"loud\"\n", "unknown level"},
		{"clear color", "[renderer]\nclear_color = [2.0, 0.0, 0.0, 1.0]\n", "clear_color"},
		{"window", "[application]\nwidth = 0\n", "window size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tt.content))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Renderer.FramesInFlight = 0
	cfg.Descriptors.SetsPerPool = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{"frames_in_flight", "sets_per_pool"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "[renderer]\nframes_in_flight = 2\n")

	changes := make(chan Config, 16)
	w, err := Watch(context.Background(), path, func(c Config) { changes <- c })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	writeConfig(t, dir, "[renderer]\nframes_in_flight = 3\n")

	// A write can surface as several events, some of which see a half written file.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Renderer.FramesInFlight == 3 {
				return
			}
		case <-timeout:
			t.Fatal("no reload within 5s")
		}
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w, err := Watch(ctx, writeConfig(t, t.TempDir(), ""), func(Config) {})
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		w.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
