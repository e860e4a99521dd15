package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[window]
title = "Models"

[renderer]
frames_in_flight = 3
msaa = false
clear_color = [0.1, 0.2, 0.3, 1.0]

[[assets.models]]
name = "Cube"
path = "cube.obj"

[[assets.models]]
name = "Room"
path = "room.obj"
`))
	require.NoError(t, err)

	assert.Equal(t, "Models", cfg.Window.Title)
	assert.Equal(t, 800, cfg.Window.Width)
	assert.Equal(t, 3, cfg.Renderer.FramesInFlight)
	assert.False(t, cfg.Renderer.MSAA)
	assert.True(t, cfg.Renderer.Depth)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1.0}, cfg.Renderer.ClearColor)
	require.Len(t, cfg.Assets.Models, 2)
	assert.Equal(t, Model{Name: "Room", Path: "room.obj"}, cfg.Assets.Models[1])
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"frames":        "[renderer]\nframes_in_flight = 4\n",
		"zero frames":   "[renderer]\nframes_in_flight = 0\n",
		"width":         "[window]\nwidth = -1\n",
		"zero extent":   "[renderer]\nmin_extent = 0\n",
		"neg extent":    "[renderer]\nmin_extent = -3\n",
		"near far":      "[camera]\nnear = 10.0\nfar = 1.0\n",
		"unnamed model": "[[assets.models]]\npath = \"a.obj\"\n",
		"unknown key":   "[renderer]\nframes = 2\n",
		"syntax":        "[renderer\n",
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestValidateRequiresModels(t *testing.T) {
	cfg := Default()
	cfg.Assets.Models = nil
	require.Error(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nframes_in_flight = 9\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "viewer.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
