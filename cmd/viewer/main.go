package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/vulkan-renderer/internal/config"
	"github.com/vkngwrapper/vulkan-renderer/internal/frame"
	"github.com/vkngwrapper/vulkan-renderer/internal/host"
	"github.com/vkngwrapper/vulkan-renderer/internal/model"
	"github.com/vkngwrapper/vulkan-renderer/internal/pipeline"
	"github.com/vkngwrapper/vulkan-renderer/internal/renderer"
)

func init() {
	// SDL and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()
}

func newRootCommand() *cobra.Command {
	var configPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:           "viewer",
		Short:         "Render textured, spinning OBJ models with Vulkan",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "viewer.toml", "path to the TOML configuration")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	return cmd
}

func run(cfg config.Config, logger *slog.Logger) error {
	h, err := host.New(host.Options{
		Title:          cfg.Window.Title,
		Width:          cfg.Window.Width,
		Height:         cfg.Window.Height,
		Validation:     cfg.Renderer.Validation,
		FramesInFlight: cfg.Renderer.FramesInFlight,
		Depth:          cfg.Renderer.Depth,
		MSAA:           cfg.Renderer.MSAA,
		MaxSamples:     cfg.Renderer.MaxSamples,
		MinExtent:      cfg.Renderer.MinExtent,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer h.Destroy()

	var models []renderer.ModelSource
	for _, m := range cfg.Assets.Models {
		models = append(models, renderer.ModelSource{Name: m.Name, Path: m.Path})
	}

	r := renderer.New(h, renderer.Options{
		Shaders:        pipeline.DirLoader(cfg.Assets.ShaderDir),
		VertexShader:   cfg.Assets.VertexShader,
		FragmentShader: cfg.Assets.FragmentShader,
		Importer:       model.ObjImporter{},
		Models:         models,
		TexturePath:    cfg.Assets.Texture,
		Depth:          cfg.Renderer.Depth,
		Camera: frame.Camera{
			Eye:    mgl32.Vec3(cfg.Camera.Eye),
			Center: mgl32.Vec3(cfg.Camera.Center),
			Up:     mgl32.Vec3(cfg.Camera.Up),
			FovY:   cfg.Camera.FovY,
			Near:   cfg.Camera.Near,
			Far:    cfg.Camera.Far,
		},
		DegreesPerSecond: cfg.Animation.DegreesPerSecond,
		ClearColor:       cfg.Renderer.ClearColor,
		MinExtent:        cfg.Renderer.MinExtent,
		Logger:           logger,
	})
	return h.Run(r)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
