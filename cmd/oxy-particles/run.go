package main

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-particles/config"
	"github.com/Carmen-Shannon/oxy-particles/engine"
	"github.com/Carmen-Shannon/oxy-particles/engine/camera"
	"github.com/Carmen-Shannon/oxy-particles/engine/loader"
	"github.com/Carmen-Shannon/oxy-particles/engine/mesh"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer"
	"github.com/Carmen-Shannon/oxy-particles/engine/scene"
	"github.com/Carmen-Shannon/oxy-particles/engine/texture"
	"github.com/Carmen-Shannon/oxy-particles/engine/window"
	"github.com/Carmen-Shannon/oxy-particles/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	sphereRings    = 64
	sphereSegments = 128

	minWindowWidth  = 320
	minWindowHeight = 180
)

type runOptions struct {
	vsync    bool
	software bool
	watch    bool
	seed     uint32
}

func newRunCommand(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open a window and render the dissolve",
		Long: "Open a window and render the dissolve of a mesh into particles.\n\n" +
			"Keys: A/D/W/S or a left drag orbit, scroll zooms, [ and ] move the threshold, - and = change the hide speed, " +
			"space pauses and R restarts.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), a, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.vsync, "vsync", true, "wait for vertical blank before presenting")
	cmd.Flags().BoolVar(&opts.software, "software", false, "force the fallback (software) adapter")
	cmd.Flags().BoolVar(&opts.watch, "watch", true, "reload tunables when the config file changes")
	cmd.Flags().Uint32Var(&opts.seed, "seed", 1, "seed of the procedural textures")
	return cmd
}

func run(ctx context.Context, a *app, opts *runOptions) error {
	cfg, log := a.cfg, a.log
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr, log.Named("metrics")); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	textures, err := texture.LoadSet(ctx, texture.Sources{
		NoisePath: cfg.Assets.NoiseTexture,
		SpawnPath: cfg.Assets.SpawnTexture,
		Size:      cfg.Assets.TextureSize,
		Seed:      opts.seed,
	})
	if err != nil {
		return err
	}
	geometry, err := loadMesh(cfg.Assets.Mesh, log)
	if err != nil {
		return err
	}
	programs, err := scene.LoadPrograms(cfg.Assets.ShaderDir)
	if err != nil {
		return err
	}

	win, err := window.NewWindow(
		window.WithTitle(cfg.Window.Title),
		window.WithSize(cfg.Window.Width, cfg.Window.Height),
		window.WithMinSize(minWindowWidth, minWindowHeight),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := win.Close(); err != nil {
			log.Warn("close window", zap.Error(err))
		}
	}()

	msaa, ok := renderer.ParseMSAASampleCount(cfg.Renderer.MSAA)
	if !ok {
		return fmt.Errorf("unsupported msaa sample count %d", cfg.Renderer.MSAA)
	}
	presentMode := renderer.PresentModeUncapped
	if opts.vsync {
		presentMode = renderer.PresentModeVSync
	}
	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU, win,
		renderer.WithMSAA(msaa),
		renderer.WithPresentMode(presentMode),
		renderer.WithForceSoftwareRenderer(opts.software),
		renderer.WithShaderValidation(cfg.Renderer.ValidateShaders),
		renderer.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer r.Release()

	sys, err := scene.NewSystem(r, programs, geometry, textures, cfg.Particles.MaxParticles,
		scene.WithSystemLogger(log),
		scene.WithSystemMetrics(m),
	)
	if err != nil {
		return err
	}

	cam := camera.NewCamera(
		camera.WithFovDegrees(cfg.Camera.FOV),
		camera.WithClipPlanes(cfg.Camera.Near, cfg.Camera.Far),
		camera.WithController(camera.NewOrbitController(
			camera.WithTarget(0, 0, 0),
			camera.WithPosition(cfg.Camera.Position[0], cfg.Camera.Position[1], cfg.Camera.Position[2]),
		)),
	)
	sc, err := scene.NewScene("dissolve", cam, sys, cfg.Tunables, win.Width(), win.Height(),
		scene.WithLogger(log),
	)
	if err != nil {
		sys.Release()
		return err
	}
	defer sc.Release()

	if opts.watch && a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, func(next *config.Config) {
			if err := sc.SetTunables(next.Tunables); err != nil {
				log.Warn("rejected reloaded tunables", zap.Error(err))
			}
		}, config.WithWatcherLogger(log))
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()
	}

	eng := engine.NewEngine(
		engine.WithWindow(win),
		engine.WithRenderer(r),
		engine.WithScene(0, sc),
		engine.WithLogger(log),
		engine.WithMetrics(m),
		engine.WithTickRate(float64(cfg.Renderer.TickRate)),
		engine.WithRenderFrameLimit(float64(cfg.Renderer.FrameLimit)),
		engine.WithProfiling(cfg.Renderer.Profiling),
	)
	go func() {
		select {
		case <-ctx.Done():
			log.Info("shutdown requested")
			eng.Quit()
		case <-eng.Done():
		}
	}()

	log.Info("starting",
		zap.Uint32("max_particles", sys.Capacity()),
		zap.Uint32("job_capacity", sys.JobCapacity()),
		zap.Int("msaa", int(msaa)),
	)
	eng.Run()
	log.Info("stopped")
	return nil
}

// loadMesh loads the configured model fitted into the unit sphere, or builds the procedural sphere when no path is
// set.
func loadMesh(path string, log *zap.Logger) (*mesh.Mesh, error) {
	if path == "" {
		return mesh.NewUVSphere(1, sphereRings, sphereSegments)
	}
	l := loader.NewLoader(loader.BackendTypeGLTF,
		loader.WithLogger(log),
		loader.WithFitRadius(1),
	)
	return l.Load(path)
}
