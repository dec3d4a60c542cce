package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/config"
	"github.com/Carmen-Shannon/oxy-particles/engine/camera"
	"github.com/Carmen-Shannon/oxy-particles/engine/particles"
	"github.com/Carmen-Shannon/oxy-particles/engine/particles/emulator"
	"github.com/Carmen-Shannon/oxy-particles/engine/texture"
	"github.com/Carmen-Shannon/oxy-particles/metrics"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type emulateOptions struct {
	frames  int
	every   int
	width   uint32
	height  uint32
	dt      float32
	workers int
	seed    uint32
}

func newEmulateCommand(a *app) *cobra.Command {
	opts := &emulateOptions{}
	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Run the frame plan on the CPU and print the per-frame counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return emulate(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&opts.frames, "frames", 240, "number of frames to run")
	cmd.Flags().IntVar(&opts.every, "every", 10, "print every n-th frame")
	cmd.Flags().Uint32Var(&opts.width, "width", 320, "framebuffer width")
	cmd.Flags().Uint32Var(&opts.height, "height", 180, "framebuffer height")
	cmd.Flags().Float32Var(&opts.dt, "dt", 1.0/60, "frame time in seconds")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "worker pool size, 0 uses the CPU count")
	cmd.Flags().Uint32Var(&opts.seed, "seed", 1, "seed of the procedural textures")
	return cmd
}

func emulate(ctx context.Context, a *app, opts *emulateOptions, out io.Writer) error {
	cfg, log := a.cfg, a.log
	if opts.frames <= 0 || opts.width == 0 || opts.height == 0 || opts.dt <= 0 {
		return fmt.Errorf("frames, width, height and dt must be positive")
	}
	every := max(opts.every, 1)

	textures, err := texture.LoadSet(ctx, texture.Sources{
		NoisePath: cfg.Assets.NoiseTexture,
		SpawnPath: cfg.Assets.SpawnTexture,
		Size:      cfg.Assets.TextureSize,
		Seed:      opts.seed,
	})
	if err != nil {
		return err
	}

	emuOpts := []emulator.EmulatorBuilderOption{
		emulator.WithLogger(log),
		emulator.WithMetrics(metrics.New()),
	}
	if opts.workers > 0 {
		emuOpts = append(emuOpts, emulator.WithWorkers(opts.workers))
	}
	emu, err := emulator.NewEmulator(opts.width, opts.height, cfg.Particles.MaxParticles, emuOpts...)
	if err != nil {
		return err
	}
	defer emu.Close()

	cam := camera.NewCamera(
		camera.WithFovDegrees(cfg.Camera.FOV),
		camera.WithClipPlanes(cfg.Camera.Near, cfg.Camera.Far),
		camera.WithAspect(float32(opts.width)/float32(opts.height)),
		camera.WithController(camera.NewOrbitController(
			camera.WithPosition(cfg.Camera.Position[0], cfg.Camera.Position[1], cfg.Camera.Position[2]),
		)),
	)
	cam.Update()
	var model [16]float32
	common.Identity(model[:])
	view := cam.ViewUniform(model, opts.width, opts.height)

	coverage := discCoverage(opts.width, opts.height, textures)
	clock := newEmulationClock(cfg.Tunables)

	table := tablewriter.NewWriter(out)
	if err := table.Append(statsHeader); err != nil {
		return fmt.Errorf("append stats header: %w", err)
	}

	start := time.Now()
	var last emulator.FrameStats
	for i := range opts.frames {
		if err := ctx.Err(); err != nil {
			break
		}
		mu, sys := clock.step(opts.dt)
		last, err = emu.Step(emulator.Frame{
			Coverage:              coverage,
			InverseViewProjection: view.InverseViewProjection,
			Model:                 mu,
			System:                sys,
		})
		if err != nil {
			return err
		}
		if i%every == 0 || i == opts.frames-1 {
			if err := table.Append(statsRow(last, mu.AlphaReference)); err != nil {
				return fmt.Errorf("append stats row: %w", err)
			}
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render stats: %w", err)
	}

	log.Info("emulation finished",
		zap.Uint64("frames", last.Frame),
		zap.Duration("elapsed", time.Since(start)),
		zap.Uint32("render_count", last.Global.RenderCount),
	)
	return nil
}

// statsHeader names the columns of the emulate table.
var statsHeader = []string{"frame", "alpha", "emitted", "dropped", "dispatch.x", "render", "cached", "index"}

// statsRow formats the counters of one frame in statsHeader order.
func statsRow(s emulator.FrameStats, alpha float32) []string {
	u := func(v uint32) string { return strconv.FormatUint(uint64(v), 10) }
	return []string{
		strconv.FormatUint(s.Frame, 10),
		strconv.FormatFloat(float64(alpha), 'f', 3, 32),
		u(s.Emitted),
		u(s.Dropped),
		u(s.Dispatch.X),
		u(s.Global.RenderCount),
		u(s.Global.CachedCount),
		u(s.Global.ParticleIndex),
	}
}

// discCoverage stands in for the rasterised mesh: a disc in the middle of the framebuffer textured with the
// dissolve noise and spawn mask.
func discCoverage(width, height uint32, textures texture.Set) emulator.CoverageFunc {
	cx, cy := float32(width)/2, float32(height)/2
	radius := 0.4 * float32(min(width, height))
	return func(x, y uint32) (emulator.Fragment, bool) {
		dx := (float32(x) + 0.5 - cx) / radius
		dy := (float32(y) + 0.5 - cy) / radius
		d2 := dx*dx + dy*dy
		if d2 > 1 {
			return emulator.Fragment{}, false
		}
		u, v := 0.5+dx/2, 0.5+dy/2
		return emulator.Fragment{
			// Nearer in the middle, like the front of a sphere.
			Depth: 0.5 + 0.1*d2,
			Noise: texture.Sample(textures.Noise, u, v),
			Spawn: texture.Sample(textures.Spawn, u, v),
		}, true
	}
}

// emulationClock advances the dissolve threshold the same way the interactive scene does, without input.
type emulationClock struct {
	tunables config.Tunables
	alpha    float32
	time     float32
	frame    uint32
}

func newEmulationClock(t config.Tunables) *emulationClock {
	return &emulationClock{tunables: t, alpha: t.AlphaReference}
}

func (c *emulationClock) step(dt float32) (particles.GPUModelUniform, particles.GPUParticleSystem) {
	c.time += dt
	c.frame++
	c.alpha = min(c.alpha+c.tunables.HideSpeed*dt, 1+c.tunables.DeltaAlphaEstimation)

	model := particles.GPUModelUniform{
		AlphaReference:       c.alpha,
		DeltaAlphaEstimation: c.tunables.DeltaAlphaEstimation,
		ModelAlpha:           common.Clamp(1-c.alpha, 0, 1),
		Time:                 c.time,
	}
	sys := particles.GPUParticleSystem{
		DeltaT:   dt,
		Speed:    c.tunables.Speed,
		Random:   float32(c.frame*2654435761%1000) / 1000,
		Time:     c.time,
		Wind:     c.tunables.Wind,
		Lifetime: c.tunables.Lifetime,
	}
	return model, sys
}
