package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/Carmen-Shannon/oxy-particles/engine/particles"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-particles/engine/scene"
	"github.com/Carmen-Shannon/oxy-particles/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newValidateCommand(a *app) *cobra.Command {
	var shaderDir string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compile the shaders and check the pass binding contract without a GPU",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := a.cfg.Assets.ShaderDir
			if shaderDir != "" {
				dir = shaderDir
			}
			return validate(logger.Named("validate"), dir, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&shaderDir, "shader-dir", "", "validate the .wgsl files of this directory instead of the embedded ones")
	return cmd
}

func validate(log *zap.Logger, dir string, out io.Writer) error {
	programs, err := scene.LoadPrograms(dir)
	if err != nil {
		return err
	}

	var errs []error
	for _, key := range slices.Sorted(maps.Keys(programs)) {
		err := shader.Validate(programs[key])
		switch {
		case err == nil:
			fmt.Fprintf(out, "ok    shader %s\n", key)
		case shader.IsUnsupported(err):
			log.Warn("shader skipped by the compiler", zap.String("shader", key), zap.Error(err))
			fmt.Fprintf(out, "skip  shader %s\n", key)
		default:
			fmt.Fprintf(out, "FAIL  shader %s\n", key)
			errs = append(errs, err)
		}
	}

	pipelines := programs.Pipelines()
	for _, p := range pipelines {
		if err := p.Validate(); err != nil {
			fmt.Fprintf(out, "FAIL  pipeline %s\n", p.PipelineKey())
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "ok    pipeline %s\n", p.PipelineKey())
	}

	if err := scene.CheckBindingContract(pipelines); err != nil {
		fmt.Fprintln(out, "FAIL  binding contract")
		errs = append(errs, err)
	} else {
		fmt.Fprintln(out, "ok    binding contract")
	}

	if err := particles.DefaultFramePlan().Validate(); err != nil {
		fmt.Fprintln(out, "FAIL  frame plan")
		errs = append(errs, err)
	} else {
		fmt.Fprintln(out, "ok    frame plan")
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
