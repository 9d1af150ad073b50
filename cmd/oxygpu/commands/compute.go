package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine"
	"github.com/Carmen-Shannon/oxy-gpu/engine/buffer"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/shader"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var (
	computeValues  []float32
	computeFactor  float64
	computeTimeout time.Duration
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Scale a list of numbers on the GPU",
	Long: `Upload the values to a shared buffer, multiply each by the factor in a compute
pass and print the result.`,
	Example: `  oxygpu compute --values 1,2,3 --factor 2.5
  oxygpu compute --backend software --values 4,8`,
	Args: cobra.NoArgs,
	RunE: runCompute,
}

func init() {
	computeCmd.Flags().Float32SliceVar(&computeValues, "values", []float32{1, 2, 3, 4}, "values to scale")
	computeCmd.Flags().Float64Var(&computeFactor, "factor", 2, "scale factor")
	computeCmd.Flags().DurationVar(&computeTimeout, "timeout", 10*time.Second, "how long the pass may take")
	rootCmd.AddCommand(computeCmd)
}

func runCompute(cmd *cobra.Command, _ []string) error {
	if len(computeValues) == 0 {
		return errors.New("no values to scale")
	}

	options := []engine.GPUBuilderOption{engine.WithSoftwareKernels(scaleKernels())}
	if cfg.LibraryPath == "" {
		options = append(options, engine.WithLibrarySource(scaleFunction, scaleSource))
	}
	g, err := engine.NewGPUFromConfig(cfg, options...)
	if err != nil {
		return err
	}
	defer g.Release()

	values := buffer.New[float32]("values", buffer.UsageShared, computeValues...)
	scale := shader.NewComputeShader(scaleFunction, common.Size{},
		shader.WithComputeConstants(device.FunctionConstants{"factor": computeFactor}),
		shader.WithBuffers(values),
		shader.WithDispatch(shader.BufferDispatch()),
	)

	pass := engine.NewPass(scale).WithLabel("scale").WithCompletion(func(context.Context, engine.GPU) error {
		result, ok := values.Values()
		if !ok {
			return common.MissingBackingError("values are not readable")
		}
		fmt.Fprintln(cmd.OutOrStdout(), result)
		return nil
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), computeTimeout)
	defer cancel()
	return g.Execute(ctx, pass)
}
