package commands

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/shader"
	"github.com/Carmen-Shannon/oxy-gpu/engine/view"
	"github.com/Carmen-Shannon/oxy-gpu/engine/window"
	"github.com/spf13/cobra"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Draw a full screen quad into a window",
	Long: `Open a window and draw the uv gradient quad into it. With a frame interval of
zero the view only redraws when space is pressed; otherwise P pauses and resumes
drawing. Escape closes the window.`,
	Args: cobra.NoArgs,
	RunE: runView,
}

func init() {
	flags := viewCmd.Flags()
	flags.Int("width", cfg.Window.Width, "window width")
	flags.Int("height", cfg.Window.Height, "window height")
	flags.String("title", cfg.Window.Title, "window title")
	flags.Duration("frame-interval", cfg.FrameInterval, "redraw interval, 0 redraws on demand")

	v.BindPFlag("window.width", flags.Lookup("width"))
	v.BindPFlag("window.height", flags.Lookup("height"))
	v.BindPFlag("window.title", flags.Lookup("title"))
	v.BindPFlag("frame_interval", flags.Lookup("frame-interval"))
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, _ []string) error {
	w, err := window.NewWindow(
		window.WithTitle(cfg.Window.Title),
		window.WithSize(cfg.Window.Width, cfg.Window.Height),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	options := []engine.GPUBuilderOption{
		engine.WithBackend(engine.BackendWGPU),
		engine.WithWGPUOptions(device.WithCompatibleSurface(w.SurfaceDescriptor())),
	}
	if cfg.LibraryPath == "" {
		options = append(options, engine.WithLibrarySource("quad", shader.QuadSource))
	}
	g, err := engine.NewGPUFromConfig(cfg, options...)
	if err != nil {
		return err
	}
	defer g.Release()

	// the quad needs the surface format, which is known once the view configured the surface
	var frame view.DrawFunc
	vw, err := view.NewWindowView(g, w,
		func(ctx context.Context, g engine.GPU, drawable device.Drawable, desc device.RenderPassDescriptor) error {
			return frame(ctx, g, drawable, desc)
		},
		view.WithUpdateProcedure(view.Rate(cfg.FrameInterval)),
		view.WithClearColor(0, 0, 0, 1),
	)
	if err != nil {
		return err
	}
	defer vw.Release()
	frame = view.PassDraw(shader.NewQuadShader(shader.Format(vw.Surface().Format()), shader.DrawableDescriptor(nil)))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	redraw := func() {
		drawCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if _, err := vw.Draw(drawCtx); err != nil {
			common.Logger().Warn("frame failed", "error", err)
		}
	}
	rate := view.Rate(cfg.FrameInterval)
	w.SetKeyDownCallback(func(key uint32) {
		switch key {
		case common.KeySpace:
			redraw()
		case common.KeyP:
			if rate.IsManual() {
				return
			}
			if vw.UpdateProcedure().IsManual() {
				vw.SetUpdateProcedure(rate)
			} else {
				vw.SetUpdateProcedure(view.Manual())
			}
		}
	})
	if vw.UpdateProcedure().IsManual() {
		redraw()
	}

	common.Logger().Info("view running", "device", g.Name(), "interval", cfg.FrameInterval)
	vw.Run(ctx)
	return nil
}
