package engine_test

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine"
	"github.com/Carmen-Shannon/oxy-gpu/engine/buffer"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/shader"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
)

func ExampleGPU_Execute() {
	square := func(inv *device.ComputeInvocation) {
		p := inv.ThreadPositionInGrid
		data := inv.Buffers[0]
		if p.Y != 0 || p.Z != 0 || (p.X+1)*4 > len(data) {
			return
		}
		v := common.ReadElement[float32](data, p.X)
		common.WriteElement(data, p.X, v*v)
	}

	g, err := engine.NewGPU(
		engine.WithBackend(engine.BackendSoftware),
		engine.WithSoftwareKernels(device.Kernels{Compute: map[string]device.ComputeKernel{"square": square}}),
	)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer g.Release()

	values := buffer.New[float32]("values", buffer.UsageShared, 1, 2, 3, 4)
	pass := engine.NewPass(
		shader.NewComputeShader("square", common.Size{},
			shader.WithBuffers(values),
			shader.WithDispatch(shader.BufferDispatch()),
		),
	).WithCompletion(func(context.Context, engine.GPU) error {
		result, _ := values.Values()
		fmt.Println(result)
		return nil
	})

	if err := g.Execute(context.Background(), pass); err != nil {
		fmt.Println(err)
	}
	// Output: [1 4 9 16]
}

func ExampleNewPassQueue() {
	g, err := engine.NewGPU(engine.WithBackend(engine.BackendSoftware), engine.WithSoftwareKernels(shader.QuadKernels()))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer g.Release()

	target := texture.Empty("target", device.TextureDescriptor{Format: device.PixelFormatRGBA8Unorm, Width: 2, Height: 2})
	readback := texture.Empty("readback", device.TextureDescriptor{Format: device.PixelFormatRGBA8Unorm, Width: 2, Height: 2})
	quad := shader.NewQuadShader(shader.FormatOf(target), shader.TextureTarget(target, device.LoadActionClear, device.StoreActionStore))

	q := engine.NewPassQueue(g, 0)
	draw := q.Submit(context.Background(), engine.NewPass(quad).WithLabel("draw"))
	copied := q.Submit(context.Background(), engine.NewPass(shader.CopyTexture(target, readback)).WithLabel("copy"))
	fmt.Println(<-draw, <-copied)
	q.Close()

	tex, _ := readback.Resolved()
	fmt.Println(tex.(device.HostTexture).Bytes()[:4])
	// Output:
	// <nil> <nil>
	// [64 64 0 255]
}
