package device

import (
	"context"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cockroachdb/errors"
)

// softwareCommand is one recorded unit of work, run in order after Commit.
type softwareCommand func() error

type softwareCommandBuffer struct {
	mu        sync.Mutex
	queue     *softwareQueue
	status    CommandBufferStatus
	open      bool
	commands  []softwareCommand
	drawables []Drawable

	done chan struct{}
	err  error
}

var _ CommandBuffer = &softwareCommandBuffer{}

func newSoftwareCommandBuffer(q *softwareQueue) *softwareCommandBuffer {
	return &softwareCommandBuffer{
		queue:  q,
		status: CommandBufferStatusRecording,
		done:   make(chan struct{}),
	}
}

func (c *softwareCommandBuffer) beginEncoder() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != CommandBufferStatusRecording {
		return errors.Newf("command buffer is %s, not recording", c.status)
	}
	if c.open {
		return errors.New("previous encoder was not ended")
	}
	c.open = true
	return nil
}

func (c *softwareCommandBuffer) endEncoder() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

func (c *softwareCommandBuffer) record(cmd softwareCommand) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, cmd)
}

func (c *softwareCommandBuffer) ComputeEncoder() (ComputeEncoder, error) {
	if err := c.beginEncoder(); err != nil {
		return nil, err
	}
	return &softwareComputeEncoder{softwareBindings: softwareBindings{cb: c}}, nil
}

func (c *softwareCommandBuffer) RenderEncoder(desc RenderPassDescriptor) (RenderEncoder, error) {
	if len(desc.ColorAttachments) == 0 {
		return nil, errors.New("render pass needs at least one color attachment")
	}
	targets := make([]*softwareTexture, 0, len(desc.ColorAttachments))
	for i, a := range desc.ColorAttachments {
		tex, ok := a.Texture.(*softwareTexture)
		if !ok {
			return nil, errors.Newf("color attachment %d is %T, not a software texture", i, a.Texture)
		}
		targets = append(targets, tex)
	}

	if err := c.beginEncoder(); err != nil {
		return nil, err
	}
	for i, a := range desc.ColorAttachments {
		if a.LoadAction != LoadActionClear {
			continue
		}
		target := targets[i]
		color := [4]float32{float32(a.ClearColor[0]), float32(a.ClearColor[1]), float32(a.ClearColor[2]), float32(a.ClearColor[3])}
		c.record(func() error {
			target.fill(color)
			return nil
		})
	}

	e := &softwareRenderEncoder{target: targets[0]}
	e.vertex.cb = c
	e.fragment.cb = c
	e.current = &e.vertex
	return e, nil
}

func (c *softwareCommandBuffer) BlitEncoder() (BlitEncoder, error) {
	if err := c.beginEncoder(); err != nil {
		return nil, err
	}
	return &softwareBlitEncoder{cb: c}, nil
}

func (c *softwareCommandBuffer) Present(drawable Drawable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawables = append(c.drawables, drawable)
}

// Commit starts executing the recorded commands on a goroutine. Command buffers committed to the
// same queue run one after another in commit order.
func (c *softwareCommandBuffer) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != CommandBufferStatusRecording {
		return errors.Newf("command buffer is %s, not recording", c.status)
	}
	if c.open {
		return errors.New("cannot commit with an open encoder")
	}
	c.status = CommandBufferStatusCommitted

	prev := c.queue.enqueue(c.done)
	go c.run(prev, c.commands, c.drawables)
	return nil
}

func (c *softwareCommandBuffer) run(prev chan struct{}, commands []softwareCommand, drawables []Drawable) {
	if prev != nil {
		<-prev
	}

	var err error
	for _, cmd := range commands {
		if err = runSoftwareCommand(cmd); err != nil {
			break
		}
	}
	if err == nil {
		for _, d := range drawables {
			if err = d.Present(); err != nil {
				err = errors.Wrap(err, "failed to present drawable")
				break
			}
		}
	}

	c.mu.Lock()
	if err != nil {
		c.status = CommandBufferStatusError
		c.err = err
		common.Logger().Warn("software command buffer failed", "error", err)
	} else {
		c.status = CommandBufferStatusCompleted
	}
	c.mu.Unlock()
	close(c.done)
}

// runSoftwareCommand turns a kernel panic into an execution error.
func runSoftwareCommand(cmd softwareCommand) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = errors.Wrap(e, "kernel panicked")
				return
			}
			err = errors.Newf("kernel panicked: %v", r)
		}
	}()
	return cmd()
}

// Discard drops the recorded commands without running them.
func (c *softwareCommandBuffer) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != CommandBufferStatusRecording {
		return
	}
	c.status = CommandBufferStatusDiscarded
	c.open = false
	c.commands = nil
	c.drawables = nil
	c.err = errCommandBufferDiscarded
	close(c.done)
}

func (c *softwareCommandBuffer) WaitUntilCompleted(ctx context.Context) error {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *softwareCommandBuffer) Status() CommandBufferStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

type softwareBufferBinding struct {
	buffer *softwareBuffer
	offset uint64
	bytes  []byte
}

// softwareBindings holds the resources bound for the next dispatch or draw.
type softwareBindings struct {
	cb       *softwareCommandBuffer
	buffers  map[int]softwareBufferBinding
	textures []*softwareTexture
	err      error
}

func (b *softwareBindings) fail(err error) {
	b.err = errors.CombineErrors(b.err, err)
}

func (b *softwareBindings) bind(index int, binding softwareBufferBinding) {
	if index < 0 {
		b.fail(errors.Newf("negative buffer index %d", index))
		return
	}
	if b.buffers == nil {
		b.buffers = make(map[int]softwareBufferBinding)
	}
	b.buffers[index] = binding
}

func (b *softwareBindings) SetBuffer(buffer Buffer, offset uint64, index int) {
	buf, ok := buffer.(*softwareBuffer)
	if !ok {
		b.fail(errors.Newf("buffer %d is %T, not a software buffer", index, buffer))
		return
	}
	if offset%BufferOffsetAlignment != 0 {
		b.fail(errors.Newf("buffer %d offset %d is not aligned to %d", index, offset, BufferOffsetAlignment))
		return
	}
	if offset > buf.size {
		b.fail(errors.Newf("buffer %d offset %d is past its size %d", index, offset, buf.size))
		return
	}
	b.bind(index, softwareBufferBinding{buffer: buf, offset: offset})
}

func (b *softwareBindings) SetBytes(data []byte, index int) {
	b.bind(index, softwareBufferBinding{bytes: append([]byte(nil), data...)})
}

func (b *softwareBindings) SetTextures(textures []Texture) {
	bound := make([]*softwareTexture, 0, len(textures))
	for i, t := range textures {
		tex, ok := t.(*softwareTexture)
		if !ok {
			b.fail(errors.Newf("texture %d is %T, not a software texture", i, t))
			return
		}
		bound = append(bound, tex)
	}
	b.textures = bound
}

// snapshot captures the current bindings so later SetBuffer calls do not affect recorded work.
func (b *softwareBindings) snapshot() ([]softwareBufferBinding, []KernelTexture) {
	count := 0
	for index := range b.buffers {
		count = max(count, index+1)
	}
	buffers := make([]softwareBufferBinding, count)
	for index, binding := range b.buffers {
		buffers[index] = binding
	}
	textures := make([]KernelTexture, len(b.textures))
	for i, t := range b.textures {
		textures[i] = t
	}
	return buffers, textures
}

// resolveBuffers slices the device copies of the bound buffers at execution time.
func resolveBuffers(bindings []softwareBufferBinding) [][]byte {
	resolved := make([][]byte, len(bindings))
	for i, binding := range bindings {
		switch {
		case binding.bytes != nil:
			resolved[i] = binding.bytes
		case binding.buffer != nil:
			resolved[i] = binding.buffer.gpu[binding.offset:]
		}
	}
	return resolved
}

type softwareComputeEncoder struct {
	softwareBindings
	pipeline *softwareComputePipeline
}

var _ ComputeEncoder = &softwareComputeEncoder{}

func (e *softwareComputeEncoder) SetPipeline(pipeline ComputePipeline) {
	p, ok := pipeline.(*softwareComputePipeline)
	if !ok {
		e.fail(errors.Newf("pipeline %T is not a software compute pipeline", pipeline))
		return
	}
	e.pipeline = p
}

func (e *softwareComputeEncoder) Dispatch(groups, threadsPerGroup common.Size) {
	if e.pipeline == nil {
		e.fail(errors.New("dispatch without a compute pipeline"))
		return
	}
	pipeline := e.pipeline
	buffers, textures := e.snapshot()
	groups = common.NewSize(groups.Width, groups.Height, groups.Depth)
	threads := common.NewSize(threadsPerGroup.Width, threadsPerGroup.Height, threadsPerGroup.Depth)
	grid := common.Size{
		Width:  groups.Width * threads.Width,
		Height: groups.Height * threads.Height,
		Depth:  groups.Depth * threads.Depth,
	}

	e.cb.record(func() error {
		inv := ComputeInvocation{
			GridSize:  grid,
			Buffers:   resolveBuffers(buffers),
			Textures:  textures,
			Constants: pipeline.constants,
		}
		for gz := range groups.Depth {
			for gy := range groups.Height {
				for gx := range groups.Width {
					inv.GroupPosition = common.Origin{X: gx, Y: gy, Z: gz}
					for tz := range threads.Depth {
						for ty := range threads.Height {
							for tx := range threads.Width {
								inv.ThreadPositionInGroup = common.Origin{X: tx, Y: ty, Z: tz}
								inv.ThreadPositionInGrid = common.Origin{
									X: gx*threads.Width + tx,
									Y: gy*threads.Height + ty,
									Z: gz*threads.Depth + tz,
								}
								pipeline.kernel(&inv)
							}
						}
					}
				}
			}
		}
		return nil
	})
}

func (e *softwareComputeEncoder) End() error {
	e.cb.endEncoder()
	return e.err
}

type softwareRenderEncoder struct {
	vertex   softwareBindings
	fragment softwareBindings
	current  *softwareBindings
	pipeline *softwareRenderPipeline
	target   *softwareTexture
}

var _ RenderEncoder = &softwareRenderEncoder{}

func (e *softwareRenderEncoder) SetBuffer(buffer Buffer, offset uint64, index int) {
	e.current.SetBuffer(buffer, offset, index)
}

func (e *softwareRenderEncoder) SetBytes(data []byte, index int) {
	e.current.SetBytes(data, index)
}

func (e *softwareRenderEncoder) SetTextures(textures []Texture) {
	e.current.SetTextures(textures)
}

func (e *softwareRenderEncoder) SetPipeline(pipeline RenderPipeline) {
	p, ok := pipeline.(*softwareRenderPipeline)
	if !ok {
		e.vertex.fail(errors.Newf("pipeline %T is not a software render pipeline", pipeline))
		return
	}
	e.pipeline = p
}

func (e *softwareRenderEncoder) SetStage(stage Stage) {
	if stage == StageFragment {
		e.current = &e.fragment
		return
	}
	e.current = &e.vertex
}

// Draw runs the vertex kernel for each vertex and then the fragment kernel over every pixel of the
// first color attachment. Geometry is not rasterized; draws are expected to cover the target.
func (e *softwareRenderEncoder) Draw(primitive PrimitiveType, start, count int) {
	if e.pipeline == nil {
		e.vertex.fail(errors.New("draw without a render pipeline"))
		return
	}
	if count <= 0 {
		return
	}
	pipeline := e.pipeline
	target := e.target
	vertexBuffers, vertexTextures := e.vertex.snapshot()
	fragmentBuffers, fragmentTextures := e.fragment.snapshot()
	if primitive != pipeline.primitive {
		common.Logger().Debug("draw primitive differs from pipeline", "draw", primitive, "pipeline", pipeline.primitive)
	}

	e.vertex.cb.record(func() error {
		vinv := VertexInvocation{
			Buffers:   resolveBuffers(vertexBuffers),
			Textures:  vertexTextures,
			Constants: pipeline.vertexConstants,
		}
		for id := start; id < start+count; id++ {
			vinv.VertexID = id
			pipeline.vertex(&vinv)
		}

		size := target.Size()
		finv := FragmentInvocation{
			TargetSize: size,
			Buffers:    resolveBuffers(fragmentBuffers),
			Textures:   fragmentTextures,
			Constants:  pipeline.fragmentConstants,
		}
		for y := range size.Height {
			for x := range size.Width {
				finv.Position = common.Origin{X: x, Y: y}
				finv.UV = [2]float32{
					(float32(x) + 0.5) / float32(size.Width),
					(float32(y) + 0.5) / float32(size.Height),
				}
				target.Store(x, y, 0, pipeline.fragment(&finv))
			}
		}
		return nil
	})
}

func (e *softwareRenderEncoder) End() error {
	e.vertex.cb.endEncoder()
	return errors.CombineErrors(e.vertex.err, e.fragment.err)
}

type softwareBlitEncoder struct {
	cb  *softwareCommandBuffer
	err error
}

var _ BlitEncoder = &softwareBlitEncoder{}

func (e *softwareBlitEncoder) fail(err error) {
	e.err = errors.CombineErrors(e.err, err)
}

func (e *softwareBlitEncoder) CopyTexture(src Texture, srcOrigin common.Origin, dst Texture, dstOrigin common.Origin, size common.Size) {
	from, ok := src.(*softwareTexture)
	if !ok {
		e.fail(errors.Newf("copy source is %T, not a software texture", src))
		return
	}
	to, ok := dst.(*softwareTexture)
	if !ok {
		e.fail(errors.Newf("copy destination is %T, not a software texture", dst))
		return
	}
	if from.desc.Format.BytesPerPixel() != to.desc.Format.BytesPerPixel() {
		e.fail(errors.Newf("cannot copy %s texels into %s", from.desc.Format, to.desc.Format))
		return
	}
	size = common.NewSize(size.Width, size.Height, size.Depth)
	if !regionFits(from.Size(), srcOrigin, size) || !regionFits(to.Size(), dstOrigin, size) {
		e.fail(errors.Newf("copy region %v does not fit %q or %q", size, from.desc.Label, to.desc.Label))
		return
	}

	e.cb.record(func() error {
		src := from.Bytes()
		to.mu.Lock()
		defer to.mu.Unlock()
		rowBytes := size.Width * from.desc.Format.BytesPerPixel()
		for z := range size.Depth {
			for y := range size.Height {
				s := from.texelOffset(srcOrigin.X, srcOrigin.Y+y, srcOrigin.Z+z)
				d := to.texelOffset(dstOrigin.X, dstOrigin.Y+y, dstOrigin.Z+z)
				copy(to.data[d:d+rowBytes], src[s:s+rowBytes])
			}
		}
		return nil
	})
}

func regionFits(extent common.Size, origin common.Origin, size common.Size) bool {
	return origin.X >= 0 && origin.Y >= 0 && origin.Z >= 0 &&
		origin.X+size.Width <= extent.Width &&
		origin.Y+size.Height <= extent.Height &&
		origin.Z+size.Depth <= extent.Depth
}

func (e *softwareBlitEncoder) CopyBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64) {
	from, ok := src.(*softwareBuffer)
	if !ok {
		e.fail(errors.Newf("copy source is %T, not a software buffer", src))
		return
	}
	to, ok := dst.(*softwareBuffer)
	if !ok {
		e.fail(errors.Newf("copy destination is %T, not a software buffer", dst))
		return
	}
	if srcOffset+size > from.size || dstOffset+size > to.size {
		e.fail(errors.Newf("copy of %d bytes is out of range (%d/%d, %d/%d)", size, srcOffset, from.size, dstOffset, to.size))
		return
	}
	e.cb.record(func() error {
		copy(to.gpu[dstOffset:dstOffset+size], from.gpu[srcOffset:srcOffset+size])
		return nil
	})
}

// Synchronize is a no-op: software textures have a single copy.
func (e *softwareBlitEncoder) Synchronize(texture Texture) {}

func (e *softwareBlitEncoder) SynchronizeBuffer(buffer Buffer) {
	buf, ok := buffer.(*softwareBuffer)
	if !ok {
		e.fail(errors.Newf("synchronized buffer is %T, not a software buffer", buffer))
		return
	}
	e.cb.record(func() error {
		buf.synchronize()
		return nil
	})
}

func (e *softwareBlitEncoder) End() error {
	e.cb.endEncoder()
	return e.err
}
