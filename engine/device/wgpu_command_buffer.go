package device

import (
	"context"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuCommandBuffer struct {
	mu      sync.Mutex
	queue   *wgpuQueue
	encoder *wgpu.CommandEncoder
	status  CommandBufferStatus
	open    bool
	// endPass ends the open compute or render pass when the command buffer is discarded.
	endPass func()

	// used tracks CPU-visible buffers referenced by the recorded work; they are flushed before
	// submission, and shared ones are read back after completion.
	used        map[*wgpuBuffer]struct{}
	synchronize map[*wgpuBuffer]struct{}
	transient   []func()
	drawables   []Drawable

	done chan struct{}
	err  error
}

var _ CommandBuffer = &wgpuCommandBuffer{}

// wgpuReadback is a staging copy of a buffer mapped once the submission completes.
type wgpuReadback struct {
	target  *wgpuBuffer
	staging *wgpu.Buffer
	size    uint64
}

func newWGPUCommandBuffer(q *wgpuQueue, encoder *wgpu.CommandEncoder) *wgpuCommandBuffer {
	return &wgpuCommandBuffer{
		queue:       q,
		encoder:     encoder,
		status:      CommandBufferStatusRecording,
		used:        make(map[*wgpuBuffer]struct{}),
		synchronize: make(map[*wgpuBuffer]struct{}),
		done:        make(chan struct{}),
	}
}

func (c *wgpuCommandBuffer) beginEncoder() error {
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

func (c *wgpuCommandBuffer) endEncoder() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.endPass = nil
}

func (c *wgpuCommandBuffer) trackPass(end func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endPass = end
}

func (c *wgpuCommandBuffer) track(b *wgpuBuffer) {
	if b.mode == StorageModePrivate {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used[b] = struct{}{}
}

func (c *wgpuCommandBuffer) releaseOnCompletion(release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transient = append(c.transient, release)
}

func (c *wgpuCommandBuffer) ComputeEncoder() (ComputeEncoder, error) {
	if err := c.beginEncoder(); err != nil {
		return nil, err
	}
	pass := c.encoder.BeginComputePass(nil)
	c.trackPass(func() { pass.End() })
	return &wgpuComputeEncoder{
		wgpuBindings: newWGPUBindings(c, computeBufferGroup, computeTextureGroup),
		pass:         pass,
	}, nil
}

func (c *wgpuCommandBuffer) RenderEncoder(desc RenderPassDescriptor) (RenderEncoder, error) {
	if len(desc.ColorAttachments) == 0 {
		return nil, errors.New("render pass needs at least one color attachment")
	}
	attachments := make([]wgpu.RenderPassColorAttachment, 0, len(desc.ColorAttachments))
	for i, a := range desc.ColorAttachments {
		tex, ok := a.Texture.(*wgpuTexture)
		if !ok {
			return nil, errors.Newf("color attachment %d is %T, not a wgpu texture", i, a.Texture)
		}
		loadOp := wgpu.LoadOpClear
		if a.LoadAction == LoadActionLoad {
			loadOp = wgpu.LoadOpLoad
		}
		storeOp := wgpu.StoreOpStore
		if a.StoreAction == StoreActionDontCare {
			storeOp = wgpu.StoreOpDiscard
		}
		attachments = append(attachments, wgpu.RenderPassColorAttachment{
			View:    tex.view,
			LoadOp:  loadOp,
			StoreOp: storeOp,
			ClearValue: wgpu.Color{
				R: a.ClearColor[0],
				G: a.ClearColor[1],
				B: a.ClearColor[2],
				A: a.ClearColor[3],
			},
		})
	}

	if err := c.beginEncoder(); err != nil {
		return nil, err
	}
	pass := c.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: attachments,
	})
	c.trackPass(func() { pass.End() })
	return &wgpuRenderEncoder{
		wgpuBindings: newWGPUBindings(c, rasterVertexBufferGroup, rasterVertexTextureGroup),
		pass:         pass,
	}, nil
}

func (c *wgpuCommandBuffer) BlitEncoder() (BlitEncoder, error) {
	if err := c.beginEncoder(); err != nil {
		return nil, err
	}
	return &wgpuBlitEncoder{cb: c}, nil
}

func (c *wgpuCommandBuffer) Present(drawable Drawable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawables = append(c.drawables, drawable)
}

func (c *wgpuCommandBuffer) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != CommandBufferStatusRecording {
		return errors.Newf("command buffer is %s, not recording", c.status)
	}
	if c.open {
		return errors.New("cannot commit while an encoder is open")
	}
	device := c.queue.device

	var readbacks []wgpuReadback
	for b := range c.used {
		_, synced := c.synchronize[b]
		if b.mode != StorageModeShared && !synced {
			continue
		}
		size := b.paddedSize()
		staging, err := device.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: b.label + " readback",
			Size:  size,
			Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			c.fail(err)
			return common.ResourceCreationError(err, "failed to create readback buffer for %q", b.label)
		}
		c.encoder.CopyBufferToBuffer(b.buffer, 0, staging, 0, size)
		readbacks = append(readbacks, wgpuReadback{target: b, staging: staging, size: size})
	}

	commandBuffer, err := c.encoder.Finish(nil)
	if err != nil {
		for _, r := range readbacks {
			r.staging.Release()
		}
		c.fail(err)
		return errors.Wrap(err, "failed to finish command encoder")
	}

	for b := range c.used {
		b.flush(c.queue.queue)
	}
	c.queue.queue.Submit(commandBuffer)
	commandBuffer.Release()
	c.encoder.Release()
	c.status = CommandBufferStatusCommitted

	for _, d := range c.drawables {
		if err := d.Present(); err != nil {
			common.Logger().Warn("failed to present drawable", "error", err)
		}
	}

	go c.complete(readbacks)
	return nil
}

// complete waits for the submission, copies staging data back into buffer shadows and releases
// the per-submission resources.
func (c *wgpuCommandBuffer) complete(readbacks []wgpuReadback) {
	device := c.queue.device
	var errs error

	for _, r := range readbacks {
		var status wgpu.BufferMapAsyncStatus
		err := r.staging.MapAsync(wgpu.MapModeRead, 0, r.size, func(s wgpu.BufferMapAsyncStatus) {
			status = s
		})
		if err == nil {
			device.device.Poll(true, nil)
			if status != wgpu.BufferMapAsyncStatusSuccess {
				err = errors.Newf("map of %q failed with status %d", r.target.label, status)
			}
		}
		if err != nil {
			errs = errors.CombineErrors(errs, err)
			r.staging.Release()
			continue
		}
		r.target.readback(r.staging.GetMappedRange(0, uint(r.size)))
		r.staging.Unmap()
		r.staging.Release()
	}
	if len(readbacks) == 0 {
		device.device.Poll(true, nil)
	}

	c.mu.Lock()
	for _, release := range c.transient {
		release()
	}
	c.transient = nil
	if errs != nil {
		c.err = errs
		c.status = CommandBufferStatusError
	} else {
		c.status = CommandBufferStatusCompleted
	}
	c.mu.Unlock()
	close(c.done)
}

// fail moves a recording command buffer to the error state. Caller holds c.mu.
func (c *wgpuCommandBuffer) fail(err error) {
	c.err = err
	c.status = CommandBufferStatusError
	for _, release := range c.transient {
		release()
	}
	c.transient = nil
	c.encoder.Release()
	close(c.done)
}

// Discard drops the recorded work without submitting it and releases the encoder together with
// the inline buffers and bind groups created while encoding.
func (c *wgpuCommandBuffer) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != CommandBufferStatusRecording {
		return
	}
	if c.endPass != nil {
		c.endPass()
		c.endPass = nil
	}
	c.open = false
	c.drawables = nil
	c.fail(errCommandBufferDiscarded)
	c.status = CommandBufferStatusDiscarded
}

func (c *wgpuCommandBuffer) WaitUntilCompleted(ctx context.Context) error {
	if c.Status() == CommandBufferStatusRecording {
		return errors.New("command buffer has not been committed")
	}
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *wgpuCommandBuffer) Status() CommandBufferStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// wgpuBufferBinding is a buffer range bound at an index.
type wgpuBufferBinding struct {
	buffer *wgpu.Buffer
	offset uint64
}

// wgpuBindings records positional bindings and turns them into bind groups at draw or dispatch time.
type wgpuBindings struct {
	cb           *wgpuCommandBuffer
	bufferGroup  int
	textureGroup int
	buffers      map[int]map[int]wgpuBufferBinding
	textures     map[int][]*wgpuTexture
	err          error
}

func newWGPUBindings(cb *wgpuCommandBuffer, bufferGroup, textureGroup int) wgpuBindings {
	return wgpuBindings{
		cb:           cb,
		bufferGroup:  bufferGroup,
		textureGroup: textureGroup,
		buffers:      make(map[int]map[int]wgpuBufferBinding),
		textures:     make(map[int][]*wgpuTexture),
	}
}

func (b *wgpuBindings) record(err error) {
	b.err = errors.CombineErrors(b.err, err)
}

func (b *wgpuBindings) bindBuffer(buffer *wgpu.Buffer, offset uint64, index int) {
	if b.buffers[b.bufferGroup] == nil {
		b.buffers[b.bufferGroup] = make(map[int]wgpuBufferBinding)
	}
	b.buffers[b.bufferGroup][index] = wgpuBufferBinding{buffer: buffer, offset: offset}
}

func (b *wgpuBindings) SetBuffer(buffer Buffer, offset uint64, index int) {
	wb, ok := buffer.(*wgpuBuffer)
	if !ok || wb.buffer == nil {
		b.record(errors.Newf("buffer at index %d is not a live wgpu buffer", index))
		return
	}
	if offset%BufferOffsetAlignment != 0 {
		b.record(errors.Newf("buffer offset %d at index %d is not %d-byte aligned", offset, index, BufferOffsetAlignment))
		return
	}
	b.cb.track(wb)
	b.bindBuffer(wb.buffer, offset, index)
}

func (b *wgpuBindings) SetBytes(data []byte, index int) {
	// uniform bindings need 16-byte sized structs
	contents := make([]byte, max(common.AlignUp(uint64(len(data)), 16), 16))
	copy(contents, data)
	buf, err := b.cb.queue.device.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "inline bytes",
		Contents: contents,
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		b.record(common.ResourceCreationError(err, "failed to create inline buffer at index %d", index))
		return
	}
	b.cb.releaseOnCompletion(buf.Release)
	b.bindBuffer(buf, 0, index)
}

func (b *wgpuBindings) SetTextures(textures []Texture) {
	bound := make([]*wgpuTexture, 0, len(textures))
	for i, t := range textures {
		wt, ok := t.(*wgpuTexture)
		if !ok {
			b.record(errors.Newf("texture at index %d is %T, not a wgpu texture", i, t))
			return
		}
		bound = append(bound, wt)
	}
	b.textures[b.textureGroup] = bound
}

// bindGroups builds one bind group per layout group from the recorded bindings. Buffer declarations
// take the buffer bound at their binding index, texture declarations take bound textures in binding
// order, and samplers take the device's default sampler.
//
// Parameters:
//   - layout: the pipeline's declarations per group
//   - groupLayouts: the pipeline's bind group layouts indexed by group
//
// Returns:
//   - []*wgpu.BindGroup: the bind groups indexed by group
//   - error: an error if a declaration has nothing bound
func (b *wgpuBindings) bindGroups(layout map[int][]parsedGlobal, groupLayouts []*wgpu.BindGroupLayout) ([]*wgpu.BindGroup, error) {
	device := b.cb.queue.device
	groups := make([]*wgpu.BindGroup, len(groupLayouts))

	for g, groupLayout := range groupLayouts {
		globals := layout[g]
		entries := make([]wgpu.BindGroupEntry, 0, len(globals))
		textureIndex := 0

		for _, global := range globals {
			entry := wgpu.BindGroupEntry{Binding: uint32(global.binding)}
			switch global.kind() {
			case bindingKindSampler:
				sampler, err := device.defaultSampler()
				if err != nil {
					return nil, common.ResourceCreationError(err, "failed to create default sampler")
				}
				entry.Sampler = sampler
			case bindingKindTexture, bindingKindStorageTexture:
				bound := b.textures[g]
				if textureIndex >= len(bound) {
					return nil, common.MissingBackingError("no texture bound for %q (group %d, texture %d)", global.varName, g, textureIndex)
				}
				entry.TextureView = bound[textureIndex].view
				textureIndex++
			default:
				bound, ok := b.buffers[g][global.binding]
				if !ok {
					return nil, common.MissingBackingError("no buffer bound for %q (group %d, index %d)", global.varName, g, global.binding)
				}
				entry.Buffer = bound.buffer
				entry.Offset = bound.offset
				entry.Size = wgpu.WholeSize
			}
			entries = append(entries, entry)
		}

		bindGroup, err := device.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Layout:  groupLayout,
			Entries: entries,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create bind group %d", g)
		}
		b.cb.releaseOnCompletion(bindGroup.Release)
		groups[g] = bindGroup
	}
	return groups, nil
}

type wgpuComputeEncoder struct {
	wgpuBindings
	pass     *wgpu.ComputePassEncoder
	pipeline *wgpuComputePipeline
}

var _ ComputeEncoder = &wgpuComputeEncoder{}

func (e *wgpuComputeEncoder) SetPipeline(pipeline ComputePipeline) {
	p, ok := pipeline.(*wgpuComputePipeline)
	if !ok {
		e.record(errors.Newf("pipeline %T is not a wgpu compute pipeline", pipeline))
		return
	}
	e.pipeline = p
	e.pass.SetPipeline(p.pipeline)
}

func (e *wgpuComputeEncoder) Dispatch(groups, threadsPerGroup common.Size) {
	if e.pipeline == nil {
		e.record(errors.New("dispatch without a compute pipeline"))
		return
	}
	if threadsPerGroup != e.pipeline.threadGroup {
		common.Logger().Debug("thread group size differs from the declared workgroup size",
			"function", e.pipeline.label, "requested", threadsPerGroup, "declared", e.pipeline.threadGroup)
	}
	bindGroups, err := e.bindGroups(e.pipeline.layout, e.pipeline.bindLayouts)
	if err != nil {
		e.record(err)
		return
	}
	for g, bg := range bindGroups {
		e.pass.SetBindGroup(uint32(g), bg, nil)
	}
	e.pass.DispatchWorkgroups(uint32(groups.Width), uint32(groups.Height), uint32(groups.Depth))
}

func (e *wgpuComputeEncoder) End() error {
	e.pass.End()
	e.cb.endEncoder()
	return e.err
}

type wgpuRenderEncoder struct {
	wgpuBindings
	pass     *wgpu.RenderPassEncoder
	pipeline *wgpuRenderPipeline
}

var _ RenderEncoder = &wgpuRenderEncoder{}

func (e *wgpuRenderEncoder) SetPipeline(pipeline RenderPipeline) {
	p, ok := pipeline.(*wgpuRenderPipeline)
	if !ok {
		e.record(errors.Newf("pipeline %T is not a wgpu render pipeline", pipeline))
		return
	}
	e.pipeline = p
	e.pass.SetPipeline(p.pipeline)
}

func (e *wgpuRenderEncoder) SetStage(stage Stage) {
	if stage == StageFragment {
		e.bufferGroup, e.textureGroup = rasterFragmentBufferGroup, rasterFragmentTextureGroup
		return
	}
	e.bufferGroup, e.textureGroup = rasterVertexBufferGroup, rasterVertexTextureGroup
}

func (e *wgpuRenderEncoder) Draw(primitive PrimitiveType, start, count int) {
	if e.pipeline == nil {
		e.record(errors.New("draw without a render pipeline"))
		return
	}
	bindGroups, err := e.bindGroups(e.pipeline.layout, e.pipeline.bindLayouts)
	if err != nil {
		e.record(err)
		return
	}
	for g, bg := range bindGroups {
		e.pass.SetBindGroup(uint32(g), bg, nil)
	}
	e.pass.Draw(uint32(count), 1, uint32(start), 0)
}

func (e *wgpuRenderEncoder) End() error {
	e.pass.End()
	e.cb.endEncoder()
	return e.err
}

type wgpuBlitEncoder struct {
	cb  *wgpuCommandBuffer
	err error
}

var _ BlitEncoder = &wgpuBlitEncoder{}

func (e *wgpuBlitEncoder) CopyTexture(src Texture, srcOrigin common.Origin, dst Texture, dstOrigin common.Origin, size common.Size) {
	s, sok := src.(*wgpuTexture)
	d, dok := dst.(*wgpuTexture)
	if !sok || !dok {
		e.err = errors.CombineErrors(e.err, errors.New("texture copy between non-wgpu textures"))
		return
	}
	e.cb.encoder.CopyTextureToTexture(
		&wgpu.ImageCopyTexture{
			Texture: s.texture,
			Origin:  wgpu.Origin3D{X: uint32(srcOrigin.X), Y: uint32(srcOrigin.Y), Z: uint32(srcOrigin.Z)},
			Aspect:  wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyTexture{
			Texture: d.texture,
			Origin:  wgpu.Origin3D{X: uint32(dstOrigin.X), Y: uint32(dstOrigin.Y), Z: uint32(dstOrigin.Z)},
			Aspect:  wgpu.TextureAspectAll,
		},
		&wgpu.Extent3D{
			Width:              uint32(size.Width),
			Height:             uint32(size.Height),
			DepthOrArrayLayers: uint32(size.Depth),
		},
	)
}

func (e *wgpuBlitEncoder) CopyBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64) {
	s, sok := src.(*wgpuBuffer)
	d, dok := dst.(*wgpuBuffer)
	if !sok || !dok {
		e.err = errors.CombineErrors(e.err, errors.New("buffer copy between non-wgpu buffers"))
		return
	}
	if srcOffset%4 != 0 || dstOffset%4 != 0 {
		e.err = errors.CombineErrors(e.err, errors.Newf("buffer copy offsets %d and %d must be 4-byte aligned", srcOffset, dstOffset))
		return
	}
	size = min(common.AlignUp(size, 4), s.paddedSize()-srcOffset, d.paddedSize()-dstOffset)
	e.cb.track(s)
	e.cb.track(d)
	e.cb.encoder.CopyBufferToBuffer(s.buffer, srcOffset, d.buffer, dstOffset, size)
}

// Synchronize is a no-op: wgpu textures have no CPU copy.
func (e *wgpuBlitEncoder) Synchronize(texture Texture) {}

func (e *wgpuBlitEncoder) SynchronizeBuffer(buffer Buffer) {
	b, ok := buffer.(*wgpuBuffer)
	if !ok {
		e.err = errors.CombineErrors(e.err, errors.Newf("buffer %T is not a wgpu buffer", buffer))
		return
	}
	if b.mode != StorageModeManaged {
		return
	}
	e.cb.track(b)
	e.cb.mu.Lock()
	e.cb.synchronize[b] = struct{}{}
	e.cb.mu.Unlock()
}

func (e *wgpuBlitEncoder) End() error {
	e.cb.endEncoder()
	return e.err
}
