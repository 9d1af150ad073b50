package shader

import (
	"context"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/buffer"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
	"github.com/cockroachdb/errors"
)

type copyOperation interface {
	isCopyOperation()
}

type textureRegionCopy struct {
	source       *texture.Texture
	sourceOrigin common.Origin
	sink         *texture.Texture
	sinkOrigin   common.Origin
	size         common.Size
}

type directTextureCopy struct {
	from, to *texture.Texture
}

type textureSynchronize struct {
	texture *texture.Texture
}

type bufferCopy struct {
	source       buffer.Erased
	sourceOffset uint64
	sink         buffer.Erased
	sinkOffset   uint64
	size         uint64
}

type bufferSynchronize struct {
	buffer buffer.Erased
}

func (textureRegionCopy) isCopyOperation()  {}
func (directTextureCopy) isCopyOperation()  {}
func (textureSynchronize) isCopyOperation() {}
func (bufferCopy) isCopyOperation()         {}
func (bufferSynchronize) isCopyOperation()  {}

// CopyShader encodes one blit operation: a texture copy, a buffer copy or a synchronization
// that makes device writes visible to the CPU.
type CopyShader struct {
	operation copyOperation
}

var _ Shader = &CopyShader{}

// CopyTextureRegion copies size texels from source at sourceOrigin to sink at sinkOrigin.
//
// Parameters:
//   - source: the texture read from
//   - sourceOrigin: the first texel read
//   - sink: the texture written to
//   - sinkOrigin: the first texel written
//   - size: the region size
//
// Returns:
//   - *CopyShader: the shader
func CopyTextureRegion(source *texture.Texture, sourceOrigin common.Origin, sink *texture.Texture, sinkOrigin common.Origin, size common.Size) *CopyShader {
	return &CopyShader{operation: textureRegionCopy{
		source:       source,
		sourceOrigin: sourceOrigin,
		sink:         sink,
		sinkOrigin:   sinkOrigin,
		size:         size,
	}}
}

// CopyTexture copies the full extent of from into to.
func CopyTexture(from, to *texture.Texture) *CopyShader {
	return &CopyShader{operation: directTextureCopy{from: from, to: to}}
}

// SynchronizeTexture makes device writes to a managed texture visible to the CPU.
func SynchronizeTexture(tex *texture.Texture) *CopyShader {
	return &CopyShader{operation: textureSynchronize{texture: tex}}
}

// CopyBuffer copies size bytes from source at sourceOffset to sink at sinkOffset. A size of zero
// copies everything from sourceOffset to the end of source. Both buffers must be device backed.
//
// Parameters:
//   - source: the buffer read from
//   - sourceOffset: byte offset into source
//   - sink: the buffer written to
//   - sinkOffset: byte offset into sink
//   - size: bytes to copy
//
// Returns:
//   - *CopyShader: the shader
func CopyBuffer(source buffer.Erased, sourceOffset uint64, sink buffer.Erased, sinkOffset, size uint64) *CopyShader {
	return &CopyShader{operation: bufferCopy{
		source:       source,
		sourceOffset: sourceOffset,
		sink:         sink,
		sinkOffset:   sinkOffset,
		size:         size,
	}}
}

// SynchronizeBuffer makes device writes to a managed buffer visible to the CPU.
func SynchronizeBuffer(b buffer.Erased) *CopyShader {
	return &CopyShader{operation: bufferSynchronize{buffer: b}}
}

func (s *CopyShader) Initialize(ctx context.Context, rt Runtime) error {
	switch op := s.operation.(type) {
	case textureRegionCopy:
		_, err := resolveTextures(ctx, rt, []*texture.Texture{op.source, op.sink})
		return err
	case directTextureCopy:
		_, err := resolveTextures(ctx, rt, []*texture.Texture{op.from, op.to})
		return err
	case textureSynchronize:
		_, err := op.texture.Resolve(ctx, rt)
		return err
	case bufferCopy:
		return initializeBuffers(ctx, rt, []buffer.Erased{op.source, op.sink})
	case bufferSynchronize:
		return initializeBuffers(ctx, rt, []buffer.Erased{op.buffer})
	default:
		panic(errors.AssertionFailedf("unhandled copy operation %T", op))
	}
}

func (s *CopyShader) Encode(ctx context.Context, rt Runtime, cb device.CommandBuffer) error {
	// resolve everything before opening the encoder so a failure leaves nothing half encoded
	var record func(device.BlitEncoder)
	switch op := s.operation.(type) {
	case textureRegionCopy:
		textures, err := resolveTextures(ctx, rt, []*texture.Texture{op.source, op.sink})
		if err != nil {
			return err
		}
		record = func(enc device.BlitEncoder) {
			enc.CopyTexture(textures[0], op.sourceOrigin, textures[1], op.sinkOrigin, op.size)
		}
	case directTextureCopy:
		textures, err := resolveTextures(ctx, rt, []*texture.Texture{op.from, op.to})
		if err != nil {
			return err
		}
		record = func(enc device.BlitEncoder) {
			enc.CopyTexture(textures[0], common.Origin{}, textures[1], common.Origin{}, textures[0].Descriptor().Size())
		}
	case textureSynchronize:
		tex, err := op.texture.Resolve(ctx, rt)
		if err != nil {
			return err
		}
		record = func(enc device.BlitEncoder) {
			enc.Synchronize(tex)
		}
	case bufferCopy:
		src, srcBase, err := deviceBuffer(op.source)
		if err != nil {
			return err
		}
		dst, dstBase, err := deviceBuffer(op.sink)
		if err != nil {
			return err
		}
		size := op.size
		if size == 0 {
			available := op.source.Manager().Size()
			if op.sourceOffset > available {
				return errors.Newf("source offset %d is past the end of %q", op.sourceOffset, op.source.Label())
			}
			size = available - op.sourceOffset
		}
		record = func(enc device.BlitEncoder) {
			enc.CopyBuffer(src, srcBase+op.sourceOffset, dst, dstBase+op.sinkOffset, size)
		}
	case bufferSynchronize:
		buf, _, err := deviceBuffer(op.buffer)
		if err != nil {
			return err
		}
		record = func(enc device.BlitEncoder) {
			enc.SynchronizeBuffer(buf)
		}
	default:
		panic(errors.AssertionFailedf("unhandled copy operation %T", op))
	}

	enc, err := cb.BlitEncoder()
	if err != nil {
		return err
	}
	record(enc)
	return enc.End()
}

func deviceBuffer(b buffer.Erased) (device.Buffer, uint64, error) {
	buf, offset, ok := b.Manager().DeviceBuffer()
	if !ok {
		return nil, 0, common.MissingBackingError("buffer %q has no device backing", b.Label())
	}
	return buf, offset, nil
}
