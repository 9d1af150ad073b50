package device

import "github.com/cogentcore/webgpu/wgpu"

// shaderStage is the pipeline stage a WGSL entry point is declared for.
type shaderStage int

const (
	shaderStageVertex shaderStage = iota
	shaderStageFragment
	shaderStageCompute
)

// sampledTextureInfo holds the view dimension and multisampled flag for a sampled texture type
type sampledTextureInfo struct {
	viewDimension wgpu.TextureViewDimension
	multisampled  bool
}

// wgslTypeLayout holds the byte size and alignment for a WGSL type per the WGSL specification.
// Used to compute MinBindingSize for buffer bindings.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}

// parsedEntryPoint is an @vertex, @fragment or @compute function found in a WGSL source.
type parsedEntryPoint struct {
	name          string
	stage         shaderStage
	workgroupSize [3]uint32
}

// parsedGlobal is a module-scope @group/@binding resource declaration.
type parsedGlobal struct {
	group    int
	binding  int
	varName  string
	typeName string
	entry    wgpu.BindGroupLayoutEntry
}

// bindingKind classifies a bind group layout entry by what must be bound to it.
type bindingKind int

const (
	bindingKindBuffer bindingKind = iota
	bindingKindTexture
	bindingKindStorageTexture
	bindingKindSampler
)

// kind classifies the global's layout entry.
func (g parsedGlobal) kind() bindingKind {
	switch {
	case g.entry.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
		return bindingKindSampler
	case g.entry.StorageTexture.Access != wgpu.StorageTextureAccessUndefined:
		return bindingKindStorageTexture
	case g.entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined:
		return bindingKindTexture
	default:
		return bindingKindBuffer
	}
}
