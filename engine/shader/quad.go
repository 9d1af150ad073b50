package shader

import "github.com/Carmen-Shannon/oxy-gpu/engine/device"

const (
	// QuadVertexFunction is the full screen quad vertex entry point.
	QuadVertexFunction = "copyVert"
	// QuadFragmentFunction is the entry point that colors each pixel with its uv coordinate.
	QuadFragmentFunction = "uvFrag"
)

// QuadSource is WGSL for a full screen quad drawn as six vertices. The uv coordinate has its origin
// at the top left of the target.
const QuadSource = `
struct Vert {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

const verts = array<vec2<f32>, 6>(
    vec2<f32>(-1.0, -1.0),
    vec2<f32>(1.0, -1.0),
    vec2<f32>(1.0, 1.0),

    vec2<f32>(-1.0, -1.0),
    vec2<f32>(1.0, 1.0),
    vec2<f32>(-1.0, 1.0),
);

@vertex
fn copyVert(@builtin(vertex_index) vid: u32) -> Vert {
    var vert: Vert;
    let textureVert = verts[vid];

    vert.position = vec4<f32>(textureVert, 0.0, 1.0);
    vert.uv = textureVert * 0.5 + 0.5;
    vert.uv = vec2<f32>(vert.uv.x, 1.0 - vert.uv.y);
    return vert;
}

@fragment
fn uvFrag(in: Vert) -> @location(0) vec4<f32> {
    return vec4<f32>(in.uv, 0.0, 1.0);
}
`

var quadVerts = [6][2]float32{
	{-1, -1}, {1, -1}, {1, 1},
	{-1, -1}, {1, 1}, {-1, 1},
}

// QuadKernels returns software kernels matching QuadSource for the software device.
//
// Returns:
//   - device.Kernels: the copyVert and uvFrag kernels
func QuadKernels() device.Kernels {
	return device.Kernels{
		Vertex: map[string]device.VertexKernel{
			QuadVertexFunction: func(inv *device.VertexInvocation) device.VertexOutput {
				v := quadVerts[inv.VertexID%len(quadVerts)]
				return device.VertexOutput{
					Position: [4]float32{v[0], v[1], 0, 1},
					UV:       [2]float32{v[0]*0.5 + 0.5, 1 - (v[1]*0.5 + 0.5)},
				}
			},
		},
		Fragment: map[string]device.FragmentKernel{
			QuadFragmentFunction: func(inv *device.FragmentInvocation) [4]float32 {
				return [4]float32{inv.UV[0], inv.UV[1], 0, 1}
			},
		},
	}
}

// NewQuadShader draws the uv gradient of QuadSource into descriptor's target.
//
// Parameters:
//   - format: the color attachment format
//   - descriptor: where the quad is drawn
//   - options: additional raster shader options
//
// Returns:
//   - *RasterShader: the shader
func NewQuadShader(format RenderTargetFormat, descriptor RenderPassDescriptor, options ...RasterShaderBuilderOption) *RasterShader {
	return NewRasterShader(QuadVertexFunction, QuadFragmentFunction, format, descriptor, options...)
}
