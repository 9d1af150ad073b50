package device

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// wgslSampledTextureMap maps WGSL sampled texture base names to their view dimension and multisampled flag
var wgslSampledTextureMap = map[string]sampledTextureInfo{
	"texture_1d":                    {wgpu.TextureViewDimension1D, false},
	"texture_2d":                    {wgpu.TextureViewDimension2D, false},
	"texture_2d_array":              {wgpu.TextureViewDimension2DArray, false},
	"texture_3d":                    {wgpu.TextureViewDimension3D, false},
	"texture_cube":                  {wgpu.TextureViewDimensionCube, false},
	"texture_multisampled_2d":       {wgpu.TextureViewDimension2D, true},
	"texture_depth_2d":              {wgpu.TextureViewDimension2D, false},
	"texture_depth_2d_array":        {wgpu.TextureViewDimension2DArray, false},
	"texture_depth_cube":            {wgpu.TextureViewDimensionCube, false},
	"texture_depth_multisampled_2d": {wgpu.TextureViewDimension2D, true},
}

// wgslStorageTextureDimMap maps WGSL storage texture base names to their view dimension
var wgslStorageTextureDimMap = map[string]wgpu.TextureViewDimension{
	"texture_storage_1d":       wgpu.TextureViewDimension1D,
	"texture_storage_2d":       wgpu.TextureViewDimension2D,
	"texture_storage_2d_array": wgpu.TextureViewDimension2DArray,
	"texture_storage_3d":       wgpu.TextureViewDimension3D,
}

// wgslSampleTypeMap maps WGSL scalar type parameters to their wgpu texture sample type
var wgslSampleTypeMap = map[string]wgpu.TextureSampleType{
	"f32": wgpu.TextureSampleTypeFloat,
	"i32": wgpu.TextureSampleTypeSint,
	"u32": wgpu.TextureSampleTypeUint,
}

// wgslStorageAccessMap maps WGSL access mode keywords to their wgpu storage texture access
var wgslStorageAccessMap = map[string]wgpu.StorageTextureAccess{
	"write":      wgpu.StorageTextureAccessWriteOnly,
	"read":       wgpu.StorageTextureAccessReadOnly,
	"read_write": wgpu.StorageTextureAccessReadWrite,
}

// wgslTexelFormatMap maps WGSL texel format strings to their corresponding wgpu texture formats.
var wgslTexelFormatMap = map[string]wgpu.TextureFormat{
	"rgba8unorm":  wgpu.TextureFormatRGBA8Unorm,
	"rgba8snorm":  wgpu.TextureFormatRGBA8Snorm,
	"rgba8uint":   wgpu.TextureFormatRGBA8Uint,
	"rgba8sint":   wgpu.TextureFormatRGBA8Sint,
	"rgba16float": wgpu.TextureFormatRGBA16Float,
	"r32uint":     wgpu.TextureFormatR32Uint,
	"r32sint":     wgpu.TextureFormatR32Sint,
	"r32float":    wgpu.TextureFormatR32Float,
	"rgba32float": wgpu.TextureFormatRGBA32Float,
	"bgra8unorm":  wgpu.TextureFormatBGRA8Unorm,
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field line: optional attributes, name, colon, type.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	// entryPointRegex matches @vertex, @fragment and @compute functions and captures the stage and name
	entryPointRegex = regexp.MustCompile(`@(vertex|fragment|compute)\b[^{;]*?\bfn\s+(\w+)`)

	// functionRegex matches any function header and captures its name
	functionRegex = regexp.MustCompile(`\bfn\s+(\w+)\s*\(`)

	// identifierRegex matches WGSL identifiers
	identifierRegex = regexp.MustCompile(`\b[A-Za-z_]\w*\b`)

	// workgroupSizeRegex captures 1-3 integer dimensions from @workgroup_size(x[, y[, z]])
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<storage, read_write> values: array<f32>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// wgslModule is the parsed reflection of a WGSL source: its entry points, the module-scope
// resource declarations and the function bodies used to decide which resources an entry point touches.
type wgslModule struct {
	entryPoints map[string]parsedEntryPoint
	order       []string
	globals     []parsedGlobal
	functions   map[string]string
}

// parseWGSLModule reflects a WGSL source.
//
// Parameters:
//   - source: the raw WGSL source code string
//
// Returns:
//   - *wgslModule: the reflected module
func parseWGSLModule(source string) *wgslModule {
	cleaned := stripComments(source)
	m := &wgslModule{
		entryPoints: make(map[string]parsedEntryPoint),
		functions:   parseFunctionBodies(cleaned),
	}

	for _, match := range entryPointRegex.FindAllStringSubmatch(cleaned, -1) {
		ep := parsedEntryPoint{name: match[2], workgroupSize: [3]uint32{1, 1, 1}}
		switch match[1] {
		case "vertex":
			ep.stage = shaderStageVertex
		case "fragment":
			ep.stage = shaderStageFragment
		default:
			ep.stage = shaderStageCompute
			ep.workgroupSize = parseWorkgroupSize(match[0])
		}
		if _, dup := m.entryPoints[ep.name]; !dup {
			m.order = append(m.order, ep.name)
		}
		m.entryPoints[ep.name] = ep
	}

	structSizes := computeStructSizes(parseStructBlocks(cleaned))
	for _, match := range bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		group, _ := strconv.Atoi(match[1])
		binding, _ := strconv.Atoi(match[2])
		typeName := strings.TrimSpace(match[5])
		entry := classifyResource(uint32(binding), 0, strings.TrimSpace(match[3]), typeName)
		if entry.Buffer.Type != wgpu.BufferBindingTypeUndefined {
			if layout, ok := resolveTypeLayout(typeName, structSizes); ok && layout.size > 0 {
				entry.Buffer.MinBindingSize = layout.size
			}
		}
		m.globals = append(m.globals, parsedGlobal{
			group:    group,
			binding:  binding,
			varName:  strings.TrimSpace(match[4]),
			typeName: typeName,
			entry:    entry,
		})
	}

	return m
}

// entryPointNames lists the entry points in declaration order.
func (m *wgslModule) entryPointNames() []string {
	return append([]string(nil), m.order...)
}

// usedGlobals returns the resource declarations reachable from the named entry points, following
// calls to helper functions. Resources declared in the module but never referenced are excluded so
// that a library holding several kernels produces a minimal layout per pipeline.
//
// Parameters:
//   - entries: the entry point names
//
// Returns:
//   - []parsedGlobal: the referenced globals
func (m *wgslModule) usedGlobals(entries ...string) []parsedGlobal {
	visited := make(map[string]bool)
	identifiers := make(map[string]bool)
	queue := append([]string(nil), entries...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true
		for _, ident := range identifierRegex.FindAllString(m.functions[name], -1) {
			identifiers[ident] = true
			if _, isFn := m.functions[ident]; isFn && !visited[ident] {
				queue = append(queue, ident)
			}
		}
	}

	used := make([]parsedGlobal, 0, len(m.globals))
	for _, g := range m.globals {
		if identifiers[g.varName] {
			used = append(used, g)
		}
	}
	return used
}

// bindGroupLayouts groups globals into bind group layout descriptors keyed by group index, with
// entries sorted by binding. visibility maps a group index to the stage flags applied to its entries.
//
// Parameters:
//   - globals: the resource declarations to lay out
//   - visibility: returns the stage visibility for a group
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: layout descriptors keyed by group index
func bindGroupLayouts(globals []parsedGlobal, visibility func(group int) wgpu.ShaderStage) map[int]wgpu.BindGroupLayoutDescriptor {
	groups := make(map[int][]wgpu.BindGroupLayoutEntry)
	for _, g := range globals {
		entry := g.entry
		entry.Visibility = visibility(g.group)
		groups[g.group] = append(groups[g.group], entry)
	}

	result := make(map[int]wgpu.BindGroupLayoutDescriptor, len(groups))
	for g, entries := range groups {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Binding < entries[j].Binding
		})
		result[g] = wgpu.BindGroupLayoutDescriptor{Entries: entries}
	}
	return result
}

// parseWorkgroupSize extracts the @workgroup_size(x, y, z) dimensions from an attribute block.
// Omitted dimensions default to 1 per the WGSL specification.
//
// Parameters:
//   - source: WGSL text containing the attribute
//
// Returns:
//   - [3]uint32: the workgroup size as [x, y, z]
func parseWorkgroupSize(source string) [3]uint32 {
	result := [3]uint32{1, 1, 1}
	match := workgroupSizeRegex.FindStringSubmatch(source)
	if match == nil {
		return result
	}
	for i := range 3 {
		if match[i+1] == "" {
			continue
		}
		if v, err := strconv.ParseUint(match[i+1], 10, 32); err == nil {
			result[i] = uint32(v)
		}
	}
	return result
}

// parseFunctionBodies maps every function name to its full text, header included.
func parseFunctionBodies(source string) map[string]string {
	bodies := make(map[string]string)
	for _, loc := range functionRegex.FindAllStringSubmatchIndex(source, -1) {
		name := source[loc[2]:loc[3]]
		bodies[name] = source[loc[0]:braceBlockEnd(source, loc[1])]
	}
	return bodies
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source
// and parses their fields
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))
	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}
	return structs
}

// parseStructFields parses the body of a struct block into individual fields.
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		fields = append(fields, parsedField{
			name:      fm[1],
			typeName:  strings.TrimSpace(fm[2]),
			isBuiltin: builtinRegex.MatchString(line),
		})
	}

	return fields
}
