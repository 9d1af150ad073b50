package shader

import (
	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cockroachdb/errors"
)

// ThreadGroupDispatch decides how many thread groups a compute shader launches.
type ThreadGroupDispatch interface {
	// GroupsForSize returns the number of groups to dispatch for the given thread group size.
	//
	// Parameters:
	//   - threadGroupSize: threads per group
	//   - resources: the shader's bound resources
	//
	// Returns:
	//   - common.Size: groups per dimension
	//   - error: an error if the resources needed to size the dispatch are missing
	GroupsForSize(threadGroupSize common.Size, resources Resources) (common.Size, error)
}

// GroupsForSize returns the groups needed to cover grid with threadGroupSize threads per group,
// rounding up in each dimension.
//
// Parameters:
//   - threadGroupSize: threads per group
//   - grid: the number of threads to cover
//
// Returns:
//   - common.Size: groups per dimension
func GroupsForSize(threadGroupSize, grid common.Size) common.Size {
	return common.Size{
		Width:  common.CeilDiv(grid.Width, threadGroupSize.Width),
		Height: common.CeilDiv(grid.Height, threadGroupSize.Height),
		Depth:  common.CeilDiv(grid.Depth, threadGroupSize.Depth),
	}
}

// DispatchFunc adapts a function to ThreadGroupDispatch.
type DispatchFunc func(threadGroupSize common.Size, resources Resources) (common.Size, error)

func (f DispatchFunc) GroupsForSize(threadGroupSize common.Size, resources Resources) (common.Size, error) {
	return f(threadGroupSize, resources)
}

type fixedDispatch common.Size

func (d fixedDispatch) GroupsForSize(common.Size, Resources) (common.Size, error) {
	return common.Size(d), nil
}

// FixedDispatch always launches groups, whatever the resources.
func FixedDispatch(groups common.Size) ThreadGroupDispatch {
	return fixedDispatch(groups)
}

// TextureDispatch covers the extent of the first bound texture with one thread per texel.
// It is the default dispatch of a ComputeShader.
func TextureDispatch() ThreadGroupDispatch {
	return DispatchFunc(func(threadGroupSize common.Size, resources Resources) (common.Size, error) {
		groups := resources.AllTextures()
		if len(groups) == 0 || len(groups[0]) == 0 {
			return common.Size{}, errors.New("texture dispatch needs at least one texture")
		}
		first := groups[0][0]
		tex, ok := first.Resolved()
		if !ok {
			return common.Size{}, common.MissingBackingError("texture %q is not resolved", first.Name())
		}
		return GroupsForSize(threadGroupSize, tex.Descriptor().Size()), nil
	})
}

// BufferDispatch covers the element count of the first bound buffer with one thread per element
// along the width.
func BufferDispatch() ThreadGroupDispatch {
	return DispatchFunc(func(threadGroupSize common.Size, resources Resources) (common.Size, error) {
		groups := resources.AllBuffers()
		if len(groups) == 0 || len(groups[0]) == 0 {
			return common.Size{}, errors.New("buffer dispatch needs at least one buffer")
		}
		count := groups[0][0].Manager().Count()
		return GroupsForSize(threadGroupSize, common.NewSize(count, 1, 1)), nil
	})
}
