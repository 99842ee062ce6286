package systems

import (
	"golang.org/x/exp/slices"
)

// RenderObject is one thing to draw. Instance is opaque to the batcher; it is typically an
// index into per-object data the shader reads by instance id.
type RenderObject struct {
	Mesh     *Mesh
	Instance uint32
}

type DrawCall struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

// BuildDrawCalls groups objects by mesh and emits one draw per primitive per group. With
// instanced set a group is every object sharing a mesh, otherwise every object is its own group.
//
// The returned order is the order instance ids refer to: the object drawn as instance i is
// order[i]. FirstInstance is the running total of instances in earlier groups.
func BuildDrawCalls(objects []RenderObject, instanced bool) ([]DrawCall, []RenderObject) {
	order := make([]RenderObject, 0, len(objects))
	for _, o := range objects {
		if o.Mesh != nil {
			order = append(order, o)
		}
	}
	slices.SortStableFunc(order, func(a, b RenderObject) int {
		switch {
		case a.Mesh.ID < b.Mesh.ID:
			return -1
		case a.Mesh.ID > b.Mesh.ID:
			return 1
		}
		return 0
	})

	var draws []DrawCall
	var firstInstance uint32
	for start := 0; start < len(order); {
		end := start + 1
		if instanced {
			for end < len(order) && order[end].Mesh.ID == order[start].Mesh.ID {
				end++
			}
		}
		count := uint32(end - start)
		for _, p := range order[start].Mesh.Primitives {
			draws = append(draws, DrawCall{
				IndexCount:    p.IndexCount,
				InstanceCount: count,
				FirstIndex:    p.FirstIndex,
				VertexOffset:  p.VertexOffset,
				FirstInstance: firstInstance,
			})
		}
		firstInstance += count
		start = end
	}
	return draws, order
}
