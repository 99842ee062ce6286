package systems

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/anima-renderer/engine/core"
	amath "github.com/spaghettifunk/anima-renderer/engine/math"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/arena"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

const indexSize = 4

// Primitive is a range inside the shared geometry arenas. Offsets are in elements, not bytes,
// so they can go straight into DrawIndexed.
type Primitive struct {
	FirstIndex   uint32
	IndexCount   uint32
	VertexOffset int32
	VertexCount  uint32
	Material     uint32
}

type Mesh struct {
	ID         uint32
	Name       string
	Primitives []Primitive
}

type GeometryConfig struct {
	VertexCapacity uint64
	IndexCapacity  uint64
	MaxMeshes      int
}

func DefaultGeometryConfig() GeometryConfig {
	return GeometryConfig{
		VertexCapacity: 4 << 20,
		IndexCapacity:  1 << 20,
		MaxMeshes:      1024,
	}
}

// GeometryStore packs every mesh into one vertex arena and one index arena. Ranges are never
// reclaimed: removing a mesh frees its id, not its bytes.
type GeometryStore struct {
	vertices *arena.Arena
	indices  *arena.Arena
	meshes   *core.IDPool
	byName   map[string]uint32
}

func NewGeometryStore(resources Resources, config GeometryConfig) (*GeometryStore, error) {
	if config.MaxMeshes <= 0 {
		config.MaxMeshes = DefaultGeometryConfig().MaxMeshes
	}

	vertices, err := resources.NewArena(arena.Config{
		Name:            "vertices",
		Usage:           driver.BufferUsageVertex,
		InitialCapacity: config.VertexCapacity,
		Alignment:       1,
	})
	if err != nil {
		return nil, err
	}
	indices, err := resources.NewArena(arena.Config{
		Name:            "indices",
		Usage:           driver.BufferUsageIndex,
		InitialCapacity: config.IndexCapacity,
		Alignment:       indexSize,
	})
	if err != nil {
		return nil, err
	}

	return &GeometryStore{
		vertices: vertices,
		indices:  indices,
		meshes:   core.NewIDPool(config.MaxMeshes),
		byName:   make(map[string]uint32),
	}, nil
}

// Upload copies one primitive's vertices and indices into the arenas. vertices holds packed
// vertices of stride bytes each.
func (g *GeometryStore) Upload(vertices []byte, stride uint32, indices []uint32, material uint32) (Primitive, error) {
	if stride == 0 || len(vertices) == 0 || len(vertices)%int(stride) != 0 {
		err := fmt.Errorf("vertex data of %d bytes is not a whole number of %d byte vertices", len(vertices), stride)
		core.LogError(err.Error())
		return Primitive{}, err
	}
	if len(indices) == 0 {
		err := fmt.Errorf("primitive has no indices")
		core.LogError(err.Error())
		return Primitive{}, err
	}

	// The vertex arena is byte aligned so it can hold mixed strides. Pad up to a multiple of
	// this stride so the vertex offset is a whole element.
	if pad := amath.AlignUp(g.vertices.Offset(), uint64(stride)) - g.vertices.Offset(); pad > 0 {
		if _, err := g.vertices.Reserve(pad); err != nil {
			return Primitive{}, err
		}
	}
	vertexOffset, err := g.vertices.Upload(vertices)
	if err != nil {
		return Primitive{}, err
	}

	packed := make([]byte, 0, len(indices)*indexSize)
	for _, index := range indices {
		packed = binary.LittleEndian.AppendUint32(packed, index)
	}
	indexOffset, err := g.indices.Upload(packed)
	if err != nil {
		return Primitive{}, err
	}

	return Primitive{
		FirstIndex:   uint32(indexOffset / indexSize),
		IndexCount:   uint32(len(indices)),
		VertexOffset: int32(vertexOffset / uint64(stride)),
		VertexCount:  uint32(len(vertices) / int(stride)),
		Material:     material,
	}, nil
}

// AddMesh registers primitives under name. Names are unique.
func (g *GeometryStore) AddMesh(name string, primitives ...Primitive) (*Mesh, error) {
	if _, ok := g.byName[name]; ok {
		err := fmt.Errorf("mesh %q already exists", name)
		core.LogError(err.Error())
		return nil, err
	}
	mesh := &Mesh{
		Name:       name,
		Primitives: append([]Primitive(nil), primitives...),
	}
	mesh.ID = g.meshes.Acquire(mesh)
	g.byName[name] = mesh.ID
	return mesh, nil
}

func (g *GeometryStore) Mesh(id uint32) (*Mesh, bool) {
	owner, ok := g.meshes.Owner(id)
	if !ok {
		return nil, false
	}
	return owner.(*Mesh), true
}

func (g *GeometryStore) MeshByName(name string) (*Mesh, bool) {
	id, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.Mesh(id)
}

// RemoveMesh releases the id for reuse. The geometry bytes stay in the arenas.
func (g *GeometryStore) RemoveMesh(id uint32) error {
	mesh, ok := g.Mesh(id)
	if !ok {
		err := fmt.Errorf("mesh %d does not exist", id)
		core.LogError(err.Error())
		return err
	}
	delete(g.byName, mesh.Name)
	return g.meshes.Release(id)
}

// Bind binds the current arena buffers. Call it after uploads, since growth replaces them.
func (g *GeometryStore) Bind(cmd driver.CommandBuffer) {
	cmd.BindVertexBuffer(g.vertices.Buffer(), 0)
	cmd.BindIndexBuffer(g.indices.Buffer(), 0, driver.IndexTypeUint32)
}

func (g *GeometryStore) VertexArena() *arena.Arena {
	return g.vertices
}

func (g *GeometryStore) IndexArena() *arena.Arena {
	return g.indices
}
