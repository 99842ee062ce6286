package systems

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"testing"

	"github.com/spaghettifunk/anima-renderer/engine/renderer/arena"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/descriptor"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver/drivertest"
)

type testResources struct {
	dev       *drivertest.Device
	cache     *descriptor.LayoutCache
	allocator *descriptor.Allocator
}

func newResources() *testResources {
	dev := drivertest.NewDevice()
	return &testResources{
		dev:       dev,
		cache:     descriptor.NewLayoutCache(dev),
		allocator: descriptor.NewAllocator(dev, descriptor.AllocatorConfig{}),
	}
}

func (r *testResources) Device() driver.Device {
	return r.dev
}

func (r *testResources) GetOrCreateLayout(bindings []driver.DescriptorBinding) (driver.DescriptorSetLayout, error) {
	return r.cache.GetOrCreate(bindings)
}

func (r *testResources) AllocateDescriptorSet(layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	return r.allocator.Allocate(layout)
}

func (r *testResources) NewArena(config arena.Config) (*arena.Arena, error) {
	return arena.New(r.dev, config)
}

func newGeometry(t *testing.T, r *testResources) *GeometryStore {
	t.Helper()
	g, err := NewGeometryStore(r, GeometryConfig{VertexCapacity: 256, IndexCapacity: 256, MaxMeshes: 8})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestGeometryUploadMixedStrides(t *testing.T) {
	g := newGeometry(t, newResources())

	small := bytes.Repeat([]byte{0xAA}, 3*12)
	p1, err := g.Upload(small, 12, []uint32{0, 1, 2}, 0)
	if err != nil {
		t.Fatal(err)
	}
	large := bytes.Repeat([]byte{0xBB}, 2*32)
	p2, err := g.Upload(large, 32, []uint32{0, 1, 1}, 7)
	if err != nil {
		t.Fatal(err)
	}

	if p1.VertexOffset != 0 || p1.FirstIndex != 0 || p1.IndexCount != 3 || p1.VertexCount != 3 {
		t.Fatalf("first primitive = %+v", p1)
	}
	// 36 bytes in, padded to 64 so the offset is a whole 32 byte vertex.
	if p2.VertexOffset != 2 || p2.FirstIndex != 3 || p2.VertexCount != 2 || p2.Material != 7 {
		t.Fatalf("second primitive = %+v", p2)
	}

	vb := g.VertexArena().Buffer().(*drivertest.Buffer)
	if !bytes.Equal(vb.Data[64:128], large) {
		t.Fatal("second primitive vertices not at byte 64")
	}
	ib := g.IndexArena().Buffer().(*drivertest.Buffer)
	for i, want := range []uint32{0, 1, 2, 0, 1, 1} {
		if got := binary.LittleEndian.Uint32(ib.Data[i*4:]); got != want {
			t.Fatalf("index %d = %d, want %d", i, got, want)
		}
	}
}

func TestGeometryUploadRejectsBadInput(t *testing.T) {
	g := newGeometry(t, newResources())
	tests := []struct {
		name     string
		vertices []byte
		stride   uint32
		indices  []uint32
	}{
		{"zero stride", make([]byte, 12), 0, []uint32{0}},
		{"partial vertex", make([]byte, 13), 12, []uint32{0}},
		{"no vertices", nil, 12, []uint32{0}},
		{"no indices", make([]byte, 12), 12, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.Upload(tt.vertices, tt.stride, tt.indices, 0); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
	if g.VertexArena().Offset() != 0 || g.IndexArena().Offset() != 0 {
		t.Fatal("rejected uploads consumed arena space")
	}
}

func TestGeometryMeshes(t *testing.T) {
	g := newGeometry(t, newResources())

	cube, err := g.AddMesh("cube", Primitive{IndexCount: 36})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddMesh("cube"); err == nil {
		t.Fatal("duplicate mesh name accepted")
	}
	if m, ok := g.MeshByName("cube"); !ok || m != cube {
		t.Fatal("lookup by name failed")
	}

	if err := g.RemoveMesh(cube.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := g.Mesh(cube.ID); ok {
		t.Fatal("removed mesh still resolvable")
	}
	if err := g.RemoveMesh(cube.ID); err == nil {
		t.Fatal("double remove succeeded")
	}

	sphere, err := g.AddMesh("sphere")
	if err != nil {
		t.Fatal(err)
	}
	if sphere.ID != cube.ID {
		t.Fatalf("sphere id %d, want reused id %d", sphere.ID, cube.ID)
	}
}

func batchMeshes() (a, b *Mesh) {
	a = &Mesh{ID: 2, Name: "a", Primitives: []Primitive{
		{FirstIndex: 0, IndexCount: 6, VertexOffset: 0},
		{FirstIndex: 6, IndexCount: 3, VertexOffset: 4},
	}}
	b = &Mesh{ID: 1, Name: "b", Primitives: []Primitive{
		{FirstIndex: 9, IndexCount: 12, VertexOffset: 7},
	}}
	return a, b
}

func TestBuildDrawCallsInstanced(t *testing.T) {
	a, b := batchMeshes()
	objects := []RenderObject{{a, 0}, {b, 1}, {a, 2}, {nil, 9}, {b, 3}, {a, 4}}

	draws, order := BuildDrawCalls(objects, true)

	wantOrder := []uint32{1, 3, 0, 2, 4}
	if len(order) != len(wantOrder) {
		t.Fatalf("order has %d objects, want %d", len(order), len(wantOrder))
	}
	for i, o := range order {
		if o.Instance != wantOrder[i] {
			t.Fatalf("order[%d] = %d, want %d", i, o.Instance, wantOrder[i])
		}
	}

	want := []DrawCall{
		{IndexCount: 12, InstanceCount: 2, FirstIndex: 9, VertexOffset: 7, FirstInstance: 0},
		{IndexCount: 6, InstanceCount: 3, FirstIndex: 0, VertexOffset: 0, FirstInstance: 2},
		{IndexCount: 3, InstanceCount: 3, FirstIndex: 6, VertexOffset: 4, FirstInstance: 2},
	}
	if len(draws) != len(want) {
		t.Fatalf("got %d draws, want %d", len(draws), len(want))
	}
	for i := range want {
		if draws[i] != want[i] {
			t.Fatalf("draw %d = %+v, want %+v", i, draws[i], want[i])
		}
	}
}

func TestBuildDrawCallsPerObject(t *testing.T) {
	a, b := batchMeshes()
	objects := []RenderObject{{a, 0}, {b, 1}, {a, 2}}

	draws, _ := BuildDrawCalls(objects, false)

	// b once, then a twice with two primitives each.
	wantFirst := []uint32{0, 1, 1, 2, 2}
	if len(draws) != len(wantFirst) {
		t.Fatalf("got %d draws, want %d", len(draws), len(wantFirst))
	}
	for i, d := range draws {
		if d.InstanceCount != 1 || d.FirstInstance != wantFirst[i] {
			t.Fatalf("draw %d = %+v, want one instance at %d", i, d, wantFirst[i])
		}
	}
}

func TestBuildDrawCallsEmpty(t *testing.T) {
	draws, order := BuildDrawCalls(nil, true)
	if len(draws) != 0 || len(order) != 0 {
		t.Fatalf("draws %d order %d, want none", len(draws), len(order))
	}
}

func TestRenderSystemBindlessLayout(t *testing.T) {
	r := newResources()
	g := newGeometry(t, r)

	rs, err := NewRenderSystem(r, g, Capabilities{
		Name: "bindless",
		Bindings: []driver.DescriptorBinding{
			{Binding: 0, Type: driver.DescriptorTypeUniformBuffer, Count: 1, Stages: driver.ShaderStageVertex},
			{Binding: 2, Type: driver.DescriptorTypeStorageBuffer, Count: 1, Stages: driver.ShaderStageVertex},
		},
		BindlessTextures: true,
		MaxTextures:      64,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rs.TextureBinding() != 3 {
		t.Fatalf("texture binding = %d, want 3", rs.TextureBinding())
	}

	layout := rs.SetLayout().(*drivertest.DescriptorSetLayout)
	var found bool
	for _, b := range layout.Bindings {
		if b.Binding == 3 {
			found = true
			if b.Type != driver.DescriptorTypeCombinedImageSampler || b.Count != 64 || b.Stages != driver.ShaderStageFragment {
				t.Fatalf("texture binding = %+v", b)
			}
		}
	}
	if !found {
		t.Fatal("bindless texture binding missing from the layout")
	}

	if _, err := NewRenderSystem(r, g, Capabilities{Name: "broken", BindlessTextures: true}, nil); err == nil {
		t.Fatal("bindless without MaxTextures accepted")
	}
}

func TestRenderSystemRecordsDraws(t *testing.T) {
	r := newResources()
	g := newGeometry(t, r)
	p, err := g.Upload(make([]byte, 4*16), 16, []uint32{0, 1, 2, 2, 3, 0}, 0)
	if err != nil {
		t.Fatal(err)
	}
	quad, err := g.AddMesh("quad", p)
	if err != nil {
		t.Fatal(err)
	}

	rs, err := NewRenderSystem(r, g, Capabilities{Name: "mesh", Instanced: true, PushConstantSize: 64},
		func(layout driver.PipelineLayout) (driver.Pipeline, error) {
			if layout.(*drivertest.PipelineLayout).PushConstantSize != 64 {
				t.Fatal("pipeline layout lost the push constant size")
			}
			return r.dev.NewPipeline(), nil
		})
	if err != nil {
		t.Fatal(err)
	}

	cmd := &drivertest.CommandBuffer{}
	rs.Enqueue(RenderObject{quad, 0}, RenderObject{quad, 1})
	order := rs.RenderQueued(cmd)
	if len(order) != 2 || rs.LastDrawCount() != 1 {
		t.Fatalf("order %d draws %d, want 2 and 1", len(order), rs.LastDrawCount())
	}

	vb := g.VertexArena().Buffer().(*drivertest.Buffer)
	ib := g.IndexArena().Buffer().(*drivertest.Buffer)
	want := []string{
		"bind_pipeline",
		"bind_descriptor_sets",
		"bind_vertex_buffer buffer=" + strconv.Itoa(vb.ID),
		"bind_index_buffer buffer=" + strconv.Itoa(ib.ID),
		"draw_indexed",
	}
	if strings.Join(cmd.Commands, ",") != strings.Join(want, ",") {
		t.Fatalf("commands = %v, want %v", cmd.Commands, want)
	}
	if cmd.Draws[0] != (drivertest.DrawIndexed{IndexCount: 6, InstanceCount: 2}) {
		t.Fatalf("draw = %+v", cmd.Draws[0])
	}
	if len(cmd.Bound) != 1 || cmd.Bound[0] != rs.DescriptorSet() {
		t.Fatal("persistent descriptor set not bound")
	}

	// The queue is drained.
	cmd = &drivertest.CommandBuffer{}
	rs.RenderQueued(cmd)
	if len(cmd.Commands) != 0 {
		t.Fatalf("empty queue recorded %v", cmd.Commands)
	}

	if err := rs.PushConstants(cmd, make([]byte, 65)); err == nil {
		t.Fatal("oversized push constants accepted")
	}
	if err := rs.PushConstants(cmd, make([]byte, 64)); err != nil {
		t.Fatal(err)
	}

	rs.Destroy()
	if n := r.dev.Live(drivertest.KindPipelineLayout); n != 0 {
		t.Fatalf("%d pipeline layouts alive after destroy", n)
	}
	if n := r.dev.Live(drivertest.KindPipeline); n != 0 {
		t.Fatalf("%d pipelines alive after destroy", n)
	}
	if n := r.dev.Live(drivertest.KindSetLayout); n != 1 {
		t.Fatalf("%d set layouts alive, want the cached one", n)
	}
}

func TestRenderSystemWithoutPipeline(t *testing.T) {
	r := newResources()
	g := newGeometry(t, r)
	rs, err := NewRenderSystem(r, g, Capabilities{Name: "external"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	mesh, _ := g.AddMesh("tri", Primitive{IndexCount: 3})

	cmd := &drivertest.CommandBuffer{}
	rs.Render(cmd, []RenderObject{{Mesh: mesh}})
	for _, c := range cmd.Commands {
		if c == "bind_pipeline" {
			t.Fatal("bound a pipeline the system does not own")
		}
	}
	if len(cmd.Draws) != 1 {
		t.Fatalf("got %d draws, want 1", len(cmd.Draws))
	}
}

func TestRenderSystemFactoryFailureReleasesLayout(t *testing.T) {
	r := newResources()
	g := newGeometry(t, r)
	_, err := NewRenderSystem(r, g, Capabilities{Name: "failing"}, func(driver.PipelineLayout) (driver.Pipeline, error) {
		return nil, driver.ErrDeviceLost
	})
	if err == nil {
		t.Fatal("expected the factory error")
	}
	if n := r.dev.Live(drivertest.KindPipelineLayout); n != 0 {
		t.Fatalf("%d pipeline layouts leaked", n)
	}
}

func TestSystemManager(t *testing.T) {
	r := newResources()
	sm, err := NewSystemManager(r, GeometryConfig{VertexCapacity: 128, IndexCapacity: 128})
	if err != nil {
		t.Fatal(err)
	}
	mesh, err := sm.Geometry().AddMesh("tri", Primitive{IndexCount: 3})
	if err != nil {
		t.Fatal(err)
	}

	opaque, err := sm.AddRenderSystem(Capabilities{Name: "opaque"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	instanced, err := sm.AddRenderSystem(Capabilities{Name: "instanced", Instanced: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sm.AddRenderSystem(Capabilities{Name: "opaque"}, nil); err == nil {
		t.Fatal("duplicate render system accepted")
	}
	if got, ok := sm.RenderSystem("instanced"); !ok || got != instanced {
		t.Fatal("lookup failed")
	}

	objects := []RenderObject{{mesh, 0}, {mesh, 1}, {mesh, 2}}
	opaque.Enqueue(objects...)
	instanced.Enqueue(objects...)

	cmd := &drivertest.CommandBuffer{}
	if draws := sm.Render(cmd); draws != 4 {
		t.Fatalf("draws = %d, want 3 per object plus 1 instanced", draws)
	}

	if err := sm.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if n := r.dev.Live(drivertest.KindPipelineLayout); n != 0 {
		t.Fatalf("%d pipeline layouts alive after shutdown", n)
	}
	if _, ok := sm.RenderSystem("opaque"); ok {
		t.Fatal("system still registered after shutdown")
	}
}
