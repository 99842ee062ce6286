package descriptor

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver/drivertest"
)

func testLayout(t *testing.T, dev *drivertest.Device) driver.DescriptorSetLayout {
	t.Helper()
	l, err := dev.CreateDescriptorSetLayout([]driver.DescriptorBinding{
		{Binding: 0, Type: driver.DescriptorTypeUniformBuffer, Count: 1, Stages: driver.ShaderStageVertex},
	})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestAllocatorRetriesOnceOnFreshPool(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"out of pool memory", driver.ErrOutOfPoolMemory},
		{"fragmented pool", driver.ErrFragmentedPool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := drivertest.NewDevice()
			dev.AllocateErrors = []error{tt.err}
			a := NewAllocator(dev, AllocatorConfig{})

			set, err := a.Allocate(testLayout(t, dev))
			if err != nil {
				t.Fatalf("allocate: %v", err)
			}
			if len(dev.Pools) != 2 {
				t.Fatalf("expected 2 pools, got %d", len(dev.Pools))
			}
			if got := set.(*drivertest.DescriptorSet).Pool; got != dev.Pools[1] {
				t.Fatalf("set came from pool %d, want the fresh pool %d", got.ID, dev.Pools[1].ID)
			}
			if used, free := a.PoolCounts(); used != 2 || free != 0 {
				t.Fatalf("used %d free %d, want 2 and 0", used, free)
			}
		})
	}
}

func TestAllocatorExhausted(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.AllocateErrors = []error{driver.ErrOutOfPoolMemory, driver.ErrOutOfPoolMemory}
	a := NewAllocator(dev, AllocatorConfig{})

	_, err := a.Allocate(testLayout(t, dev))
	if !errors.Is(err, core.ErrDescriptorPoolExhausted) {
		t.Fatalf("expected ErrDescriptorPoolExhausted, got %v", err)
	}
	if len(dev.Pools) != 2 {
		t.Fatalf("expected exactly one retry pool, got %d pools", len(dev.Pools))
	}
}

func TestAllocatorOtherErrorsNotRetried(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.AllocateErrors = []error{driver.ErrOutOfDeviceMemory}
	a := NewAllocator(dev, AllocatorConfig{})

	_, err := a.Allocate(testLayout(t, dev))
	if !errors.Is(err, driver.ErrOutOfDeviceMemory) {
		t.Fatalf("expected ErrOutOfDeviceMemory, got %v", err)
	}
	if len(dev.Pools) != 1 {
		t.Fatalf("expected no retry pool, got %d pools", len(dev.Pools))
	}
}

func TestAllocatorRollsOverFullPool(t *testing.T) {
	dev := drivertest.NewDevice()
	a := NewAllocator(dev, AllocatorConfig{SetsPerPool: 2})
	layout := testLayout(t, dev)

	for i := 0; i < 5; i++ {
		if _, err := a.Allocate(layout); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	if len(dev.Pools) != 3 {
		t.Fatalf("expected 3 pools for 5 sets at 2 per pool, got %d", len(dev.Pools))
	}
}

func TestAllocatorResetReusesPools(t *testing.T) {
	dev := drivertest.NewDevice()
	a := NewAllocator(dev, AllocatorConfig{SetsPerPool: 1})
	layout := testLayout(t, dev)

	for i := 0; i < 3; i++ {
		if _, err := a.Allocate(layout); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.ResetPools(); err != nil {
		t.Fatal(err)
	}
	if used, free := a.PoolCounts(); used != 0 || free != 3 {
		t.Fatalf("after reset used %d free %d, want 0 and 3", used, free)
	}
	for _, p := range dev.Pools {
		if p.Resets != 1 {
			t.Fatalf("pool %d reset %d times", p.ID, p.Resets)
		}
	}

	for i := 0; i < 3; i++ {
		if _, err := a.Allocate(layout); err != nil {
			t.Fatal(err)
		}
	}
	if len(dev.Pools) != 3 {
		t.Fatalf("reset pools were not reused: %d pools created", len(dev.Pools))
	}

	a.Destroy()
	if live := dev.Live(drivertest.KindDescriptorPool); live != 0 {
		t.Fatalf("%d pools leaked", live)
	}
}

func TestAllocatorResetFailureKeepsOwnership(t *testing.T) {
	dev := drivertest.NewDevice()
	a := NewAllocator(dev, AllocatorConfig{SetsPerPool: 1})
	layout := testLayout(t, dev)

	for i := 0; i < 3; i++ {
		if _, err := a.Allocate(layout); err != nil {
			t.Fatal(err)
		}
	}

	dev.ResetErrors = []error{nil, driver.ErrDeviceLost}
	if err := a.ResetPools(); !errors.Is(err, driver.ErrDeviceLost) {
		t.Fatalf("expected ErrDeviceLost, got %v", err)
	}
	if used, free := a.PoolCounts(); used != 2 || free != 1 {
		t.Fatalf("after failed reset used %d free %d, want 2 and 1", used, free)
	}

	if err := a.ResetPools(); err != nil {
		t.Fatal(err)
	}
	if used, free := a.PoolCounts(); used != 0 || free != 3 {
		t.Fatalf("after reset used %d free %d, want 0 and 3", used, free)
	}
	// The pool reset before the failure moved across once and was not reset again.
	if dev.Pools[0].Resets != 1 {
		t.Fatalf("first pool reset %d times, want 1", dev.Pools[0].Resets)
	}

	a.Destroy()
	if live := dev.Live(drivertest.KindDescriptorPool); live != 0 {
		t.Fatalf("%d pools leaked", live)
	}
}

func TestPoolSizesFollowRatios(t *testing.T) {
	dev := drivertest.NewDevice()
	a := NewAllocator(dev, AllocatorConfig{})
	if _, err := a.Allocate(testLayout(t, dev)); err != nil {
		t.Fatal(err)
	}

	pool := dev.Pools[0]
	if pool.MaxSets != DefaultSetsPerPool {
		t.Fatalf("max sets %d", pool.MaxSets)
	}
	want := map[driver.DescriptorType]uint32{
		driver.DescriptorTypeSampler:              500,
		driver.DescriptorTypeCombinedImageSampler: 4000,
		driver.DescriptorTypeUniformBuffer:        2000,
		driver.DescriptorTypeInputAttachment:      500,
	}
	for _, s := range pool.Sizes {
		if w, ok := want[s.Type]; ok && s.Count != w {
			t.Fatalf("type %d count %d, want %d", s.Type, s.Count, w)
		}
	}
	if len(pool.Sizes) != len(DefaultPoolSizes) {
		t.Fatalf("pool has %d size entries", len(pool.Sizes))
	}
}

func TestLayoutCachePermutations(t *testing.T) {
	ubo := driver.DescriptorBinding{Binding: 0, Type: driver.DescriptorTypeUniformBuffer, Count: 1, Stages: driver.ShaderStageVertex}
	tex := driver.DescriptorBinding{Binding: 1, Type: driver.DescriptorTypeCombinedImageSampler, Count: 4, Stages: driver.ShaderStageFragment}
	ssbo := driver.DescriptorBinding{Binding: 2, Type: driver.DescriptorTypeStorageBuffer, Count: 1, Stages: driver.ShaderStageAllGraphics}

	dev := drivertest.NewDevice()
	cache := NewLayoutCache(dev)

	perms := [][]driver.DescriptorBinding{
		{ubo, tex, ssbo},
		{ssbo, tex, ubo},
		{tex, ubo, ssbo},
		{ubo, ssbo, tex},
	}
	var first driver.DescriptorSetLayout
	for i, p := range perms {
		got, err := cache.GetOrCreate(p)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = got
			continue
		}
		if got != first {
			t.Fatalf("permutation %d produced a different layout", i)
		}
	}
	if len(dev.Layouts) != 1 || cache.Len() != 1 {
		t.Fatalf("expected one created layout, got %d", len(dev.Layouts))
	}
	if hits, misses := cache.Stats(); hits != 3 || misses != 1 {
		t.Fatalf("hits %d misses %d", hits, misses)
	}
	if b := dev.Layouts[0].Bindings; b[0].Binding != 0 || b[1].Binding != 1 || b[2].Binding != 2 {
		t.Fatalf("layout created with unsorted bindings: %+v", b)
	}

	// The caller's slice is left untouched.
	if perms[1][0].Binding != 2 {
		t.Fatal("input bindings were reordered in place")
	}
}

func TestLayoutCacheDistinguishesStructure(t *testing.T) {
	dev := drivertest.NewDevice()
	cache := NewLayoutCache(dev)

	base := driver.DescriptorBinding{Binding: 0, Type: driver.DescriptorTypeUniformBuffer, Count: 1, Stages: driver.ShaderStageVertex}
	variants := []driver.DescriptorBinding{
		base,
		{Binding: 0, Type: driver.DescriptorTypeStorageBuffer, Count: 1, Stages: driver.ShaderStageVertex},
		{Binding: 0, Type: driver.DescriptorTypeUniformBuffer, Count: 2, Stages: driver.ShaderStageVertex},
		{Binding: 0, Type: driver.DescriptorTypeUniformBuffer, Count: 1, Stages: driver.ShaderStageFragment},
		{Binding: 1, Type: driver.DescriptorTypeUniformBuffer, Count: 1, Stages: driver.ShaderStageVertex},
	}
	for _, v := range variants {
		if _, err := cache.GetOrCreate([]driver.DescriptorBinding{v}); err != nil {
			t.Fatal(err)
		}
	}
	if cache.Len() != len(variants) {
		t.Fatalf("expected %d layouts, got %d", len(variants), cache.Len())
	}

	cache.Destroy()
	if live := dev.Live(drivertest.KindSetLayout); live != 0 {
		t.Fatalf("%d layouts leaked", live)
	}
}

func TestLayoutCacheRejectsDuplicates(t *testing.T) {
	cache := NewLayoutCache(drivertest.NewDevice())
	_, err := cache.GetOrCreate([]driver.DescriptorBinding{
		{Binding: 3, Type: driver.DescriptorTypeUniformBuffer, Count: 1},
		{Binding: 3, Type: driver.DescriptorTypeStorageBuffer, Count: 1},
	})
	if !errors.Is(err, core.ErrDuplicateBinding) {
		t.Fatalf("expected ErrDuplicateBinding, got %v", err)
	}
}

func TestBuilderWritesEveryBinding(t *testing.T) {
	dev := drivertest.NewDevice()
	cache := NewLayoutCache(dev)
	alloc := NewAllocator(dev, AllocatorConfig{})

	ubo, err := dev.CreateBuffer(256, driver.BufferUsageUniform, driver.MemoryHostVisible)
	if err != nil {
		t.Fatal(err)
	}
	samplers := []driver.Sampler{dev.NewSampler(), dev.NewSampler()}

	set, layout, err := NewBuilder(cache, alloc).
		BindSamplers(1, samplers, driver.ShaderStageFragment).
		BindBuffer(0, driver.BufferRange{Buffer: ubo, Range: 256}, driver.DescriptorTypeUniformBuffer, driver.ShaderStageVertex).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if set.(*drivertest.DescriptorSet).Layout != layout {
		t.Fatal("set was not allocated with the built layout")
	}
	if len(dev.Writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(dev.Writes))
	}
	for _, w := range dev.Writes {
		if w.Set != set {
			t.Fatal("write targets the wrong set")
		}
		switch w.Binding {
		case 0:
			if len(w.Buffers) != 1 || w.Buffers[0].Buffer != ubo {
				t.Fatalf("buffer write wrong: %+v", w)
			}
		case 1:
			if len(w.Images) != 2 || w.Type != driver.DescriptorTypeSampler {
				t.Fatalf("sampler write wrong: %+v", w)
			}
		default:
			t.Fatalf("unexpected binding %d", w.Binding)
		}
	}

	// An identical builder shares the layout.
	again, err := NewBuilder(cache, alloc).
		BindBuffer(0, driver.BufferRange{Buffer: ubo, Range: 256}, driver.DescriptorTypeUniformBuffer, driver.ShaderStageVertex).
		BindSamplers(1, samplers, driver.ShaderStageFragment).
		BuildLayout()
	if err != nil {
		t.Fatal(err)
	}
	if again != layout {
		t.Fatal("builder did not reuse the cached layout")
	}
}
