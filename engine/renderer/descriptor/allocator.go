package descriptor

import (
	"fmt"
	"math"

	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

const DefaultSetsPerPool uint32 = 1000

// PoolSizeRatio is how many descriptors of Type a pool reserves per set.
type PoolSizeRatio struct {
	Type  driver.DescriptorType
	Ratio float32
}

// DefaultPoolSizes is the per-set descriptor budget of a fresh pool.
var DefaultPoolSizes = []PoolSizeRatio{
	{driver.DescriptorTypeSampler, 0.5},
	{driver.DescriptorTypeCombinedImageSampler, 4},
	{driver.DescriptorTypeSampledImage, 4},
	{driver.DescriptorTypeStorageImage, 1},
	{driver.DescriptorTypeUniformTexelBuffer, 1},
	{driver.DescriptorTypeStorageTexelBuffer, 1},
	{driver.DescriptorTypeUniformBuffer, 2},
	{driver.DescriptorTypeStorageBuffer, 2},
	{driver.DescriptorTypeUniformBufferDynamic, 1},
	{driver.DescriptorTypeStorageBufferDynamic, 1},
	{driver.DescriptorTypeInputAttachment, 0.5},
}

type AllocatorConfig struct {
	SetsPerPool uint32
	PoolSizes   []PoolSizeRatio
}

// Allocator hands out descriptor sets from a rotating list of fixed-size pools.
//
// Pools are either used (handed out at least one set since the last reset) or free. They are
// only ever reclaimed whole through ResetPools.
type Allocator struct {
	device  driver.Device
	config  AllocatorConfig
	current driver.DescriptorPool
	used    []driver.DescriptorPool
	free    []driver.DescriptorPool
}

func NewAllocator(device driver.Device, config AllocatorConfig) *Allocator {
	if config.SetsPerPool == 0 {
		config.SetsPerPool = DefaultSetsPerPool
	}
	if len(config.PoolSizes) == 0 {
		config.PoolSizes = DefaultPoolSizes
	}
	return &Allocator{
		device: device,
		config: config,
	}
}

// Allocate returns a set for layout. When the active pool is exhausted or fragmented it
// moves to a fresh pool and retries exactly once.
func (a *Allocator) Allocate(layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	if a.current == nil {
		pool, err := a.grabPool()
		if err != nil {
			return nil, err
		}
		a.current = pool
		a.used = append(a.used, pool)
	}

	set, err := a.current.Allocate(layout)
	if err == nil {
		return set, nil
	}
	if !driver.IsPoolExhausted(err) {
		err = fmt.Errorf("failed to allocate descriptor set: %w", err)
		core.LogError(err.Error())
		return nil, err
	}

	core.LogDebug("descriptor pool exhausted (%s), moving to a fresh pool", err)
	pool, err := a.grabPool()
	if err != nil {
		return nil, err
	}
	a.current = pool
	a.used = append(a.used, pool)

	set, err = a.current.Allocate(layout)
	if err != nil {
		err = fmt.Errorf("%w: %w", core.ErrDescriptorPoolExhausted, err)
		core.LogError(err.Error())
		return nil, err
	}
	return set, nil
}

// ResetPools frees every set handed out so far. No GPU work referencing those sets may be
// pending.
// On failure the pools not yet reset stay in use and every pool is still owned exactly once.
func (a *Allocator) ResetPools() error {
	a.current = nil
	for len(a.used) > 0 {
		p := a.used[0]
		if err := p.Reset(); err != nil {
			err = fmt.Errorf("failed to reset descriptor pool: %w", err)
			core.LogError(err.Error())
			return err
		}
		a.used = a.used[1:]
		a.free = append(a.free, p)
	}
	a.used = nil
	return nil
}

func (a *Allocator) grabPool() (driver.DescriptorPool, error) {
	if n := len(a.free); n > 0 {
		p := a.free[n-1]
		a.free = a.free[:n-1]
		return p, nil
	}
	return a.createPool()
}

func (a *Allocator) createPool() (driver.DescriptorPool, error) {
	sizes := make([]driver.PoolSize, 0, len(a.config.PoolSizes))
	for _, r := range a.config.PoolSizes {
		count := uint32(math.Ceil(float64(r.Ratio) * float64(a.config.SetsPerPool)))
		if count == 0 {
			continue
		}
		sizes = append(sizes, driver.PoolSize{Type: r.Type, Count: count})
	}
	pool, err := a.device.CreateDescriptorPool(a.config.SetsPerPool, sizes)
	if err != nil {
		err = fmt.Errorf("failed to create descriptor pool: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("created descriptor pool for %d sets", a.config.SetsPerPool)
	return pool, nil
}

// PoolCounts returns the number of used and free pools.
func (a *Allocator) PoolCounts() (used int, free int) {
	return len(a.used), len(a.free)
}

func (a *Allocator) Destroy() {
	for _, p := range a.used {
		p.Destroy()
	}
	for _, p := range a.free {
		p.Destroy()
	}
	a.used = nil
	a.free = nil
	a.current = nil
}
