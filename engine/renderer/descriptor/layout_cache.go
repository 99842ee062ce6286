// Package descriptor allocates descriptor sets and deduplicates their layouts.
package descriptor

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
	"golang.org/x/exp/slices"
)

// layoutKey is the packed (binding, type, count, stages) tuples of a sorted binding list.
type layoutKey string

// LayoutCache shares one layout object between structurally identical binding lists so that
// sets allocated by different systems stay pipeline-layout compatible.
type LayoutCache struct {
	device  driver.Device
	layouts map[layoutKey]driver.DescriptorSetLayout
	hits    int
	misses  int
}

func NewLayoutCache(device driver.Device) *LayoutCache {
	return &LayoutCache{
		device:  device,
		layouts: make(map[layoutKey]driver.DescriptorSetLayout),
	}
}

func compareBindings(a, b driver.DescriptorBinding) int {
	switch {
	case a.Binding < b.Binding:
		return -1
	case a.Binding > b.Binding:
		return 1
	}
	return 0
}

// Normalize returns the bindings sorted by binding index. The input is never modified.
func Normalize(bindings []driver.DescriptorBinding) ([]driver.DescriptorBinding, error) {
	sorted := slices.Clone(bindings)
	if !slices.IsSortedFunc(sorted, compareBindings) {
		slices.SortFunc(sorted, compareBindings)
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Binding == sorted[i-1].Binding {
			return nil, fmt.Errorf("%w: %d", core.ErrDuplicateBinding, sorted[i].Binding)
		}
	}
	return sorted, nil
}

func keyOf(sorted []driver.DescriptorBinding) layoutKey {
	buf := make([]byte, 0, len(sorted)*16)
	for _, b := range sorted {
		buf = binary.LittleEndian.AppendUint32(buf, b.Binding)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(b.Type))
		buf = binary.LittleEndian.AppendUint32(buf, b.Count)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(b.Stages))
	}
	return layoutKey(buf)
}

// GetOrCreate returns the layout for bindings, creating it on first use. Declaration order
// does not matter.
func (c *LayoutCache) GetOrCreate(bindings []driver.DescriptorBinding) (driver.DescriptorSetLayout, error) {
	sorted, err := Normalize(bindings)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	key := keyOf(sorted)
	if layout, ok := c.layouts[key]; ok {
		c.hits++
		return layout, nil
	}

	layout, err := c.device.CreateDescriptorSetLayout(sorted)
	if err != nil {
		err = fmt.Errorf("failed to create descriptor set layout: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	c.misses++
	c.layouts[key] = layout
	return layout, nil
}

func (c *LayoutCache) Len() int {
	return len(c.layouts)
}

// Stats returns cache hits and misses since creation.
func (c *LayoutCache) Stats() (hits int, misses int) {
	return c.hits, c.misses
}

func (c *LayoutCache) Destroy() {
	keys := make([]layoutKey, 0, len(c.layouts))
	for k := range c.layouts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		c.layouts[k].Destroy()
	}
	c.layouts = make(map[layoutKey]driver.DescriptorSetLayout)
}
