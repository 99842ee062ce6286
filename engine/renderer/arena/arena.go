// Package arena implements an append-only GPU buffer that grows by doubling.
package arena

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/math"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

const maxSize = ^uint64(0)

type Config struct {
	Name            string
	Usage           driver.BufferUsage
	InitialCapacity uint64
	// Alignment is the element size; every offset handed out is a multiple of it.
	Alignment uint64
}

// Arena sub-allocates from one device-local buffer. Offsets handed out stay valid and their
// content is preserved when the arena grows, but the buffer handle changes; callers that bind
// the buffer must re-read Buffer() after any Reserve or Upload.
//
// Growth must not happen while recorded command buffers that bound the old handle may still
// execute. In practice arenas only grow during load, before any frame references them.
type Arena struct {
	id         uuid.UUID
	name       string
	device     driver.Device
	usage      driver.BufferUsage
	buffer     driver.Buffer
	capacity   uint64
	offset     uint64
	alignment  uint64
	generation uint32
}

func New(device driver.Device, config Config) (*Arena, error) {
	if config.InitialCapacity == 0 {
		err := fmt.Errorf("arena %q: %w", config.Name, core.ErrInvalidArenaCapacity)
		core.LogError(err.Error())
		return nil, err
	}
	if config.Alignment == 0 {
		config.Alignment = 1
	}
	usage := config.Usage | driver.BufferUsageTransferSrc | driver.BufferUsageTransferDst

	buffer, err := device.CreateBuffer(config.InitialCapacity, usage, driver.MemoryDeviceLocal)
	if err != nil {
		err = fmt.Errorf("arena %q: failed to create buffer of %d bytes: %w", config.Name, config.InitialCapacity, err)
		core.LogError(err.Error())
		return nil, err
	}

	a := &Arena{
		id:        uuid.New(),
		name:      config.Name,
		device:    device,
		usage:     usage,
		buffer:    buffer,
		capacity:  config.InitialCapacity,
		alignment: config.Alignment,
	}
	core.LogDebug("arena %s (%s) created with %d bytes", a.name, a.id, a.capacity)
	return a, nil
}

// Reserve returns the offset of size free bytes, growing the arena first if needed. A failed
// Reserve leaves the arena unchanged.
func (a *Arena) Reserve(size uint64) (uint64, error) {
	if a.buffer == nil || a.capacity == 0 {
		err := fmt.Errorf("arena %q: %w", a.name, core.ErrArenaDestroyed)
		core.LogError(err.Error())
		return 0, err
	}

	start := math.AlignUp(a.offset, a.alignment)
	if start < a.offset || size > maxSize-start {
		err := fmt.Errorf("arena %q: %d bytes at offset %d: %w", a.name, size, a.offset, core.ErrArenaOverflow)
		core.LogError(err.Error())
		return 0, err
	}
	end := start + size

	if end > a.capacity {
		newCapacity := a.capacity
		for newCapacity < end {
			if newCapacity > maxSize/2 {
				newCapacity = end
				break
			}
			newCapacity *= 2
		}
		if err := a.grow(newCapacity); err != nil {
			return 0, err
		}
	}

	a.offset = end
	return start, nil
}

// Upload reserves space for data and copies it in through a host-visible staging buffer.
func (a *Arena) Upload(data []byte) (uint64, error) {
	size := uint64(len(data))
	offset, err := a.Reserve(size)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return offset, nil
	}

	staging, err := a.device.CreateBuffer(size, driver.BufferUsageTransferSrc, driver.MemoryHostVisible)
	if err != nil {
		err = fmt.Errorf("arena %q: failed to create staging buffer: %w", a.name, err)
		core.LogError(err.Error())
		return 0, err
	}
	defer staging.Destroy()

	if err := staging.Write(data, 0); err != nil {
		err = fmt.Errorf("arena %q: failed to fill staging buffer: %w", a.name, err)
		core.LogError(err.Error())
		return 0, err
	}

	dst := a.buffer
	if err := a.device.ImmediateSubmit(func(cmd driver.CommandBuffer) {
		cmd.CopyBuffer(staging, dst, driver.BufferCopy{SrcOffset: 0, DstOffset: offset, Size: size})
	}); err != nil {
		err = fmt.Errorf("arena %q: staging copy failed: %w", a.name, err)
		core.LogError(err.Error())
		return 0, err
	}
	return offset, nil
}

func (a *Arena) grow(newCapacity uint64) error {
	buffer, err := a.device.CreateBuffer(newCapacity, a.usage, driver.MemoryDeviceLocal)
	if err != nil {
		err = fmt.Errorf("arena %q: failed to grow to %d bytes: %w", a.name, newCapacity, err)
		core.LogError(err.Error())
		return err
	}

	if a.offset > 0 {
		old, used := a.buffer, a.offset
		if err := a.device.ImmediateSubmit(func(cmd driver.CommandBuffer) {
			cmd.CopyBuffer(old, buffer, driver.BufferCopy{SrcOffset: 0, DstOffset: 0, Size: used})
		}); err != nil {
			buffer.Destroy()
			err = fmt.Errorf("arena %q: growth copy failed: %w", a.name, err)
			core.LogError(err.Error())
			return err
		}
	}

	a.buffer.Destroy()
	a.buffer = buffer
	core.LogDebug("arena %s grew from %d to %d bytes", a.name, a.capacity, newCapacity)
	a.capacity = newCapacity
	a.generation++
	return nil
}

func (a *Arena) ID() uuid.UUID {
	return a.id
}

func (a *Arena) Name() string {
	return a.name
}

// Buffer is the current backing buffer. It changes whenever Generation changes.
func (a *Arena) Buffer() driver.Buffer {
	return a.buffer
}

func (a *Arena) Capacity() uint64 {
	return a.capacity
}

// Offset is the high-water mark.
func (a *Arena) Offset() uint64 {
	return a.offset
}

func (a *Arena) Alignment() uint64 {
	return a.alignment
}

func (a *Arena) Generation() uint32 {
	return a.generation
}

func (a *Arena) Destroy() {
	if a.buffer != nil {
		a.buffer.Destroy()
		a.buffer = nil
	}
	a.capacity = 0
	a.offset = 0
}
