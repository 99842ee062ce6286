package core

import "fmt"

// IDPool hands out small integer ids, reusing released ones first.
type IDPool struct {
	owners []interface{}
}

func NewIDPool(capacity int) *IDPool {
	return &IDPool{
		owners: make([]interface{}, 0, capacity),
	}
}

func (p *IDPool) Acquire(owner interface{}) uint32 {
	for i := range p.owners {
		// Existing free spot. Take it.
		if p.owners[i] == nil {
			p.owners[i] = owner
			return uint32(i)
		}
	}

	// No existing free slots. Need a new id, so push one.
	p.owners = append(p.owners, owner)
	return uint32(len(p.owners) - 1)
}

func (p *IDPool) Owner(id uint32) (interface{}, bool) {
	if int(id) >= len(p.owners) || p.owners[id] == nil {
		return nil, false
	}
	return p.owners[id], true
}

func (p *IDPool) Release(id uint32) error {
	if int(id) >= len(p.owners) {
		return fmt.Errorf("id '%d' out of range (max=%d). Nothing was done", id, len(p.owners))
	}
	// Just zero out the entry, making it available for use.
	p.owners[id] = nil
	return nil
}
