package driver

// Scope owns a set of GPU objects and destroys them in reverse order of acquisition.
// A Scope must not be copied after first use.
type Scope struct {
	items []Destroyer
}

func NewScope() *Scope {
	return &Scope{}
}

// Add takes ownership of d. Nil values are ignored.
func (s *Scope) Add(d Destroyer) {
	if d == nil {
		return
	}
	s.items = append(s.items, d)
}

// Transfer moves every object owned by s into dst, leaving s empty.
func (s *Scope) Transfer(dst *Scope) {
	dst.items = append(dst.items, s.items...)
	s.items = nil
}

func (s *Scope) Len() int {
	return len(s.items)
}

// Destroy releases everything in LIFO order. Calling it twice is safe.
func (s *Scope) Destroy() {
	for i := len(s.items) - 1; i >= 0; i-- {
		s.items[i].Destroy()
		s.items[i] = nil
	}
	s.items = nil
}
