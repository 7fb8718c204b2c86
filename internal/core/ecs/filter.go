package ecs

import "strings"

// Filter selects entities by required and excluded component types.
// Filters are values and never change after construction.
type Filter struct {
	require Mask
	exclude Mask
}

// NewFilter requires every given type.
func NewFilter(require ...ComponentType) Filter {
	return Filter{require: MaskOf(require...)}
}

// Without returns a copy that also rejects entities holding any of ts.
func (f Filter) Without(ts ...ComponentType) Filter {
	for _, t := range ts {
		f.exclude.Set(t)
	}
	return f
}

// Matches checks the committed composition of e.
func (f Filter) Matches(e *Entity) bool {
	m := e.Mask()
	return m.Contains(f.require) && !m.Intersects(f.exclude)
}

func (f Filter) Require() Mask { return f.require }
func (f Filter) Exclude() Mask { return f.exclude }

func (f Filter) String() string {
	var b strings.Builder
	b.WriteString("require[")
	writeMask(&b, f.require)
	b.WriteString("] exclude[")
	writeMask(&b, f.exclude)
	b.WriteString("]")
	return b.String()
}

func writeMask(b *strings.Builder, m Mask) {
	first := true
	for i := 0; i < MaxComponentTypes; i++ {
		t := ComponentType(i)
		if !m.Has(t) {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(t.Name())
	}
}
