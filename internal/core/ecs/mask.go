package ecs

// Mask is a set of up to 256 component types, one bit per type.
type Mask [4]uint64

func (m *Mask) Set(t ComponentType) {
	m[t>>6] |= uint64(1) << (t & 63)
}

func (m *Mask) Unset(t ComponentType) {
	m[t>>6] &^= uint64(1) << (t & 63)
}

func (m Mask) Has(t ComponentType) bool {
	return m[t>>6]&(uint64(1)<<(t&63)) != 0
}

// Contains reports whether every bit of sub is set in m.
func (m Mask) Contains(sub Mask) bool {
	return m[0]&sub[0] == sub[0] &&
		m[1]&sub[1] == sub[1] &&
		m[2]&sub[2] == sub[2] &&
		m[3]&sub[3] == sub[3]
}

// Intersects reports whether m and o share at least one bit.
func (m Mask) Intersects(o Mask) bool {
	return m[0]&o[0] != 0 || m[1]&o[1] != 0 || m[2]&o[2] != 0 || m[3]&o[3] != 0
}

func (m Mask) IsZero() bool {
	return m[0]|m[1]|m[2]|m[3] == 0
}

func MaskOf(ts ...ComponentType) Mask {
	var m Mask
	for _, t := range ts {
		m.Set(t)
	}
	return m
}
