package component

// Entity events published on the bus at the end of a frame.

// Expired is emitted when a Lifetime runs out, just before removal.
type Expired struct {
	Frame uint64 `yaml:"frame"`
}

// Died is emitted when Health reaches zero.
type Died struct{}

// Healed is emitted when regeneration restores hit points.
type Healed struct {
	Amount int32 `yaml:"amount"`
}
