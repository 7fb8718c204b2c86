package component

// Health stores current and maximum hit points.
// Pure data, zero methods; all mutations happen in systems.
type Health struct {
	Cur int32 `yaml:"cur"`
	Max int32 `yaml:"max"`
}

// Regen restores Amount hit points every Interval frames. Acc counts frames
// since the last restore.
type Regen struct {
	Amount   int32 `yaml:"amount"`
	Interval int32 `yaml:"interval"`
	Acc      int32 `yaml:"acc"`
}

// Lifetime removes the entity once Frames reaches zero.
type Lifetime struct {
	Frames int32 `yaml:"frames"`
}

// Name is a display label, also used by templates.
type Name struct {
	Value string `yaml:"value"`
}
