package component

// Position is a point on the simulation plane.
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Velocity is applied to Position once per frame by the movement system.
type Velocity struct {
	DX float64 `yaml:"dx"`
	DY float64 `yaml:"dy"`
}
