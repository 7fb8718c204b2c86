package component

import (
	"sync"

	"github.com/l1jgo/forge/internal/core/ecs"
)

var registerOnce sync.Once

// Register binds every sample component to its snapshot and script name.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		ecs.RegisterComponent[Position]("position")
		ecs.RegisterComponent[Velocity]("velocity")
		ecs.RegisterComponent[Health]("health")
		ecs.RegisterComponent[Regen]("regen")
		ecs.RegisterComponent[Lifetime]("lifetime")
		ecs.RegisterComponent[Name]("name")
	})
}
