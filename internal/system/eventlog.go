package system

import (
	"github.com/l1jgo/forge/internal/component"
	"github.com/l1jgo/forge/internal/core/ecs"
	"github.com/l1jgo/forge/internal/core/event"
	"go.uber.org/zap"
)

// EventLog subscribes to the sample entity events and logs them. It keeps
// running totals for status reporting.
type EventLog struct {
	log     *zap.Logger
	expired int
	died    int
	healed  int64
}

func NewEventLog(bus *event.Bus, log *zap.Logger) *EventLog {
	l := &EventLog{log: log}
	event.Subscribe(bus, func(id ecs.EntityID, ev component.Expired) {
		l.expired++
		l.log.Debug("entity expired", zap.Stringer("entity", id), zap.Uint64("frame", ev.Frame))
	})
	event.Subscribe(bus, func(id ecs.EntityID, _ component.Died) {
		l.died++
		l.log.Info("entity died", zap.Stringer("entity", id))
	})
	event.Subscribe(bus, func(id ecs.EntityID, ev component.Healed) {
		l.healed += int64(ev.Amount)
	})
	return l
}

// Totals returns the expired and died counts and the total hit points healed.
func (l *EventLog) Totals() (expired, died int, healed int64) {
	return l.expired, l.died, l.healed
}
