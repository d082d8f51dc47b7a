package presence

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	fsmutil "github.com/autopeer-io/stepguard/internal/pkg/util/fsm"
)

// FSM event names.
const (
	eventHeartbeat = "heartbeat"
	eventTimeout   = "timeout"
	eventOffline   = "offline"
)

var (
	stateOnline  = string(model.StatusOnline)
	stateOffline = string(model.StatusOffline)
)

// newMachine builds the presence state machine of one device. Every event is
// accepted from both states so that a same-state event surfaces as
// NoTransitionError rather than an invalid event.
func newMachine(initial model.Status) *fsm.FSM {
	return fsm.NewFSM(
		string(initial),
		fsm.Events{
			{Name: eventHeartbeat, Src: []string{stateOnline, stateOffline}, Dst: stateOnline},
			{Name: eventTimeout, Src: []string{stateOnline, stateOffline}, Dst: stateOffline},
			{Name: eventOffline, Src: []string{stateOnline, stateOffline}, Dst: stateOffline},
		},
		fsm.Callbacks{},
	)
}

// fire triggers event on m and reports whether the state changed.
func fire(m *fsm.FSM, event string) (bool, error) {
	err := m.Event(context.Background(), event)
	if fsmutil.IsRealError(err) {
		return false, err
	}
	return err == nil, nil
}
