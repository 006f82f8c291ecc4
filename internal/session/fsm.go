package session

import (
	"context"

	"github.com/looplab/fsm"
)

// Event names driving the state machine in §4.4.
const (
	eventActivate = "activate"
	eventPause    = "pause"
	eventEnd      = "end"
	eventFault    = "fault"
	eventFinish   = "finish"
)

// newFSM builds the §4.4 transition table:
//
//	started -> active | paused | ending | error
//	active  -> paused | ending | error
//	paused  -> active | ending | error
//	ending  -> ended
//	ended   -> (terminal)
//	error   -> ending
func newFSM(initial Status) *fsm.FSM {
	return fsm.NewFSM(
		string(initial),
		fsm.Events{
			{Name: eventActivate, Src: []string{string(StatusStarted), string(StatusPaused)}, Dst: string(StatusActive)},
			{Name: eventPause, Src: []string{string(StatusStarted), string(StatusActive)}, Dst: string(StatusPaused)},
			{Name: eventEnd, Src: []string{string(StatusStarted), string(StatusActive), string(StatusPaused)}, Dst: string(StatusEnding)},
			{Name: eventFault, Src: []string{string(StatusStarted), string(StatusActive), string(StatusPaused)}, Dst: string(StatusError)},
			{Name: eventFinish, Src: []string{string(StatusEnding)}, Dst: string(StatusEnded)},
			{Name: eventEnd, Src: []string{string(StatusError)}, Dst: string(StatusEnding)},
		},
		fsm.Callbacks{},
	)
}

// transition drives the fsm with event and, on success, returns the new
// Status. Illegal transitions return the fsm's own error untouched so
// callers can classify it as a validation error.
func transition(f *fsm.FSM, event string) (Status, error) {
	if err := f.Event(context.Background(), event); err != nil {
		return Status(f.Current()), err
	}
	return Status(f.Current()), nil
}
