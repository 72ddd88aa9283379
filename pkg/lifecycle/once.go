// Package lifecycle gives long-running components (the webhook server, the
// worker pool) a single idempotent start/stop state machine.
package lifecycle

import (
	"errors"
	syncatomic "sync/atomic"

	"go.uber.org/atomic"
)

// State is a point in a lifecycle object's monotonic state progression.
type State int

const (
	// Idle indicates the Lifecycle hasn't been operated on yet.
	Idle State = iota
	// Starting indicates Start has begun but not finished.
	Starting
	// Running indicates the Lifecycle finished starting and is available.
	Running
	// Stopping indicates Stop has begun but not finished.
	Stopping
	// Stopped indicates the Lifecycle has stopped cleanly.
	Stopped
	// Errored indicates Start or Stop returned an error.
	Errored
)

var stateToName = map[State]string{
	Idle:     "idle",
	Starting: "starting",
	Running:  "running",
	Stopping: "stopping",
	Stopped:  "stopped",
	Errored:  "errored",
}

// String implements fmt.Stringer for use in structured log fields.
func (s State) String() string {
	if name, ok := stateToName[s]; ok {
		return name
	}
	return "unknown"
}

// Once advances an object monotonically through Idle -> Starting -> Running
// -> Stopping -> Stopped (or Errored) exactly once, regardless of how many
// goroutines call Start/Stop concurrently.
type Once struct {
	startCh chan struct{}
	stopCh  chan struct{}

	err   syncatomic.Value
	state atomic.Int32
}

// NewOnce returns a lifecycle controller in the Idle state.
func NewOnce() *Once {
	return &Once{
		startCh: make(chan struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Start runs f exactly once. Concurrent and repeat callers block until the
// first call's f returns, then receive its error.
func (o *Once) Start(f func() error) error {
	if o.state.CAS(int32(Idle), int32(Starting)) {
		var err error
		if f != nil {
			err = f()
		}

		if err != nil {
			o.setError(err)
			o.state.Store(int32(Errored))
			close(o.stopCh)
		} else {
			o.state.Store(int32(Running))
		}
		close(o.startCh)
		return err
	}

	<-o.startCh
	return o.loadError()
}

// Stop runs f exactly once, pre-empting a not-yet-started Start. Concurrent
// and repeat callers block until the first call's f returns, then receive
// its error.
func (o *Once) Stop(f func() error) error {
	if o.state.CAS(int32(Idle), int32(Stopped)) {
		close(o.startCh)
		close(o.stopCh)
		return nil
	}

	<-o.startCh

	if o.state.CAS(int32(Running), int32(Stopping)) {
		var err error
		if f != nil {
			err = f()
		}

		if err != nil {
			o.setError(err)
			o.state.Store(int32(Errored))
		} else {
			o.state.Store(int32(Stopped))
		}
		close(o.stopCh)
		return err
	}

	<-o.stopCh
	return o.loadError()
}

func (o *Once) setError(err error) { o.err.Store(err) }

func (o *Once) loadError() error {
	v := o.err.Load()
	if v == nil {
		return nil
	}
	if err, ok := v.(error); ok {
		return err
	}
	return errors.New("lifecycle: stored error was not of type error")
}

// State reports the last observed state. The lifecycle may have progressed
// further by the time the caller inspects the result.
func (o *Once) State() State { return State(o.state.Load()) }
