package batch

import "sync/atomic"

// RunStart is delivered before any model call of a run completes, so
// observers can surface a pending row immediately.
type RunStart struct {
	BatchID string
	RunID   string
	RunMeta *RunMeta
}

// Progress is delivered after each run's fan-in and summary merge.
type Progress struct {
	Done     int
	Total    int
	BatchID  string
	RunID    string
	RunLabel string
	RunMeta  *RunMeta
}

// Observer receives runner events. Delivery is synchronous and
// at-least-once per event; return values are not consumed.
type Observer interface {
	OnRunStart(ev RunStart)
	OnProgress(ev Progress)
}

// ObserverFuncs adapts plain callbacks to the Observer interface. Nil
// fields are skipped.
type ObserverFuncs struct {
	RunStart func(ev RunStart)
	Progress func(ev Progress)
}

func (o ObserverFuncs) OnRunStart(ev RunStart) {
	if o.RunStart != nil {
		o.RunStart(ev)
	}
}

func (o ObserverFuncs) OnProgress(ev Progress) {
	if o.Progress != nil {
		o.Progress(ev)
	}
}

// CancelToken is a cooperative cancellation flag. The runner checks it only
// at iteration boundaries: in-flight calls of the current iteration always
// settle, cancellation merely prevents the next iteration from starting.
type CancelToken struct {
	flag atomic.Bool
}

func (t *CancelToken) Cancel() {
	t.flag.Store(true)
}

func (t *CancelToken) Cancelled() bool {
	return t.flag.Load()
}
