// Package lifecycle holds process state shared by the exam handler and the
// readiness probe.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// Lifecycle records whether the server is draining. Once draining, new exam
// connections are refused and /readyz fails. The zero value is ready.
type Lifecycle struct {
	drainingSince atomic.Int64
}

// SetDraining flips the draining flag. The first transition to draining is
// timestamped; later calls keep the original time.
func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	if !draining {
		l.drainingSince.Store(0)
		return
	}
	l.drainingSince.CompareAndSwap(0, time.Now().UnixNano())
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.drainingSince.Load() != 0
}

// DrainingSince returns when draining started, or the zero time.
func (l *Lifecycle) DrainingSince() time.Time {
	if l == nil {
		return time.Time{}
	}
	ns := l.drainingSince.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
