package session

import "time"

// inboundAudioLimiter is a token bucket over audio frames per second and
// bytes per second. A nil limiter allows everything.
type inboundAudioLimiter struct {
	now          func() time.Time
	fpsRate      int64
	fpsTokens    int64
	bpsRate      int64
	bpsTokens    int64
	burstSeconds int64
	lastRefill   time.Time
}

func newInboundAudioLimiter(now func() time.Time, fps int, bps int64, burstSeconds int) *inboundAudioLimiter {
	if fps <= 0 && bps <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	if burstSeconds <= 0 {
		burstSeconds = 1
	}

	l := &inboundAudioLimiter{
		now:          now,
		fpsRate:      int64(fps),
		bpsRate:      bps,
		burstSeconds: int64(burstSeconds),
		lastRefill:   now(),
	}
	if l.fpsRate > 0 {
		l.fpsTokens = l.fpsRate * l.burstSeconds
	}
	if l.bpsRate > 0 {
		l.bpsTokens = l.bpsRate * l.burstSeconds
	}
	return l
}

func (l *inboundAudioLimiter) Allow(frameBytes int) bool {
	if l == nil {
		return true
	}
	l.refill()

	if frameBytes < 0 {
		frameBytes = 0
	}
	if l.fpsRate > 0 && l.fpsTokens < 1 {
		return false
	}
	if l.bpsRate > 0 && l.bpsTokens < int64(frameBytes) {
		return false
	}
	if l.fpsRate > 0 {
		l.fpsTokens--
	}
	if l.bpsRate > 0 {
		l.bpsTokens -= int64(frameBytes)
	}
	return true
}

// refill credits whole tokens for the elapsed time. The refill clock only
// advances once at least one token was earned on the fastest bucket, so
// frequent small calls do not lose fractional credit.
func (l *inboundAudioLimiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}

	credited := false
	if l.fpsRate > 0 {
		if add := (elapsed.Nanoseconds() * l.fpsRate) / int64(time.Second); add > 0 {
			l.fpsTokens = min(l.fpsTokens+add, l.fpsRate*l.burstSeconds)
			credited = true
		}
	}
	if l.bpsRate > 0 {
		if add := (elapsed.Nanoseconds() * l.bpsRate) / int64(time.Second); add > 0 {
			l.bpsTokens = min(l.bpsTokens+add, l.bpsRate*l.burstSeconds)
			credited = true
		}
	}
	if credited {
		l.lastRefill = now
	}
}
