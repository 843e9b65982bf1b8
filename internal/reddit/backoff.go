package reddit

import (
	"math/rand"
	"time"
)

// backoffDelay returns the exponential backoff for the given attempt
// (zero-based): base doubling per attempt, capped at max, jittered by
// up to ±20% to avoid thundering herds.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(2*int64(d)/5+1)) - d/5
	return d + jitter
}
