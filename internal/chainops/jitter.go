package chainops

import "math/rand/v2"

// randFraction returns a uniform value in [0, 1), used to draw the jittered
// backoff delay from its interval.
func randFraction() float64 {
	return rand.Float64()
}
