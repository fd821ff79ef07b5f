package progress

// Func receives fractional completion updates from long-running operations.
// Percent is in the range 0-100 and is monotonically non-decreasing within a
// single operation; every operation ends with a final call at 100 on both
// success and failure paths. Message is a short human-readable status.
type Func func(percent float64, message string)

// Report invokes fn if it is non-nil. All engine code reports through this
// helper so callers may pass a nil sink.
func Report(fn Func, percent float64, message string) {
	if fn != nil {
		fn(percent, message)
	}
}

// Stage returns a Func that rescales a child operation's 0-100 range into the
// [lo, hi] sub-range of the parent operation. A nil parent yields a nil Func.
func Stage(parent Func, lo, hi float64) Func {
	if parent == nil {
		return nil
	}
	span := hi - lo
	return func(percent float64, message string) {
		parent(lo+span*percent/100, message)
	}
}

// Monotonic wraps fn so that percent values can never decrease, regardless of
// how child stages interleave their updates.
func Monotonic(fn Func) Func {
	if fn == nil {
		return nil
	}
	var highWater float64
	return func(percent float64, message string) {
		if percent < highWater {
			percent = highWater
		}
		highWater = percent
		fn(percent, message)
	}
}
