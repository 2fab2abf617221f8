package rpc

import "time"

// rtoTick is the fixed-point time unit the SRTT/SDRTT arithmetic operates
// in, matching the source's "NFS_HZ" ticks; 1 tick = 10ms keeps the integer
// smoothing well-conditioned without overflowing a uint32 under sustained
// high-latency links.
const rtoTick = 10 * time.Millisecond

// backoffTable is indexed by the mount's timeout counter (counts past
// len-1 == 7 use the last entry) and multiplies the computed timeo (§4.6).
var backoffTable = [8]int{2, 4, 8, 16, 32, 64, 128, 256}

// minRTO is the floor for any computed retransmit interval (62.5 ms, §4.6).
const minRTO = 62500 * time.Microsecond

// RTOEstimator holds per-mount smoothed RTT and smoothed mean deviation,
// indexed by procedure class (§3, §4.3).
type RTOEstimator struct {
	srtt  [NumRTOClasses]int32
	sdrtt [NumRTOClasses]int32
	// sampled marks which classes have ever received an RTT sample; an
	// unsampled class falls back to the mount's static timeout (§4.3).
	sampled [NumRTOClasses]bool
}

// NewRTOEstimator returns an estimator with no samples yet.
func NewRTOEstimator() *RTOEstimator {
	return &RTOEstimator{}
}

// Update folds one RTT sample (in rtoTick units) into the smoothed
// estimators for the given class, per the §4.3 formula:
//
//	t1 = rtt + 1 - (SRTT >> 3); SRTT += t1
//	SDRTT += (|t1| - (SDRTT >> 2))
func (e *RTOEstimator) Update(class uint32, rtt time.Duration) {
	if class >= NumRTOClasses {
		class = ClassDefault
	}
	ticks := int32(rtt / rtoTick)
	if ticks < 1 {
		ticks = 1
	}

	t1 := ticks + 1 - (e.srtt[class] >> 3)
	e.srtt[class] += t1

	absT1 := t1
	if absT1 < 0 {
		absT1 = -absT1
	}
	e.sdrtt[class] += absT1 - (e.sdrtt[class] >> 2)
	e.sampled[class] = true
}

// Timeout computes RTO(class) per §4.3: for classes 1-2, (S=2, ROUND=3);
// for classes 3-4, (S=3, ROUND=7). Class 0 (default) always uses the
// class-1 shift/round pair since it has no dedicated timing slot.
//
// fallback is returned unchanged for a class with no sample yet (the
// mount's static configured timeout).
func (e *RTOEstimator) Timeout(class uint32, fallback time.Duration) time.Duration {
	if class >= NumRTOClasses {
		class = ClassDefault
	}
	if !e.sampled[class] {
		return fallback
	}

	var shift, round int32
	switch class {
	case ClassGetattr, ClassLookup:
		shift, round = 2, 3
	case ClassRead, ClassWrite:
		shift, round = 3, 7
	default:
		shift, round = 2, 3
	}

	ticks := ((e.srtt[class] + round) >> shift) + e.sdrtt[class] + 1
	if ticks < 1 {
		ticks = 1
	}
	return time.Duration(ticks) * rtoTick
}

// BackoffTimeout applies the §4.6 backoff table and clamps: multiply the
// base timeout by backoffTable[min(timeoutCount, len-1)], floor at 62.5ms,
// cap at maxtime.
func BackoffTimeout(base time.Duration, timeoutCount int, maxtime time.Duration) time.Duration {
	idx := timeoutCount
	if idx >= len(backoffTable) {
		idx = len(backoffTable) - 1
	}
	if idx < 0 {
		idx = 0
	}

	t := base * time.Duration(backoffTable[idx])
	if t < minRTO {
		t = minRTO
	}
	if maxtime > 0 && t > maxtime {
		t = maxtime
	}
	return t
}
