package sched

/// AdmitRealtime applies a simple utilization-bound admission test before a
/// real-time thread is allowed into the RT class: the sum of wcet/period
/// over every already-admitted RT thread plus the candidate must not
/// exceed 1.0 (single CPU, per spec.md §1's "no SMP beyond a mask"
/// Non-goal). criticality is accepted for future use but does not affect
/// the test — criticality-mode switching is out of scope per §1's "no hard
/// real-time guarantees" Non-goal.
//
// Grounded on original_source/kernel/Kernel/RealTimeExtensions.cpp, which
// carries a criticality field and an admission check the spec's
// distillation dropped (spec.md §3 lists Criticality on the PCB but never
// uses it); this restates the original's utilization-bound test rather
// than its full mixed-criticality scheme.
func AdmitRealtime(existingUtilization float64, wcet, period uint64, criticality int) (accept bool, newUtilization float64) {
	if period == 0 {
		return false, existingUtilization
	}
	u := existingUtilization + float64(wcet)/float64(period)
	if u > 1.0 {
		return false, existingUtilization
	}
	return true, u
}
