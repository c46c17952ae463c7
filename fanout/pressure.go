package fanout

import "runtime"

// MemPressure estimates memory pressure as HeapInuse / HeapSys.
func MemPressure() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapSys == 0 {
		return 0
	}
	return float64(m.HeapInuse) / float64(m.HeapSys)
}
