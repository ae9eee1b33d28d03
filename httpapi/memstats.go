package httpapi

import "runtime"

// memoryStats is a thin wrapper over runtime.MemStats so the health handler
// doesn't read the runtime package's sprawling struct directly.
type memoryStats struct {
	allocBytes uint64
}

func (m *memoryStats) read() {
	var rt runtime.MemStats
	runtime.ReadMemStats(&rt)
	m.allocBytes = rt.Alloc
}
