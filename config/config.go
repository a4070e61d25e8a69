// Package config holds the boot-time configuration struct spec.md §6
// names: tick frequency, default scheduling quantum, MLFQ shape,
// priority-aging parameters and kernel heap size, plus the defaults
// each field takes when left unset.
package config

import (
	"nanokern/defs"
	"nanokern/sched"
)

/// Config is the root boot-time configuration passed to kernel.New.
type Config struct {
	TickFrequencyHz   uint32
	Quantum           int
	MLFQLevels        int
	MLFQBaseQuantum   int
	MLFQBoostInterval uint64
	AgingEnabled      bool
	AgingThreshold    uint64
	RTSubPolicy       defs.RTSubPolicy_t
	DefaultPolicy     defs.Policy_t

	KernelHeapSize  int
	PhysMemFrames   int
	PhysMemBase     uintptr
}

/// Default returns the configuration named by §6's defaults: 100 Hz tick,
/// a 10-tick round-robin/MLFQ base quantum, a 3-level MLFQ boosted every
/// 100 ticks, aging enabled after 50 idle ticks, EDF real-time dispatch,
/// priority as the default non-RT policy, a 1 MiB kernel heap and 4096
/// physical frames (16 MiB) of simulated memory.
func Default() Config {
	return Config{
		TickFrequencyHz:   100,
		Quantum:           10,
		MLFQLevels:        3,
		MLFQBaseQuantum:   10,
		MLFQBoostInterval: 100,
		AgingEnabled:      true,
		AgingThreshold:    50,
		RTSubPolicy:       defs.RTEDF,
		DefaultPolicy:     defs.PolicyPriority,
		KernelHeapSize:    1 << 20,
		PhysMemFrames:     4096,
		PhysMemBase:       0x10_0000,
	}
}

/// SchedConfig projects the scheduling-relevant fields into sched.Config.
func (c Config) SchedConfig() sched.Config {
	return sched.Config{
		TickFrequencyHz:   c.TickFrequencyHz,
		Quantum:           c.Quantum,
		MLFQLevels:        c.MLFQLevels,
		MLFQBaseQuantum:   c.MLFQBaseQuantum,
		MLFQBoostInterval: c.MLFQBoostInterval,
		AgingEnabled:      c.AgingEnabled,
		AgingThreshold:    c.AgingThreshold,
		RTSubPolicy:       c.RTSubPolicy,
		FallbackPolicy:    c.DefaultPolicy,
	}
}
