package main

import (
	"nanokern/config"
	"nanokern/defs"
	"nanokern/kernel"
)

// bootDemo boots a kernel and creates a small fixed workload: an init
// process plus two children under different scheduling policies, ticked
// forward a few quanta so ps/threads have something non-trivial to show.
func bootDemo() (*kernel.Kernel, error) {
	k, err := kernel.New(config.Default(), discard{})
	if err != nil {
		return nil, err
	}

	initP, _, err := k.CreateProcess(defs.KernelPid, "init", 0, 0, 10, defs.PolicyPriority, 0x1000, 0x4000, 0x8000)
	if err != nil {
		return nil, err
	}
	if _, _, err := k.CreateProcess(initP.ID, "worker-rr", 0, 0, 15, defs.PolicyRoundRobin, 0x1000, 0x4000, 0x8000); err != nil {
		return nil, err
	}
	if _, _, err := k.CreateProcess(initP.ID, "worker-mlfq", 0, 0, 20, defs.PolicyMLFQ, 0x1000, 0x4000, 0x8000); err != nil {
		return nil, err
	}

	for i := 0; i < 25; i++ {
		k.Tick()
		if _, ok, _ := k.Reschedule(); !ok {
			break
		}
	}
	return k, nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
