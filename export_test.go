package workqueue

// SetPinFunc replaces the CPU pinning call of p. Call before Start.
func SetPinFunc(p *Pool, pin func(cpu int) error) { p.pin = pin }
