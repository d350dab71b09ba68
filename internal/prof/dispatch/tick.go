package dispatch

// NextTick queues fn to run after the current synchronous turn of the target
// program, when the producer calls RunDeferred.
func (d *Dispatcher) NextTick(fn func()) {
	if fn == nil {
		return
	}
	d.deferred = append(d.deferred, fn)
}

// RunDeferred runs queued work in FIFO order, including work queued while
// draining, and returns how many functions ran. The event producer calls it
// whenever the target program finishes a synchronous turn.
func (d *Dispatcher) RunDeferred() int {
	n := 0
	for len(d.deferred) > 0 {
		fn := d.deferred[0]
		d.deferred[0] = nil
		d.deferred = d.deferred[1:]
		fn()
		n++
	}
	d.deferred = nil
	return n
}

// Pending returns the number of queued deferred functions.
func (d *Dispatcher) Pending() int {
	return len(d.deferred)
}

// SuspendForTurn disables dispatching now and re-enables it once the current
// synchronous turn is over.
//
// Example (inside a callback):
//
//	Return: func(ev *dispatch.Event) *dispatch.Control {
//		d.SuspendForTurn()
//		return dispatch.Deactivated()
//	},
func (d *Dispatcher) SuspendForTurn() {
	d.SetGloballyEnabled(false)
	d.NextTick(func() {
		d.SetGloballyEnabled(true)
	})
}
