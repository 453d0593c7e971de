package rhi

import "sync"

// CommandQueue is the device's queue. The device owns it, so the queue's
// reference back to the device is weak while nobody outside holds the queue,
// and strong while a caller does.
type CommandQueue struct {
	mu     sync.Mutex
	refs   int
	device BreakableRef[Device, *Device]
}

func newCommandQueue(d *Device) *CommandQueue {
	q := &CommandQueue{}
	q.device.SetWeak(d)
	return q
}

// acquire hands out a public reference, re-establishing the strong device
// reference when the first one is taken.
func (q *CommandQueue) acquire() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.refs == 0 && !q.device.RestoreStrong() {
		return false
	}
	q.refs++
	return true
}

// Retain adds a public reference. It has no effect once the device is gone.
func (q *CommandQueue) Retain() {
	q.acquire()
}

// Release drops a public reference obtained from Device.Queue or Retain.
func (q *CommandQueue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.refs == 0 {
		return
	}
	q.refs--
	if q.refs > 0 {
		return
	}
	// Last public reference is gone. The device may be torn down by
	// BreakStrong, and nothing after it touches the device.
	q.device.BreakStrong()
}

// Device returns the queue's device, or nil after the device was torn down.
func (q *CommandQueue) Device() *Device {
	q.mu.Lock()
	defer q.mu.Unlock()
	d := q.device.Get()
	if d == nil || !d.Alive() {
		return nil
	}
	return d
}

// WriteBuffer uploads data into a device-created buffer at offset.
func (q *CommandQueue) WriteBuffer(res *Resource, offset uint64, data []byte) error {
	d := q.Device()
	if d == nil {
		return ErrDeviceReleased
	}
	return d.writeBuffer(res, offset, data)
}
