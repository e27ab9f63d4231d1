package device

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Snapshot is an immutable view of the registry at one point in time.
// Devices reachable from a Snapshot must never be modified.
type Snapshot struct {
	devices map[uint32]*Device
	order   []uint32
	version uint64
}

var emptySnapshot = &Snapshot{devices: map[uint32]*Device{}}

// Get returns the device with the given index. The result is shared and
// read-only; use Registry.Lookup for a private copy.
func (s *Snapshot) Get(index uint32) (*Device, bool) {
	d, ok := s.devices[index]
	return d, ok
}

// Devices returns the devices ordered by index. Entries are read-only.
func (s *Snapshot) Devices() []*Device {
	out := make([]*Device, 0, len(s.order))
	for _, idx := range s.order {
		out = append(out, s.devices[idx])
	}
	return out
}

// Len returns the number of devices.
func (s *Snapshot) Len() int {
	return len(s.order)
}

// Version increases on every registry change.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Registry holds the live device set as a copy-on-write snapshot.
//
// Reads are lock-free: they load the current snapshot pointer. Writes build
// a new snapshot and swap it in, so readers never observe a partially
// applied change. Writers are expected to be a single goroutine; the write
// mutex only guards against misuse.
type Registry struct {
	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		logger: noopLogger{},
		now:    time.Now,
	}
	r.current.Store(emptySnapshot)
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Snapshot returns the current immutable view.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Lookup returns a deep copy of the device with the given index.
// Returns ErrDeviceNotFound if the index is unknown.
func (r *Registry) Lookup(index uint32) (*Device, error) {
	d, ok := r.Snapshot().Get(index)
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ErrDeviceNotFound, index)
	}
	return d.DeepCopy(), nil
}

// List returns deep copies of all devices ordered by index.
func (r *Registry) List() []Device {
	snap := r.Snapshot()
	out := make([]Device, 0, snap.Len())
	for _, d := range snap.Devices() {
		out = append(out, *d.DeepCopy())
	}
	return out
}

// Count returns the number of devices.
func (r *Registry) Count() int {
	return r.Snapshot().Len()
}

// Add inserts a device, fully replacing any entry with the same index.
// Reports whether an entry was replaced.
func (r *Registry) Add(d Device) bool {
	entry := d.DeepCopy()
	if entry.AddedAt.IsZero() {
		entry.AddedAt = r.now()
	}

	var replaced bool
	r.update(func(devices map[uint32]*Device) bool {
		_, replaced = devices[entry.Index]
		devices[entry.Index] = entry
		return true
	})

	r.logger.Info("device added",
		"index", entry.Index,
		"name", entry.Name,
		"replaced", replaced,
		"capabilities", entry.CapabilityCount(),
	)
	return replaced
}

// Remove deletes the device with the given index. Reports whether it existed.
func (r *Registry) Remove(index uint32) bool {
	var removed bool
	r.update(func(devices map[uint32]*Device) bool {
		if _, removed = devices[index]; removed {
			delete(devices, index)
		}
		return removed
	})

	if removed {
		r.logger.Info("device removed", "index", index)
	}
	return removed
}

// ReplaceAll swaps the whole device set in one step.
func (r *Registry) ReplaceAll(devices []Device) {
	now := r.now()
	next := make(map[uint32]*Device, len(devices))
	for i := range devices {
		entry := devices[i].DeepCopy()
		if entry.AddedAt.IsZero() {
			entry.AddedAt = now
		}
		next[entry.Index] = entry
	}

	r.writeMu.Lock()
	prev := r.current.Load()
	r.current.Store(newSnapshot(next, prev.version+1))
	r.writeMu.Unlock()

	r.logger.Info("device registry replaced", "count", len(next))
}

// Clear removes every device and returns how many were dropped.
func (r *Registry) Clear() int {
	r.writeMu.Lock()
	prev := r.current.Load()
	n := prev.Len()
	if n > 0 {
		r.current.Store(newSnapshot(map[uint32]*Device{}, prev.version+1))
	}
	r.writeMu.Unlock()

	if n > 0 {
		r.logger.Info("device registry cleared", "count", n)
	}
	return n
}

// SetActuatorIntensity records the last commanded intensity of a scalar actuator.
func (r *Registry) SetActuatorIntensity(deviceIndex, actuatorIndex uint32, intensity float64) error {
	return r.modify(deviceIndex, func(d *Device) error {
		if int(actuatorIndex) >= len(d.Actuators) {
			return fmt.Errorf("%w: actuator %d on device %d", ErrCapabilityNotFound, actuatorIndex, deviceIndex)
		}
		d.Actuators[actuatorIndex].Intensity = intensity
		return nil
	})
}

// SetRotation records the last commanded speed and direction.
func (r *Registry) SetRotation(deviceIndex, actuatorIndex uint32, speed float64, clockwise bool) error {
	return r.modify(deviceIndex, func(d *Device) error {
		if int(actuatorIndex) >= len(d.RotatoryActuators) {
			return fmt.Errorf("%w: rotatory actuator %d on device %d", ErrCapabilityNotFound, actuatorIndex, deviceIndex)
		}
		d.RotatoryActuators[actuatorIndex].Speed = speed
		d.RotatoryActuators[actuatorIndex].Clockwise = clockwise
		return nil
	})
}

// SetLinearPosition records the last commanded duration and position.
func (r *Registry) SetLinearPosition(deviceIndex, actuatorIndex, duration uint32, position float64) error {
	return r.modify(deviceIndex, func(d *Device) error {
		if int(actuatorIndex) >= len(d.LinearActuators) {
			return fmt.Errorf("%w: linear actuator %d on device %d", ErrCapabilityNotFound, actuatorIndex, deviceIndex)
		}
		d.LinearActuators[actuatorIndex].Duration = duration
		d.LinearActuators[actuatorIndex].Position = position
		return nil
	})
}

// SetSensorReading records the most recent reading of a sensor.
func (r *Registry) SetSensorReading(deviceIndex, sensorIndex uint32, data []int32) error {
	reading := make([]int32, len(data))
	copy(reading, data)

	return r.modify(deviceIndex, func(d *Device) error {
		if int(sensorIndex) >= len(d.Sensors) {
			return fmt.Errorf("%w: sensor %d on device %d", ErrCapabilityNotFound, sensorIndex, deviceIndex)
		}
		d.Sensors[sensorIndex].LastReading = reading
		return nil
	})
}

// ResetOutputs zeroes the cached intensity and speed of every output of a
// device after it was stopped. Linear positions are kept since a stopped
// stroker stays where it is.
func (r *Registry) ResetOutputs(deviceIndex uint32) error {
	return r.modify(deviceIndex, func(d *Device) error {
		for i := range d.Actuators {
			d.Actuators[i].Intensity = 0
		}
		for i := range d.RotatoryActuators {
			d.RotatoryActuators[i].Speed = 0
		}
		return nil
	})
}

// modify replaces one device with an edited copy.
func (r *Registry) modify(deviceIndex uint32, fn func(*Device) error) error {
	var err error
	r.update(func(devices map[uint32]*Device) bool {
		current, ok := devices[deviceIndex]
		if !ok {
			err = fmt.Errorf("%w: index %d", ErrDeviceNotFound, deviceIndex)
			return false
		}
		edited := current.DeepCopy()
		if err = fn(edited); err != nil {
			return false
		}
		devices[deviceIndex] = edited
		return true
	})
	return err
}

// update copies the device map, applies fn and publishes the result when
// fn reports a change.
func (r *Registry) update(fn func(map[uint32]*Device) bool) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	prev := r.current.Load()
	next := make(map[uint32]*Device, len(prev.devices)+1)
	for idx, d := range prev.devices {
		next[idx] = d
	}

	if fn(next) {
		r.current.Store(newSnapshot(next, prev.version+1))
	}
}

func newSnapshot(devices map[uint32]*Device, version uint64) *Snapshot {
	order := make([]uint32, 0, len(devices))
	for idx := range devices {
		order = append(order, idx)
	}
	slices.Sort(order)
	return &Snapshot{devices: devices, order: order, version: version}
}
