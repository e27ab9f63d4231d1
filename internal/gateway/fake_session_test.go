package gateway

import (
	"context"
	"sync"

	"github.com/nerrad567/buttrest/internal/buttplug"
	"github.com/nerrad567/buttrest/internal/session"
)

// fakeSession plays the control server in memory. Replies are pushed onto
// the event stream as soon as a command is sent, unless the message type is
// silenced or rejected.
type fakeSession struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	info       buttplug.ServerInfo
	devices    []buttplug.DeviceInfo
	silent     map[string]bool
	reject     map[string]string
	reading    []int32
	sent       []buttplug.Message
	connects   int
	generation uint64

	events chan session.Event
}

func newFakeSession(devices ...buttplug.DeviceInfo) *fakeSession {
	return &fakeSession{
		info:    buttplug.ServerInfo{ServerName: "Fake Intiface", MessageVersion: 3},
		devices: devices,
		silent:  map[string]bool{},
		reject:  map[string]string{},
		reading: []int32{42},
		events:  make(chan session.Event, 256),
	}
}

func (f *fakeSession) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.connected {
		return session.ErrAlreadyConnected
	}
	f.connected = true
	f.connects++
	f.generation++
	return nil
}

func (f *fakeSession) Send(_ context.Context, msg buttplug.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return session.ErrNotConnected
	}
	f.sent = append(f.sent, msg)

	if f.silent[msg.MessageType()] {
		return nil
	}
	if text, ok := f.reject[msg.MessageType()]; ok {
		reply := &buttplug.Error{ErrorMessage: text, ErrorCode: buttplug.ErrorCodeDevice}
		reply.SetMessageID(msg.MessageID())
		f.events <- session.Event{Kind: session.EventResponse, Message: reply}
		return nil
	}

	var reply buttplug.Message
	switch m := msg.(type) {
	case *buttplug.RequestDeviceList:
		reply = &buttplug.DeviceList{Devices: append([]buttplug.DeviceInfo(nil), f.devices...)}
	case *buttplug.SensorReadCmd:
		reply = &buttplug.SensorReading{
			DeviceIndex: m.DeviceIndex,
			SensorIndex: m.SensorIndex,
			SensorType:  m.SensorType,
			Data:        append([]int32(nil), f.reading...),
		}
	default:
		reply = &buttplug.Ok{}
	}
	reply.SetMessageID(msg.MessageID())
	f.events <- session.Event{Kind: session.EventResponse, Message: reply}
	return nil
}

func (f *fakeSession) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropLocked()
}

func (f *fakeSession) dropLocked() {
	if !f.connected {
		return
	}
	f.connected = false
	f.events <- session.Event{Kind: session.EventConnectionLost, Err: session.ErrDisconnected, Generation: f.generation}
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeSession) Events() <-chan session.Event {
	return f.events
}

func (f *fakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation
}

func (f *fakeSession) ServerInfo() buttplug.ServerInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info
}

// deviceAdded announces a new device, as the server does after a scan.
func (f *fakeSession) deviceAdded(info buttplug.DeviceInfo) {
	f.mu.Lock()
	f.devices = append(f.devices, info)
	f.mu.Unlock()
	f.events <- session.Event{Kind: session.EventDeviceAdded, Message: &buttplug.DeviceAdded{DeviceInfo: info}}
}

// deviceRemoved announces a device going away.
func (f *fakeSession) deviceRemoved(index uint32) {
	f.mu.Lock()
	kept := f.devices[:0]
	for _, d := range f.devices {
		if d.DeviceIndex != index {
			kept = append(kept, d)
		}
	}
	f.devices = kept
	f.mu.Unlock()
	f.events <- session.Event{Kind: session.EventDeviceRemoved, Message: &buttplug.DeviceRemoved{DeviceIndex: index}}
}

// push delivers a raw event.
func (f *fakeSession) push(ev session.Event) {
	f.events <- ev
}

// respond pushes an arbitrary tagged reply.
func (f *fakeSession) respond(reply buttplug.Message) {
	f.events <- session.Event{Kind: session.EventResponse, Message: reply}
}

func (f *fakeSession) setSilent(msgType string, silent bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent[msgType] = silent
}

func (f *fakeSession) setReject(msgType, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reject[msgType] = text
}

func (f *fakeSession) sentOfType(msgType string) []buttplug.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []buttplug.Message
	for _, m := range f.sent {
		if m.MessageType() == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSession) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// vibrator describes a device with two scalar actuators and a battery sensor.
func vibrator(index uint32) buttplug.DeviceInfo {
	return buttplug.DeviceInfo{
		DeviceName:  "Lovense Edge",
		DeviceIndex: index,
		DeviceMessages: buttplug.DeviceMessages{
			ScalarCmd: []buttplug.ScalarAttributes{
				{FeatureDescriptor: "Inner", StepCount: 20, ActuatorType: "Vibrate"},
				{FeatureDescriptor: "Outer", StepCount: 20, ActuatorType: "Vibrate"},
			},
			SensorReadCmd: []buttplug.SensorAttributes{
				{FeatureDescriptor: "Battery Level", SensorType: "Battery", SensorRange: [][2]int32{{0, 100}}},
			},
		},
	}
}

// stroker describes a device with one linear and one rotatory actuator.
func stroker(index uint32) buttplug.DeviceInfo {
	return buttplug.DeviceInfo{
		DeviceName:  "Kiiroo Keon",
		DeviceIndex: index,
		DeviceMessages: buttplug.DeviceMessages{
			LinearCmd: []buttplug.GenericAttributes{{FeatureDescriptor: "Stroke", StepCount: 100}},
			RotateCmd: []buttplug.GenericAttributes{{FeatureDescriptor: "Twist", StepCount: 24}},
		},
	}
}

func (f *fakeSession) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}
