package buttplug

// MessageVersion is the Buttplug message version this client speaks.
const MessageVersion = 3

// Reserved message ids.
const (
	// SystemID tags unsolicited server events.
	SystemID uint32 = 0

	// HandshakeID is used by the session for RequestServerInfo. Command ids
	// allocated by the gateway start above it.
	HandshakeID uint32 = 1
)

// Message is implemented by every protocol message.
type Message interface {
	MessageID() uint32
	SetMessageID(id uint32)
	MessageType() string
}

// Envelope carries the Id field shared by all messages.
type Envelope struct {
	ID uint32 `json:"Id"`
}

// MessageID returns the message id.
func (e *Envelope) MessageID() uint32 { return e.ID }

// SetMessageID sets the message id.
func (e *Envelope) SetMessageID(id uint32) { e.ID = id }

// Message type names as they appear on the wire.
const (
	TypeOk                = "Ok"
	TypeError             = "Error"
	TypePing              = "Ping"
	TypeRequestServerInfo = "RequestServerInfo"
	TypeServerInfo        = "ServerInfo"
	TypeStartScanning     = "StartScanning"
	TypeStopScanning      = "StopScanning"
	TypeScanningFinished  = "ScanningFinished"
	TypeRequestDeviceList = "RequestDeviceList"
	TypeDeviceList        = "DeviceList"
	TypeDeviceAdded       = "DeviceAdded"
	TypeDeviceRemoved     = "DeviceRemoved"
	TypeStopDeviceCmd     = "StopDeviceCmd"
	TypeStopAllDevices    = "StopAllDevices"
	TypeScalarCmd         = "ScalarCmd"
	TypeRotateCmd         = "RotateCmd"
	TypeLinearCmd         = "LinearCmd"
	TypeSensorReadCmd     = "SensorReadCmd"
	TypeSensorReading     = "SensorReading"
)

// Ok acknowledges a successful command.
type Ok struct {
	Envelope
}

// Error reports a failed command, or a server-side problem when Id is 0.
type Error struct {
	Envelope
	ErrorMessage string `json:"ErrorMessage"`
	ErrorCode    int    `json:"ErrorCode"`
}

// Ping keeps the connection alive when the server sets MaxPingTime.
type Ping struct {
	Envelope
}

// RequestServerInfo opens the session.
type RequestServerInfo struct {
	Envelope
	ClientName     string `json:"ClientName"`
	MessageVersion int    `json:"MessageVersion"`
}

// ServerInfo answers RequestServerInfo.
type ServerInfo struct {
	Envelope
	ServerName     string `json:"ServerName"`
	MessageVersion int    `json:"MessageVersion"`
	MaxPingTime    uint32 `json:"MaxPingTime"`
}

// StartScanning asks the server to start device discovery.
type StartScanning struct {
	Envelope
}

// StopScanning asks the server to stop device discovery.
type StopScanning struct {
	Envelope
}

// ScanningFinished is sent when all discovery methods have stopped.
type ScanningFinished struct {
	Envelope
}

// RequestDeviceList asks for every currently connected device.
type RequestDeviceList struct {
	Envelope
}

// DeviceList answers RequestDeviceList.
type DeviceList struct {
	Envelope
	Devices []DeviceInfo `json:"Devices"`
}

// DeviceAdded announces a newly connected device.
type DeviceAdded struct {
	Envelope
	DeviceInfo
}

// DeviceRemoved announces that a device disconnected.
type DeviceRemoved struct {
	Envelope
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// StopDeviceCmd stops every actuator of one device.
type StopDeviceCmd struct {
	Envelope
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// StopAllDevices stops every actuator of every device.
type StopAllDevices struct {
	Envelope
}

// ScalarSubcommand sets one scalar actuator.
type ScalarSubcommand struct {
	Index        uint32  `json:"Index"`
	Scalar       float64 `json:"Scalar"`
	ActuatorType string  `json:"ActuatorType"`
}

// ScalarCmd sets one or more scalar actuators of a device.
type ScalarCmd struct {
	Envelope
	DeviceIndex uint32             `json:"DeviceIndex"`
	Scalars     []ScalarSubcommand `json:"Scalars"`
}

// RotateSubcommand sets one rotating actuator.
type RotateSubcommand struct {
	Index     uint32  `json:"Index"`
	Speed     float64 `json:"Speed"`
	Clockwise bool    `json:"Clockwise"`
}

// RotateCmd sets one or more rotating actuators of a device.
type RotateCmd struct {
	Envelope
	DeviceIndex uint32             `json:"DeviceIndex"`
	Rotations   []RotateSubcommand `json:"Rotations"`
}

// LinearSubcommand moves one linear actuator to Position over Duration ms.
type LinearSubcommand struct {
	Index    uint32  `json:"Index"`
	Duration uint32  `json:"Duration"`
	Position float64 `json:"Position"`
}

// LinearCmd moves one or more linear actuators of a device.
type LinearCmd struct {
	Envelope
	DeviceIndex uint32             `json:"DeviceIndex"`
	Vectors     []LinearSubcommand `json:"Vectors"`
}

// SensorReadCmd requests a single sensor reading.
type SensorReadCmd struct {
	Envelope
	DeviceIndex uint32 `json:"DeviceIndex"`
	SensorIndex uint32 `json:"SensorIndex"`
	SensorType  string `json:"SensorType"`
}

// SensorReading answers SensorReadCmd.
type SensorReading struct {
	Envelope
	DeviceIndex uint32  `json:"DeviceIndex"`
	SensorIndex uint32  `json:"SensorIndex"`
	SensorType  string  `json:"SensorType"`
	Data        []int32 `json:"Data"`
}

func (*Ok) MessageType() string                { return TypeOk }
func (*Error) MessageType() string             { return TypeError }
func (*Ping) MessageType() string              { return TypePing }
func (*RequestServerInfo) MessageType() string { return TypeRequestServerInfo }
func (*ServerInfo) MessageType() string        { return TypeServerInfo }
func (*StartScanning) MessageType() string     { return TypeStartScanning }
func (*StopScanning) MessageType() string      { return TypeStopScanning }
func (*ScanningFinished) MessageType() string  { return TypeScanningFinished }
func (*RequestDeviceList) MessageType() string { return TypeRequestDeviceList }
func (*DeviceList) MessageType() string        { return TypeDeviceList }
func (*DeviceAdded) MessageType() string       { return TypeDeviceAdded }
func (*DeviceRemoved) MessageType() string     { return TypeDeviceRemoved }
func (*StopDeviceCmd) MessageType() string     { return TypeStopDeviceCmd }
func (*StopAllDevices) MessageType() string    { return TypeStopAllDevices }
func (*ScalarCmd) MessageType() string         { return TypeScalarCmd }
func (*RotateCmd) MessageType() string         { return TypeRotateCmd }
func (*LinearCmd) MessageType() string         { return TypeLinearCmd }
func (*SensorReadCmd) MessageType() string     { return TypeSensorReadCmd }
func (*SensorReading) MessageType() string     { return TypeSensorReading }

// newMessage returns an empty message for a wire type name.
func newMessage(name string) (Message, bool) {
	switch name {
	case TypeOk:
		return &Ok{}, true
	case TypeError:
		return &Error{}, true
	case TypePing:
		return &Ping{}, true
	case TypeRequestServerInfo:
		return &RequestServerInfo{}, true
	case TypeServerInfo:
		return &ServerInfo{}, true
	case TypeStartScanning:
		return &StartScanning{}, true
	case TypeStopScanning:
		return &StopScanning{}, true
	case TypeScanningFinished:
		return &ScanningFinished{}, true
	case TypeRequestDeviceList:
		return &RequestDeviceList{}, true
	case TypeDeviceList:
		return &DeviceList{}, true
	case TypeDeviceAdded:
		return &DeviceAdded{}, true
	case TypeDeviceRemoved:
		return &DeviceRemoved{}, true
	case TypeStopDeviceCmd:
		return &StopDeviceCmd{}, true
	case TypeStopAllDevices:
		return &StopAllDevices{}, true
	case TypeScalarCmd:
		return &ScalarCmd{}, true
	case TypeRotateCmd:
		return &RotateCmd{}, true
	case TypeLinearCmd:
		return &LinearCmd{}, true
	case TypeSensorReadCmd:
		return &SensorReadCmd{}, true
	case TypeSensorReading:
		return &SensorReading{}, true
	default:
		return nil, false
	}
}
