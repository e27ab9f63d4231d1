package buttplug

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeScalarCmd(t *testing.T) {
	cmd := &ScalarCmd{
		DeviceIndex: 2,
		Scalars:     []ScalarSubcommand{{Index: 0, Scalar: 0.5, ActuatorType: "Vibrate"}},
	}
	cmd.SetMessageID(7)

	data, err := Encode(cmd)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"ScalarCmd":{"Id":7,"DeviceIndex":2,"Scalars":[{"Index":0,"Scalar":0.5,"ActuatorType":"Vibrate"}]}}]`,
		string(data))
}

func TestEncodeEmpty(t *testing.T) {
	_, err := Encode()
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestDecodeDeviceAdded(t *testing.T) {
	frame := `[{"DeviceAdded":{
		"Id":0,
		"DeviceName":"Lovense Edge",
		"DeviceIndex":3,
		"DeviceMessageTimingGap":100,
		"DeviceMessages":{
			"ScalarCmd":[
				{"FeatureDescriptor":"Inner","StepCount":20,"ActuatorType":"Vibrate"},
				{"FeatureDescriptor":"Outer","StepCount":20,"ActuatorType":"Vibrate"}
			],
			"SensorReadCmd":[
				{"FeatureDescriptor":"Battery Level","SensorType":"Battery","SensorRange":[[0,100]]}
			],
			"StopDeviceCmd":{}
		}
	}}]`

	msgs, err := Decode([]byte(frame))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	added, ok := msgs[0].(*DeviceAdded)
	require.True(t, ok, "expected *DeviceAdded, got %T", msgs[0])
	assert.Equal(t, SystemID, added.MessageID())
	assert.Equal(t, uint32(3), added.DeviceIndex)
	assert.Equal(t, "Lovense Edge", added.DeviceName)
	assert.Len(t, added.DeviceMessages.ScalarCmd, 2)
	require.Len(t, added.DeviceMessages.SensorReadCmd, 1)
	assert.Equal(t, [][2]int32{{0, 100}}, added.DeviceMessages.SensorReadCmd[0].SensorRange)
	assert.NotNil(t, added.DeviceMessages.StopDeviceCmd)
}

func TestDecodeMultipleMessagesKeepsOrder(t *testing.T) {
	frame := `[{"Ok":{"Id":4}},{"Error":{"Id":5,"ErrorMessage":"bad index","ErrorCode":3}},{"SensorReading":{"Id":6,"DeviceIndex":0,"SensorIndex":1,"SensorType":"Pressure","Data":[591]}}]`

	msgs, err := Decode([]byte(frame))
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, TypeOk, msgs[0].MessageType())
	assert.Equal(t, uint32(4), msgs[0].MessageID())

	e, ok := msgs[1].(*Error)
	require.True(t, ok)
	assert.Equal(t, "bad index", e.ErrorMessage)
	assert.Equal(t, ErrorCodeMessage, e.ErrorCode)

	r, ok := msgs[2].(*SensorReading)
	require.True(t, ok)
	assert.Equal(t, []int32{591}, r.Data)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{name: "not json", frame: `nope`, wantErr: ErrMalformedFrame},
		{name: "object instead of array", frame: `{"Ok":{"Id":1}}`, wantErr: ErrMalformedFrame},
		{name: "two keys in one entry", frame: `[{"Ok":{"Id":1},"Ping":{"Id":2}}]`, wantErr: ErrMalformedFrame},
		{name: "unknown type", frame: `[{"VibrateCmd":{"Id":1}}]`, wantErr: ErrUnknownMessage},
		{name: "bad field type", frame: `[{"Ok":{"Id":"one"}}]`, wantErr: ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestDecodeKeepsGoodEntriesBesideBadOnes(t *testing.T) {
	frame := `[{"Ok":{"Id":5}},{"FutureMessage":{"Id":0}},{"Ok":{"Id":"six"}},{"DeviceRemoved":{"Id":0,"DeviceIndex":2}}]`

	msgs, err := Decode([]byte(frame))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMessage)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	require.Len(t, msgs, 2)
	assert.Equal(t, TypeOk, msgs[0].MessageType())
	assert.Equal(t, uint32(5), msgs[0].MessageID())
	removed, ok := msgs[1].(*DeviceRemoved)
	require.True(t, ok, "expected *DeviceRemoved, got %T", msgs[1])
	assert.Equal(t, uint32(2), removed.DeviceIndex)
}
