package lifx

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getService 广播报文，source=3e805108
const getServiceHex = "2400" + "0034" + "3e805108" + "000000000000" + "0000" + "000000000000" +
	"00" + "00" + "0000000000000000" + "0200" + "0000"

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    Header
	}{
		{"全零帧头", Header{Size: HeaderSize, Source: "00000000", Target: NoTarget}},
		{"广播发现", Header{Size: HeaderSize, Tagged: true, Addressable: true, ProtocolVersion: ProtocolVersion, Source: "3e805108", Target: NoTarget, Type: TypeGetService}},
		{"需要确认", Header{Size: HeaderSize, Addressable: true, ProtocolVersion: ProtocolVersion, Source: "deadbeef", Target: "d073d5006d72", AckRequired: true, Sequence: 7, Type: TypeSetPower}},
		{"需要应答", Header{Size: HeaderSize, ResRequired: true, Origin: 3, ProtocolVersion: 0x0FFF, Source: "00000001", Target: "ffffffffffff", Sequence: 255, Time: 1<<63 + 5, Type: TypeGetLight}},
		{"site字段", Header{Size: HeaderSize, Source: "0a0b0c0d", Target: "010203040506", Site: "LIFXV2", Origin: 1, Type: 0xFFFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeHeader(tt.h)
			require.NoError(t, err)
			require.Len(t, raw, HeaderSize)
			got, err := DecodeHeader(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.h, got)
		})
	}
}

func TestEncodeHeader_Layout(t *testing.T) {
	p, err := Create("getService", nil, "3e805108", "")
	require.NoError(t, err)
	raw, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, getServiceHex, hex.EncodeToString(raw))
}

func TestEncodeHeader_Invalid(t *testing.T) {
	_, err := EncodeHeader(Header{ProtocolVersion: 0x1000})
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = EncodeHeader(Header{Source: "xyz"})
	assert.ErrorIs(t, err, ErrBadHexString)

	_, err = EncodeHeader(Header{Source: "3e805108", Target: "d073d5006d7"})
	assert.ErrorIs(t, err, ErrBadHexString)

	// 大写与空值解码后无法还原，编码时拒绝
	_, err = EncodeHeader(Header{Source: "3E805108", Target: NoTarget})
	assert.ErrorIs(t, err, ErrBadHexString)
	_, err = EncodeHeader(Header{Source: "3e805108", Target: "D073D5006D72"})
	assert.ErrorIs(t, err, ErrBadHexString)
	_, err = EncodeHeader(Header{Target: NoTarget})
	assert.ErrorIs(t, err, ErrBadHexString)
	_, err = EncodeHeader(Header{Source: "3e805108", Target: NoTarget, Site: "A\x00B"})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCreate_UppercaseRoundTrip(t *testing.T) {
	p, err := Create("getPower", nil, "3E805108", "D073D5006D72")
	require.NoError(t, err)
	assert.Equal(t, "3e805108", p.Source)
	assert.Equal(t, "d073d5006d72", p.Target)

	raw, err := Encode(p)
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, p.Header, got.Header)

	// 空 source/target 编码时回填为全零，解码结果与回填后的报文一致
	p, err = Create("getService", nil, "", "")
	require.NoError(t, err)
	raw, err = Encode(p)
	require.NoError(t, err)
	assert.Equal(t, NoSource, p.Source)
	assert.Equal(t, NoTarget, p.Target)
	got, err = Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, p.Header, got.Header)
}

func TestDecodeHeader_Errors(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 35))
	assert.ErrorIs(t, err, ErrShortPacket)
	var de *DecodeError
	assert.True(t, errors.As(err, &de))

	raw, _ := hex.DecodeString(getServiceHex)
	raw = append(raw, 0x00) // size 字段仍为 36
	_, err = DecodeHeader(raw)
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestDecode_UnknownTypeHeaderOnly(t *testing.T) {
	raw, _ := hex.DecodeString(getServiceHex)
	binary.LittleEndian.PutUint16(raw[32:34], 9999)
	raw = append(raw, 1, 2, 3, 4)
	binary.LittleEndian.PutUint16(raw[0:2], uint16(len(raw)))

	p, err := Decode(raw)
	require.NoError(t, err)
	assert.False(t, p.Known())
	assert.Nil(t, p.Payload)
	assert.Equal(t, uint16(9999), p.Type)
	assert.Equal(t, "3e805108", p.Source)
	assert.Equal(t, "", p.Name())
}

func TestDecode_StateService(t *testing.T) {
	p, err := Create("stateService", &StateService{Service: ServiceUDP, Port: DefaultPort}, "3e805108", "d073d5006d72")
	require.NoError(t, err)
	raw, err := Encode(p)
	require.NoError(t, err)
	require.Len(t, raw, HeaderSize+5)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "stateService", got.Name())
	assert.Equal(t, "d073d5006d72", got.Target)
	svc, ok := got.Payload.(*StateService)
	require.True(t, ok)
	assert.Equal(t, "udp", svc.ServiceName())
	assert.Equal(t, uint32(56700), svc.Port)
}

func TestDecode_BadPayloadLength(t *testing.T) {
	p, _ := Create("stateLabel", &Label{Label: "Kitchen"}, "3e805108", "d073d5006d72")
	raw, err := Encode(p)
	require.NoError(t, err)
	raw = raw[:len(raw)-1]
	binary.LittleEndian.PutUint16(raw[0:2], uint16(len(raw)))

	_, err = Decode(raw)
	assert.ErrorIs(t, err, ErrBadPayload)
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, TypeStateLabel, de.Type)
}

func TestEncode_UnknownType(t *testing.T) {
	_, err := Create("setDisco", nil, "", "")
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = CreateByID(9999, nil, "", "")
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Encode(&Packet{Header: Header{Type: 9999}})
	var ee *EncodeError
	assert.True(t, errors.As(err, &ee))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEncode_PayloadMismatch(t *testing.T) {
	p, err := Create("setPower", &Label{Label: "x"}, "", "")
	require.NoError(t, err)
	_, err = Encode(p)
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestEncode_RangeChecks(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		payload Payload
	}{
		{"电源非法值", "setPower", &SetPower{Level: 100}},
		{"色温过低", "setColor", &SetColor{Color: HSBK{Kelvin: 1000}}},
		{"标签超长", "setLabel", &Label{Label: "0123456789012345678901234567890123"}},
		{"波形越界", "setWaveform", &SetWaveform{Waveform: 9}},
		{"多区颜色为空", "stateMultiZone", &StateMultiZone{}},
		{"echo超长", "echoRequest", &Echo{Payload: make([]byte, 65)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Create(tt.typ, tt.payload, "3e805108", "")
			require.NoError(t, err)
			_, err = Encode(p)
			assert.ErrorIs(t, err, ErrOutOfRange)
		})
	}
}

func TestCreate_Defaults(t *testing.T) {
	p, err := Create("setColor", &SetColor{Color: HSBK{Hue: 1}}, "3e805108", "d073d5006d72")
	require.NoError(t, err)
	assert.Equal(t, uint16(HeaderSize+13), p.Size)
	assert.True(t, p.Addressable)
	assert.False(t, p.Tagged)
	assert.Equal(t, uint16(ProtocolVersion), p.ProtocolVersion)

	// 描述可在编码前修改
	p.Sequence = 42
	raw, err := Encode(p)
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, uint8(42), got.Sequence)
	sc := got.Payload.(*SetColor)
	assert.Equal(t, uint16(DefaultKelvin), sc.Color.Kelvin)

	_, err = Create("getLabel", nil, "3e80510", "")
	assert.ErrorIs(t, err, ErrBadHexString)
}

func TestStateMultiZone_Variable(t *testing.T) {
	colors := []HSBK{{Hue: 1, Kelvin: 3500}, {Hue: 2, Kelvin: 4000}, {Hue: 3, Kelvin: 9000}}
	p, err := Create("stateMultiZone", &StateMultiZone{Count: 16, Index: 8, Colors: colors}, "3e805108", "d073d5006d72")
	require.NoError(t, err)
	raw, err := Encode(p)
	require.NoError(t, err)
	assert.Len(t, raw, HeaderSize+2+3*8)

	got, err := Decode(raw)
	require.NoError(t, err)
	mz := got.Payload.(*StateMultiZone)
	assert.Equal(t, uint8(16), mz.Count)
	assert.Equal(t, colors, mz.Colors)
}

func TestStateLight_Label(t *testing.T) {
	p, _ := Create("stateLight", &StateLight{Color: HSBK{Hue: 65535, Kelvin: 2500}, Power: PowerOn, Label: "Bedroom"}, "3e805108", "d073d5006d72")
	raw, err := Encode(p)
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	sl := got.Payload.(*StateLight)
	assert.Equal(t, "Bedroom", sl.Label)
	assert.Equal(t, PowerOn, sl.Power)
	assert.Equal(t, float64(360), sl.Color.Color().Hue)
}

func TestStateLabel_StripsEmbeddedNUL(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  string
	}{
		{"尾部填充", "Kitchen", "Kitchen"},
		{"中间含NUL", "Kit\x00chen", "Kitchen"},
		{"全部为NUL", "\x00\x00", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Create("stateLabel", &Label{Label: tt.label}, "3e805108", "d073d5006d72")
			require.NoError(t, err)
			raw, err := Encode(p)
			require.NoError(t, err)
			got, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Payload.(*Label).Label)
		})
	}
}

func TestTypeRegistry(t *testing.T) {
	id, ok := LookupType("acknowledgement")
	assert.True(t, ok)
	assert.Equal(t, TypeAcknowledgement, id)
	assert.Equal(t, "stateService", TypeName(TypeStateService))
	assert.Contains(t, TypeNames(), "stateMultiZone")
	assert.Nil(t, NewPayload(TypeGetService))
	assert.IsType(t, &SetPower{}, NewPayload(TypeSetPower))
}
