package llcp

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionParamReqRoundTrip(t *testing.T) {
	in := &ConnectionParamReq{ConnectionParams{
		IntervalMin:             6,
		IntervalMax:             40,
		Latency:                 4,
		Timeout:                 400,
		PreferredPeriodicity:    2,
		ReferenceConnEventCount: 0x1234,
		Offsets:                 [6]uint16{0, 1, 2, NoOffset, NoOffset, 0xBEEF},
	}}
	buf, err := in.Marshal()
	require.NoError(t, err)
	assert.Len(t, buf, in.EncodedSize())
	assert.Equal(t, byte(OpcodeConnectionParamReq), buf[0])

	out, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNewConnectionParams(t *testing.T) {
	p := NewConnectionParams(24, 40, 0, 300)
	assert.Equal(t, uint16(24), p.IntervalMin)
	assert.Equal(t, uint16(40), p.IntervalMax)
	assert.Equal(t, uint16(300), p.Timeout)
	for _, o := range p.Offsets {
		assert.Equal(t, NoOffset, o)
	}
}

func TestRoundTrip(t *testing.T) {
	pdus := []ControlPdu{
		&ConnectionUpdateInd{WinSize: 1, WinOffset: 2, Interval: 3, Latency: 4, Timeout: 5, Instant: 6},
		&ChannelMapInd{ChannelMap: [5]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x1F}, Instant: 100},
		&TerminateInd{ErrorCode: ErrorCodeRemoteUserTerminatedConnection},
		&UnknownRsp{UnknownType: OpcodeEncReq},
		&FeatureReq{FeatureSet: FeatureLEPing | FeatureLEEncryption},
		&FeatureRsp{FeatureSet: FeatureConnectionParametersRequest},
		&VersionInd{VersNr: 0x09, CompID: 0xFFFF, SubVersNr: 0x0001},
		&RejectInd{ErrorCode: ErrorCodeUnspecifiedError},
		&PeripheralFeatureReq{FeatureSet: FeatureLEDataPacketLengthExtension},
		&ConnectionParamRsp{NewConnectionParams(6, 6, 0, 100)},
		&RejectExtInd{RejectOpcode: OpcodeConnectionParamReq, ErrorCode: ErrorCodeUnacceptableConnectionParameters},
		&PingReq{},
		&PingRsp{},
		&LengthReq{DataLength{MaxRxOctets: 251, MaxRxTime: 2120, MaxTxOctets: 27, MaxTxTime: 328}},
		&LengthRsp{DataLength{MaxRxOctets: 27, MaxRxTime: 328, MaxTxOctets: 251, MaxTxTime: 2120}},
		&Other{Op: OpcodeStartEncReq, CtrData: []byte{}},
		&Other{Op: OpcodePhyReq, CtrData: []byte{0x01, 0x01}},
	}
	for _, in := range pdus {
		t.Run(in.Opcode().String(), func(t *testing.T) {
			buf, err := in.Marshal()
			require.NoError(t, err)
			assert.Len(t, buf, in.EncodedSize())
			assert.Equal(t, byte(in.Opcode()), buf[0])

			out, err := Unmarshal(buf)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestUnmarshalErrors(t *testing.T) {
	_, err := Unmarshal(nil)
	assert.ErrorIs(t, err, io.ErrShortBuffer)

	_, err = Unmarshal([]byte{byte(OpcodeUnknownRsp)})
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = Unmarshal([]byte{byte(OpcodeConnectionParamReq), 1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidLength)

	assert.ErrorIs(t, (&VersionInd{}).Unmarshal([]byte{byte(OpcodeFeatureReq), 0, 0, 0, 0, 0}), ErrInvalidOpcode)
}

func TestEveryOpcodeDecodes(t *testing.T) {
	for op := 0; op <= 0xFF; op++ {
		p, err := Unmarshal([]byte{byte(op)})
		require.NotNil(t, p, "opcode %#02x", op)
		assert.Equal(t, Opcode(op), p.Opcode())
		if _, ok := p.(*Other); ok {
			assert.NoError(t, err)
		}
	}
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "LL_CONNECTION_PARAM_REQ", OpcodeConnectionParamReq.String())
	assert.Equal(t, "LL_OPCODE(0xfe)", Opcode(0xFE).String())
}
