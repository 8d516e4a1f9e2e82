package llcp

import "encoding/binary"

// NoOffset marks an unused Offset slot of a connection parameter request.
const NoOffset uint16 = 0xFFFF

// ConnectionParams are the fields shared by LL_CONNECTION_PARAM_REQ and
// LL_CONNECTION_PARAM_RSP. Intervals are in units of 1.25 ms, Timeout in
// units of 10 ms.
type ConnectionParams struct {
	IntervalMin             uint16
	IntervalMax             uint16
	Latency                 uint16
	Timeout                 uint16
	PreferredPeriodicity    uint8
	ReferenceConnEventCount uint16
	Offsets                 [6]uint16
}

// NewConnectionParams returns parameters with no preferred anchor offsets.
func NewConnectionParams(intervalMin, intervalMax, latency, timeout uint16) ConnectionParams {
	return ConnectionParams{
		IntervalMin: intervalMin,
		IntervalMax: intervalMax,
		Latency:     latency,
		Timeout:     timeout,
		Offsets:     [6]uint16{NoOffset, NoOffset, NoOffset, NoOffset, NoOffset, NoOffset},
	}
}

const connectionParamsSize = 24

func (c *ConnectionParams) marshal(op Opcode) []byte {
	b := make([]byte, connectionParamsSize)
	b[0] = byte(op)
	binary.LittleEndian.PutUint16(b[1:], c.IntervalMin)
	binary.LittleEndian.PutUint16(b[3:], c.IntervalMax)
	binary.LittleEndian.PutUint16(b[5:], c.Latency)
	binary.LittleEndian.PutUint16(b[7:], c.Timeout)
	b[9] = c.PreferredPeriodicity
	binary.LittleEndian.PutUint16(b[10:], c.ReferenceConnEventCount)
	for i, offset := range c.Offsets {
		binary.LittleEndian.PutUint16(b[12+i*2:], offset)
	}
	return b
}

func (c *ConnectionParams) unmarshal(buf []byte, op Opcode) error {
	if err := header(buf, op, connectionParamsSize); err != nil {
		return err
	}
	c.IntervalMin = binary.LittleEndian.Uint16(buf[1:])
	c.IntervalMax = binary.LittleEndian.Uint16(buf[3:])
	c.Latency = binary.LittleEndian.Uint16(buf[5:])
	c.Timeout = binary.LittleEndian.Uint16(buf[7:])
	c.PreferredPeriodicity = buf[9]
	c.ReferenceConnEventCount = binary.LittleEndian.Uint16(buf[10:])
	for i := range c.Offsets {
		c.Offsets[i] = binary.LittleEndian.Uint16(buf[12+i*2:])
	}
	return nil
}

// ConnectionParamReq starts the Connection Parameters Request procedure.
type ConnectionParamReq struct {
	ConnectionParams
}

func (p *ConnectionParamReq) Opcode() Opcode   { return OpcodeConnectionParamReq }
func (p *ConnectionParamReq) EncodedSize() int { return connectionParamsSize }

func (p *ConnectionParamReq) Marshal() ([]byte, error) {
	return p.marshal(OpcodeConnectionParamReq), nil
}

func (p *ConnectionParamReq) Unmarshal(buf []byte) error {
	return p.unmarshal(buf, OpcodeConnectionParamReq)
}

type ConnectionParamRsp struct {
	ConnectionParams
}

func (p *ConnectionParamRsp) Opcode() Opcode   { return OpcodeConnectionParamRsp }
func (p *ConnectionParamRsp) EncodedSize() int { return connectionParamsSize }

func (p *ConnectionParamRsp) Marshal() ([]byte, error) {
	return p.marshal(OpcodeConnectionParamRsp), nil
}

func (p *ConnectionParamRsp) Unmarshal(buf []byte) error {
	return p.unmarshal(buf, OpcodeConnectionParamRsp)
}
