package att

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// UUID is an attribute type in ATT byte order (little endian), either 2 or
// 16 bytes long.
type UUID []byte

// baseUUID is the Bluetooth Base UUID that 16 bit UUIDs are aliases into.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// UUID16 returns a SIG assigned 16 bit UUID.
func UUID16(v uint16) UUID {
	u := make(UUID, 2)
	binary.LittleEndian.PutUint16(u, v)
	return u
}

// UUID128 returns the ATT encoding of a 128 bit UUID.
func UUID128(u uuid.UUID) UUID {
	b := make(UUID, 16)
	for i := range u {
		b[15-i] = u[i]
	}
	return b
}

func (u UUID) Valid() bool {
	return len(u) == 2 || len(u) == 16
}

// Full returns u as a 128 bit UUID.
func (u UUID) Full() uuid.UUID {
	var out uuid.UUID
	switch len(u) {
	case 2:
		out = baseUUID
		out[2] = u[1]
		out[3] = u[0]
	case 16:
		for i := range out {
			out[i] = u[15-i]
		}
	}
	return out
}

// Equal compares UUIDs of either length.
func (u UUID) Equal(o UUID) bool {
	if len(u) == len(o) {
		return bytes.Equal(u, o)
	}
	return u.Full() == o.Full()
}

func (u UUID) String() string {
	if len(u) == 2 {
		return fmt.Sprintf("%04x", binary.LittleEndian.Uint16(u))
	}
	return u.Full().String()
}

var (
	PrimaryServiceUUID   = UUID16(0x2800)
	SecondaryServiceUUID = UUID16(0x2801)
	CharacteristicUUID   = UUID16(0x2803)

	GAPServiceUUID  = UUID16(0x1800)
	GATTServiceUUID = UUID16(0x1801)
	DeviceNameUUID  = UUID16(0x2A00)
	AppearanceUUID  = UUID16(0x2A01)
)

// PropertyRead is the read bit of the characteristic properties.
// Vol 3, Part G, Section 3.3.1.1.
const PropertyRead uint8 = 0x02

// Attribute is one entry of the attribute table.
type Attribute struct {
	Handle uint16
	Type   UUID
	Value  []byte
}

func (a *Attribute) isGroup() bool {
	return a.Type.Equal(PrimaryServiceUUID) || a.Type.Equal(SecondaryServiceUUID)
}

// Table is an attribute table ordered by handle.
type Table struct {
	attrs []Attribute
}

// TableBuilder assigns consecutive handles starting at 0x0001.
type TableBuilder struct {
	attrs []Attribute
}

func (b *TableBuilder) next() uint16 {
	return uint16(len(b.attrs) + 1)
}

// Service starts a primary service.
func (b *TableBuilder) Service(typ UUID) *TableBuilder {
	b.attrs = append(b.attrs, Attribute{Handle: b.next(), Type: PrimaryServiceUUID, Value: typ})
	return b
}

// Characteristic adds a declaration and a value attribute for a read only
// characteristic.
func (b *TableBuilder) Characteristic(typ UUID, value []byte) *TableBuilder {
	decl := b.next()
	v := make([]byte, 3, 3+len(typ))
	v[0] = PropertyRead
	binary.LittleEndian.PutUint16(v[1:], decl+1)
	v = append(v, typ...)
	b.attrs = append(b.attrs,
		Attribute{Handle: decl, Type: CharacteristicUUID, Value: v},
		Attribute{Handle: decl + 1, Type: typ, Value: value})
	return b
}

func (b *TableBuilder) Build() *Table {
	return &Table{attrs: b.attrs}
}

// NewGAPTable returns a table holding the mandatory GAP service with the
// device name and appearance characteristics, followed by an empty GATT
// service.
func NewGAPTable(deviceName string, appearance uint16) *Table {
	a := make([]byte, 2)
	binary.LittleEndian.PutUint16(a, appearance)
	b := &TableBuilder{}
	return b.Service(GAPServiceUUID).
		Characteristic(DeviceNameUUID, []byte(deviceName)).
		Characteristic(AppearanceUUID, a).
		Service(GATTServiceUUID).
		Build()
}

func (t *Table) Find(h uint16) (*Attribute, bool) {
	for i := range t.attrs {
		if t.attrs[i].Handle == h {
			return &t.attrs[i], true
		}
	}
	return nil, false
}

// Range returns the attributes with handles in r.
func (t *Table) Range(r HandleRange) []Attribute {
	var out []Attribute
	for _, a := range t.attrs {
		if r.Contains(a.Handle) {
			out = append(out, a)
		}
	}
	return out
}

// groupEnd returns the last handle of the group started at index i.
func (t *Table) groupEnd(i int) uint16 {
	for j := i + 1; j < len(t.attrs); j++ {
		if t.attrs[j].isGroup() {
			return t.attrs[j].Handle - 1
		}
	}
	return 0xFFFF
}
