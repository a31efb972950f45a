package stepping

import (
	"encoding/binary"

	"stepcore/pkg/pool"
	"stepcore/pkg/serial"
)

// SerialPins drives a physical toolhead over pkg/serial: every Step/SetDir
// call is framed as a small fixed binary command and written straight to
// the port. This is a minimal demonstrator protocol, not original_source's
// full MCU wire format (identify handshake, command dictionaries,
// VLQ-encoded scheduling) — that concerns queueing/scheduling commands one
// layer above the pin-level calls the Engine itself makes, and is out of
// this module's scope; it exists so cmd/stepcore-sim's -device flag has a
// real, non-simulated Pins to drive.
type SerialPins struct {
	port     *serial.Port
	position StepVec4
	dir      [numAxes]bool
}

const (
	serialCmdStep          byte = 0x01
	serialCmdSetDir        byte = 0x02
	serialCmdSyncPosition  byte = 0x03
	serialCmdEmergencyStop byte = 0xFF
)

// NewSerialPins wraps an already-open serial port as a Pins implementation.
func NewSerialPins(port *serial.Port) *SerialPins {
	return &SerialPins{port: port}
}

// SetDir writes one SetDir frame per axis whose direction bit changed:
// [cmd byte][axis byte][dir byte].
func (p *SerialPins) SetDir(changed, dir StepEventFlag) {
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)
	for a := Axis(0); a < numAxes; a++ {
		if changed&dirEventFlag(a) == 0 {
			continue
		}
		on := dir&dirEventFlag(a) != 0
		p.dir[a] = on
		var b byte
		if on {
			b = 1
		}
		buf.Reset()
		buf.WriteByte(serialCmdSetDir)
		buf.WriteByte(byte(a))
		buf.WriteByte(b)
		p.port.Write(buf.Bytes())
	}
}

// Step writes one Step frame for axis: [cmd byte][axis byte].
func (p *SerialPins) Step(axis Axis) {
	buf := pool.GetByteBuffer()
	buf.WriteByte(serialCmdStep)
	buf.WriteByte(byte(axis))
	p.port.Write(buf.Bytes())
	pool.PutByteBuffer(buf)

	if p.dir[axis] {
		p.position[axis]--
	} else {
		p.position[axis]++
	}
}

// SetPosition writes an absolute position sync frame:
// [cmd byte][4 x int32 step counts, little-endian].
func (p *SerialPins) SetPosition(mm, mmPerStep Vec4) {
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)
	buf.WriteByte(serialCmdSyncPosition)

	var raw [4]byte
	for a := Axis(0); a < numAxes; a++ {
		steps := int32(0)
		if mmPerStep[a] != 0 {
			steps = int32(mm[a] / mmPerStep[a])
		}
		p.position[a] = int64(steps)
		binary.LittleEndian.PutUint32(raw[:], uint32(steps))
		buf.Write(raw[:])
	}
	p.port.Write(buf.Bytes())
}

// Position returns the last step-counted position this side believes it
// sent, for diagnostics.
func (p *SerialPins) Position() StepVec4 { return p.position }

// SendEmergencyStop implements safety.MCUCommander: a single-byte frame the
// demonstrator firmware treats as "disable drivers now", independent of
// whatever the Engine's own step stream is doing.
func (p *SerialPins) SendEmergencyStop() error {
	_, err := p.port.Write([]byte{serialCmdEmergencyStop})
	return err
}

// IsConnected implements safety.MCUCommander.
func (p *SerialPins) IsConnected() bool { return p.port != nil }
