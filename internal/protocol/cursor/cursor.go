// Package cursor reads and writes the primitive wire types used by every
// packet: fixed-width integers in both byte orders, 24-bit triads, floats,
// length-prefixed strings, the offline magic marker and socket addresses.
//
// Writes never fail; the buffer grows. Reads past the end fail with
// protocol.ErrTruncatedInput and leave the read offset untouched.
package cursor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"net/netip"

	"github.com/danmuck/raknet/internal/protocol"
)

const (
	addressVersion4 = 4
	addressVersion6 = 6
	// Reserved bytes between an IPv6 address and its port.
	addressReserved6 = 10
)

// Buffer is a growable byte buffer with an independent read offset.
type Buffer struct {
	data []byte
	off  int
}

// New returns an empty buffer for writing.
func New() *Buffer {
	return &Buffer{data: make([]byte, 0, 64)}
}

// From wraps b for reading. b is not copied.
func From(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Bytes returns every byte written so far.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len is the total number of bytes held.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Remaining is the number of unread bytes.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.off
}

// Offset is the current read position.
func (b *Buffer) Offset() int {
	return b.off
}

func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}

func (b *Buffer) Write(p []byte) {
	b.data = append(b.data, p...)
}

// Pad appends n zero bytes.
func (b *Buffer) Pad(n int) {
	for i := 0; i < n; i++ {
		b.data = append(b.data, 0)
	}
}

func (b *Buffer) WriteUint8(v uint8) {
	b.data = append(b.data, v)
}

func (b *Buffer) WriteInt8(v int8) {
	b.WriteUint8(uint8(v))
}

func (b *Buffer) WriteBool(v bool) {
	if v {
		b.WriteUint8(1)
		return
	}
	b.WriteUint8(0)
}

func (b *Buffer) WriteUint16(v uint16) {
	b.data = binary.BigEndian.AppendUint16(b.data, v)
}

func (b *Buffer) WriteUint16LE(v uint16) {
	b.data = binary.LittleEndian.AppendUint16(b.data, v)
}

func (b *Buffer) WriteInt16(v int16) {
	b.WriteUint16(uint16(v))
}

func (b *Buffer) WriteInt16LE(v int16) {
	b.WriteUint16LE(uint16(v))
}

// WriteTriad writes the low 24 bits of v big-endian.
func (b *Buffer) WriteTriad(v uint32) {
	b.data = append(b.data, byte(v>>16), byte(v>>8), byte(v))
}

// WriteTriadLE writes the low 24 bits of v little-endian.
func (b *Buffer) WriteTriadLE(v uint32) {
	b.data = append(b.data, byte(v), byte(v>>8), byte(v>>16))
}

func (b *Buffer) WriteUint32(v uint32) {
	b.data = binary.BigEndian.AppendUint32(b.data, v)
}

func (b *Buffer) WriteUint32LE(v uint32) {
	b.data = binary.LittleEndian.AppendUint32(b.data, v)
}

func (b *Buffer) WriteInt32(v int32) {
	b.WriteUint32(uint32(v))
}

func (b *Buffer) WriteInt32LE(v int32) {
	b.WriteUint32LE(uint32(v))
}

func (b *Buffer) WriteUint64(v uint64) {
	b.data = binary.BigEndian.AppendUint64(b.data, v)
}

func (b *Buffer) WriteUint64LE(v uint64) {
	b.data = binary.LittleEndian.AppendUint64(b.data, v)
}

func (b *Buffer) WriteInt64(v int64) {
	b.WriteUint64(uint64(v))
}

func (b *Buffer) WriteInt64LE(v int64) {
	b.WriteUint64LE(uint64(v))
}

func (b *Buffer) WriteFloat32(v float32) {
	b.WriteUint32(math.Float32bits(v))
}

func (b *Buffer) WriteFloat64(v float64) {
	b.WriteUint64(math.Float64bits(v))
}

// WriteString writes a uint16 big-endian byte length followed by UTF-8 bytes.
// Strings longer than 65535 bytes are truncated to fit the prefix.
func (b *Buffer) WriteString(s string) {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	b.WriteUint16(uint16(len(s)))
	b.data = append(b.data, s...)
}

// WriteStringLE is WriteString with a little-endian length prefix.
func (b *Buffer) WriteStringLE(s string) {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	b.WriteUint16LE(uint16(len(s)))
	b.data = append(b.data, s...)
}

func (b *Buffer) WriteMagic() {
	b.data = append(b.data, protocol.Magic[:]...)
}

// WriteAddress encodes addr as a version byte, the complemented address
// octets, (IPv6 only) ten reserved zero bytes, then the port big-endian.
func (b *Buffer) WriteAddress(addr netip.AddrPort) {
	ip := addr.Addr().Unmap()
	if ip.Is4() {
		b.WriteUint8(addressVersion4)
		for _, octet := range ip.As4() {
			b.WriteUint8(^octet)
		}
		b.WriteUint16(addr.Port())
		return
	}
	b.WriteUint8(addressVersion6)
	for _, octet := range ip.As16() {
		b.WriteUint8(^octet)
	}
	b.Pad(addressReserved6)
	b.WriteUint16(addr.Port())
}

func (b *Buffer) take(n int) ([]byte, error) {
	if n < 0 || b.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", protocol.ErrTruncatedInput, n, b.Remaining())
	}
	out := b.data[b.off : b.off+n]
	b.off += n
	return out, nil
}

// Read returns a copy of the next n bytes.
func (b *Buffer) Read(n int) ([]byte, error) {
	raw, err := b.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, raw)
	return out, nil
}

// Skip advances past n bytes.
func (b *Buffer) Skip(n int) error {
	_, err := b.take(n)
	return err
}

func (b *Buffer) ReadUint8() (uint8, error) {
	raw, err := b.take(1)
	if err != nil {
		return 0, err
	}
	return raw[0], nil
}

func (b *Buffer) ReadInt8() (int8, error) {
	v, err := b.ReadUint8()
	return int8(v), err
}

// ReadBool treats any non-zero byte as true.
func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.ReadUint8()
	return v != 0, err
}

func (b *Buffer) ReadUint16() (uint16, error) {
	raw, err := b.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(raw), nil
}

func (b *Buffer) ReadUint16LE() (uint16, error) {
	raw, err := b.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(raw), nil
}

func (b *Buffer) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}

func (b *Buffer) ReadInt16LE() (int16, error) {
	v, err := b.ReadUint16LE()
	return int16(v), err
}

func (b *Buffer) ReadTriad() (uint32, error) {
	raw, err := b.take(3)
	if err != nil {
		return 0, err
	}
	return uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2]), nil
}

func (b *Buffer) ReadTriadLE() (uint32, error) {
	raw, err := b.take(3)
	if err != nil {
		return 0, err
	}
	return uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16, nil
}

func (b *Buffer) ReadUint32() (uint32, error) {
	raw, err := b.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(raw), nil
}

func (b *Buffer) ReadUint32LE() (uint32, error) {
	raw, err := b.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

func (b *Buffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

func (b *Buffer) ReadInt32LE() (int32, error) {
	v, err := b.ReadUint32LE()
	return int32(v), err
}

func (b *Buffer) ReadUint64() (uint64, error) {
	raw, err := b.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (b *Buffer) ReadUint64LE() (uint64, error) {
	raw, err := b.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw), nil
}

func (b *Buffer) ReadInt64() (int64, error) {
	v, err := b.ReadUint64()
	return int64(v), err
}

func (b *Buffer) ReadInt64LE() (int64, error) {
	v, err := b.ReadUint64LE()
	return int64(v), err
}

func (b *Buffer) ReadFloat32() (float32, error) {
	v, err := b.ReadUint32()
	return math.Float32frombits(v), err
}

func (b *Buffer) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	return math.Float64frombits(v), err
}

func (b *Buffer) ReadString() (string, error) {
	n, err := b.ReadUint16()
	if err != nil {
		return "", err
	}
	raw, err := b.take(int(n))
	if err != nil {
		b.off -= 2
		return "", err
	}
	return string(raw), nil
}

func (b *Buffer) ReadStringLE() (string, error) {
	n, err := b.ReadUint16LE()
	if err != nil {
		return "", err
	}
	raw, err := b.take(int(n))
	if err != nil {
		b.off -= 2
		return "", err
	}
	return string(raw), nil
}

// ReadMagic consumes the magic marker and fails with protocol.ErrInvalidMagic
// if it does not match.
func (b *Buffer) ReadMagic() error {
	raw, err := b.take(len(protocol.Magic))
	if err != nil {
		return err
	}
	if !bytes.Equal(raw, protocol.Magic[:]) {
		return protocol.ErrInvalidMagic
	}
	return nil
}

func (b *Buffer) ReadAddress() (netip.AddrPort, error) {
	start := b.off
	version, err := b.ReadUint8()
	if err != nil {
		return netip.AddrPort{}, err
	}
	switch version {
	case addressVersion4:
		raw, err := b.take(4)
		if err != nil {
			b.off = start
			return netip.AddrPort{}, err
		}
		var octets [4]byte
		for i := range octets {
			octets[i] = ^raw[i]
		}
		port, err := b.ReadUint16()
		if err != nil {
			b.off = start
			return netip.AddrPort{}, err
		}
		return netip.AddrPortFrom(netip.AddrFrom4(octets), port), nil
	case addressVersion6:
		if b.Remaining() < 16+addressReserved6+2 {
			b.off = start
			return netip.AddrPort{}, fmt.Errorf("%w: short ipv6 address", protocol.ErrTruncatedInput)
		}
		raw, _ := b.take(16)
		var octets [16]byte
		for i := range octets {
			octets[i] = ^raw[i]
		}
		_ = b.Skip(addressReserved6)
		port, _ := b.ReadUint16()
		return netip.AddrPortFrom(netip.AddrFrom16(octets), port), nil
	default:
		b.off = start
		return netip.AddrPort{}, fmt.Errorf("%w: version %d", protocol.ErrInvalidAddress, version)
	}
}
