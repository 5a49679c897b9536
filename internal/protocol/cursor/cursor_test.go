package cursor

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"

	"github.com/danmuck/raknet/internal/protocol"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	b := New()
	b.WriteUint8(0xAB)
	b.WriteInt8(-3)
	b.WriteBool(true)
	b.WriteUint16(0x1234)
	b.WriteUint16LE(0x1234)
	b.WriteInt16(-1000)
	b.WriteTriad(0x0A0B0C)
	b.WriteTriadLE(0x0A0B0C)
	b.WriteUint32(0xDEADBEEF)
	b.WriteUint32LE(0xDEADBEEF)
	b.WriteInt64(-42)
	b.WriteUint64LE(1 << 40)
	b.WriteFloat32(1.5)
	b.WriteFloat64(-2.25)
	b.WriteString("hello")
	b.WriteStringLE("world")

	r := From(b.Bytes())
	if v, err := r.ReadUint8(); err != nil || v != 0xAB {
		t.Fatalf("uint8 got=%x err=%v", v, err)
	}
	if v, err := r.ReadInt8(); err != nil || v != -3 {
		t.Fatalf("int8 got=%d err=%v", v, err)
	}
	if v, err := r.ReadBool(); err != nil || !v {
		t.Fatalf("bool got=%v err=%v", v, err)
	}
	if v, err := r.ReadUint16(); err != nil || v != 0x1234 {
		t.Fatalf("uint16 got=%x err=%v", v, err)
	}
	if v, err := r.ReadUint16LE(); err != nil || v != 0x1234 {
		t.Fatalf("uint16le got=%x err=%v", v, err)
	}
	if v, err := r.ReadInt16(); err != nil || v != -1000 {
		t.Fatalf("int16 got=%d err=%v", v, err)
	}
	if v, err := r.ReadTriad(); err != nil || v != 0x0A0B0C {
		t.Fatalf("triad got=%x err=%v", v, err)
	}
	if v, err := r.ReadTriadLE(); err != nil || v != 0x0A0B0C {
		t.Fatalf("triadle got=%x err=%v", v, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("uint32 got=%x err=%v", v, err)
	}
	if v, err := r.ReadUint32LE(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("uint32le got=%x err=%v", v, err)
	}
	if v, err := r.ReadInt64(); err != nil || v != -42 {
		t.Fatalf("int64 got=%d err=%v", v, err)
	}
	if v, err := r.ReadUint64LE(); err != nil || v != 1<<40 {
		t.Fatalf("uint64le got=%d err=%v", v, err)
	}
	if v, err := r.ReadFloat32(); err != nil || v != 1.5 {
		t.Fatalf("float32 got=%v err=%v", v, err)
	}
	if v, err := r.ReadFloat64(); err != nil || v != -2.25 {
		t.Fatalf("float64 got=%v err=%v", v, err)
	}
	if v, err := r.ReadString(); err != nil || v != "hello" {
		t.Fatalf("string got=%q err=%v", v, err)
	}
	if v, err := r.ReadStringLE(); err != nil || v != "world" {
		t.Fatalf("stringle got=%q err=%v", v, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected buffer drained, remaining=%d", r.Remaining())
	}
}

func TestTriadByteOrder(t *testing.T) {
	b := New()
	b.WriteTriadLE(0x010203)
	b.WriteTriad(0x010203)
	want := []byte{0x03, 0x02, 0x01, 0x01, 0x02, 0x03}
	if !bytes.Equal(b.Bytes(), want) {
		t.Fatalf("triad bytes got=%x want=%x", b.Bytes(), want)
	}
}

func TestReadPastEndIsTruncated(t *testing.T) {
	r := From([]byte{0x01, 0x02})
	if _, err := r.ReadUint32(); !errors.Is(err, protocol.ErrTruncatedInput) {
		t.Fatalf("expected ErrTruncatedInput, got %v", err)
	}
	if r.Offset() != 0 {
		t.Fatalf("failed read moved offset to %d", r.Offset())
	}
	if v, err := r.ReadUint16(); err != nil || v != 0x0102 {
		t.Fatalf("read after failure got=%x err=%v", v, err)
	}
}

func TestReadStringTruncatedBody(t *testing.T) {
	r := From([]byte{0x00, 0x05, 'a', 'b'})
	if _, err := r.ReadString(); !errors.Is(err, protocol.ErrTruncatedInput) {
		t.Fatalf("expected ErrTruncatedInput, got %v", err)
	}
	if r.Offset() != 0 {
		t.Fatalf("failed string read moved offset to %d", r.Offset())
	}
}

func TestMagic(t *testing.T) {
	b := New()
	b.WriteMagic()
	if err := From(b.Bytes()).ReadMagic(); err != nil {
		t.Fatalf("read magic: %v", err)
	}
	bad := append([]byte(nil), b.Bytes()...)
	bad[3] ^= 0xFF
	if err := From(bad).ReadMagic(); !errors.Is(err, protocol.ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestAddressRoundTrip(t *testing.T) {
	cases := []netip.AddrPort{
		netip.MustParseAddrPort("127.0.0.1:19132"),
		netip.MustParseAddrPort("[2001:db8::1]:19133"),
	}
	for _, addr := range cases {
		b := New()
		b.WriteAddress(addr)
		got, err := From(b.Bytes()).ReadAddress()
		if err != nil {
			t.Fatalf("read address %s: %v", addr, err)
		}
		if got != addr {
			t.Fatalf("address mismatch got=%s want=%s", got, addr)
		}
	}
}

func TestAddressWireLayout(t *testing.T) {
	b := New()
	b.WriteAddress(netip.MustParseAddrPort("127.0.0.1:80"))
	want := []byte{4, ^byte(127), 0xFF, 0xFF, ^byte(1), 0x00, 0x50}
	if !bytes.Equal(b.Bytes(), want) {
		t.Fatalf("ipv4 layout got=%x want=%x", b.Bytes(), want)
	}

	b.Reset()
	b.WriteAddress(netip.MustParseAddrPort("[::1]:80"))
	if b.Len() != 1+16+10+2 {
		t.Fatalf("ipv6 layout length=%d", b.Len())
	}
}

func TestAddressUnknownVersion(t *testing.T) {
	_, err := From([]byte{9, 0, 0, 0, 0, 0, 0}).ReadAddress()
	if !errors.Is(err, protocol.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}
