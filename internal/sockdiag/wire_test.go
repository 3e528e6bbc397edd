// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sockdiag

import (
	"encoding/binary"
	"net/netip"
	"testing"
)

func mustAddrPort(t *testing.T, addr string, port uint16) netip.AddrPort {
	t.Helper()
	a, err := netip.ParseAddr(addr)
	if err != nil {
		t.Fatalf("ParseAddr(%q): %v", addr, err)
	}
	return netip.AddrPortFrom(a, port)
}

func TestSockIDPortRoundTrip(t *testing.T) {
	var port uint16 = 54321
	ap := addrPort{port: port}
	id := newSockID(IPPROTO_TCP, ap, ap)

	got := binary.BigEndian.Uint16(id.SPort[:])
	if got != port {
		t.Fatalf("port round trip: got %d, want %d", got, port)
	}
}

func TestAddrPortToWireV4ZeroPadded(t *testing.T) {
	local := mustAddrPort(t, "1.2.3.4", 80)
	ap := addrPortToWire(local)

	if ap.addr16[0] != 1 || ap.addr16[1] != 2 || ap.addr16[2] != 3 || ap.addr16[3] != 4 {
		t.Fatalf("expected v4 octets in first 4 bytes, got %v", ap.addr16[:4])
	}
	for _, b := range ap.addr16[4:] {
		if b != 0 {
			t.Fatalf("expected zero padding beyond byte 4, got %v", ap.addr16)
		}
	}
}

func TestAddrPortToWireV6Identity(t *testing.T) {
	local := mustAddrPort(t, "fe80::1", 443)
	ap := addrPortToWire(local)
	if ap.addr16 != local.Addr().As16() {
		t.Fatalf("expected v6 address preserved byte-for-byte, got %v", ap.addr16)
	}
}

func TestRequestSizeMatchesFieldTable(t *testing.T) {
	// family(1) + protocol(1) + ext(1) + pad(1) + states(4) + sport(2)
	// + dport(2) + src(16) + dst(16) + if(4) + cookie(8) = 56 bytes.
	r := &request{}
	if got, want := r.Len(), 56; got != want {
		t.Fatalf("request size = %d, want %d", got, want)
	}
}

func TestParseMsgRejectsShortPayload(t *testing.T) {
	if _, ok := parseMsg(make([]byte, 4)); ok {
		t.Fatal("expected parseMsg to reject a too-short payload")
	}
}

func TestParseMsgRoundTripsInode(t *testing.T) {
	m := &msg{Family: 2, Inode: 0xdeadbeef, UID: 1000}
	parsed, ok := parseMsg(m.serialize())
	if !ok {
		t.Fatal("expected parseMsg to succeed")
	}
	if parsed.Inode != 0xdeadbeef || parsed.UID != 1000 {
		t.Fatalf("expected inode/uid preserved, got %+v", parsed)
	}
}

func TestMsgSizeMatchesFieldTable(t *testing.T) {
	// family/state/timer/retrans (4) + sockID (48) + expires/rqueue/wqueue/uid/inode (20) = 72.
	if got, want := len((&msg{}).serialize()), 72; got != want {
		t.Fatalf("msg size = %d, want %d", got, want)
	}
}
