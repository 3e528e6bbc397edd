// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package sockdiag implements the Kernel Socket-Diag Client: it queries
// the kernel's inet-diag netlink endpoint for the socket owning a given
// five-tuple and returns that socket's inode and uid, which the caller
// resolves upstream to an owning process and executable path.
//
// The wire structs below must match the kernel's on-the-wire layout
// exactly: fixed field widths, no padding beyond what's listed, network
// byte order for ports and addresses. They are never reordered or
// extended; a field added to the kernel's struct needs a new field here
// at the matching offset, not an append.
package sockdiag

import (
	"encoding/binary"
	"unsafe"
)

// SOCK_DIAG_BY_FAMILY is the inet-diag request type (uapi/linux/sock_diag.h).
const SOCK_DIAG_BY_FAMILY = 20

// Protocol numbers as carried in the request's protocol field.
const (
	IPPROTO_TCP     = 6
	IPPROTO_UDP     = 17
	IPPROTO_UDPLITE = 136
)

// stateAll requests sockets in any state.
const stateAll = 0xFFFFFFFF

// nocookie is the sentinel cookie value meaning "don't filter by cookie".
var nocookie = [2]uint32{0xFFFFFFFF, 0xFFFFFFFF}

// sockID is the wire layout of struct inet_diag_sockid: two big-endian
// ports, two 16-byte address slots (v4 addresses occupy only the first
// 4 bytes, the rest zero), an interface index, and a cookie carried as
// two uint32s rather than one uint64 to keep the struct's in-memory
// layout identical to the kernel's.
type sockID struct {
	SPort  [2]byte // network byte order
	DPort  [2]byte // network byte order
	Src    [16]byte
	Dst    [16]byte
	If     uint32
	Cookie [2]uint32
}

func newSockID(proto uint8, local, remote addrPort) sockID {
	var id sockID
	binary.BigEndian.PutUint16(id.SPort[:], local.port)
	binary.BigEndian.PutUint16(id.DPort[:], remote.port)
	copy(id.Src[:], local.addr16[:])
	copy(id.Dst[:], remote.addr16[:])
	id.Cookie = nocookie
	return id
}

// request is the inet_diag_req_v2 payload sent to the kernel, per the
// field table: family, protocol, ext, pad, states, sport, dport, src,
// dst, if, cookie — 56 bytes total, no implicit padding.
type request struct {
	Family   uint8
	Protocol uint8
	Ext      uint8
	Pad      uint8
	States   uint32
	ID       sockID
}

// Serialize renders req as the raw bytes sent on the netlink socket.
// Struct field order above matches declaration order in memory for an
// unpacked struct of uint8/uint32 fields with natural alignment, which
// is what the kernel expects here. Serialize and Len together satisfy
// nl.NetlinkRequestData so *request can be passed straight to
// (*nl.NetlinkRequest).AddData.
func (req *request) Serialize() []byte {
	return (*(*[unsafe.Sizeof(request{})]byte)(unsafe.Pointer(req)))[:]
}

// Len returns the serialized size of req.
func (req *request) Len() int {
	return int(unsafe.Sizeof(request{}))
}

// msg is the inet_diag_msg response header: family/state/timer/retrans,
// the embedded sockID, then expires/rqueue/wqueue/uid/inode.
type msg struct {
	Family  uint8
	State   uint8
	Timer   uint8
	Retrans uint8
	ID      sockID
	Expires uint32
	Rqueue  uint32
	Wqueue  uint32
	UID     uint32
	Inode   uint32
}

// parseMsg reinterprets raw as a msg. raw must be at least the size of
// msg; shorter payloads are a malformed response from the kernel.
func parseMsg(raw []byte) (*msg, bool) {
	if len(raw) < int(unsafe.Sizeof(msg{})) {
		return nil, false
	}
	return (*msg)(unsafe.Pointer(&raw[0])), true
}

// serialize renders m as raw bytes, the inverse of parseMsg. Production
// code never calls this — responses only ever flow kernel-to-userspace
// — but it lets tests build a fixture payload without constructing one
// by hand.
func (m *msg) serialize() []byte {
	return (*(*[unsafe.Sizeof(msg{})]byte)(unsafe.Pointer(m)))[:]
}

// addrPort is the (address, port) pair used to build a sockID; addr16
// is the 16-byte kernel representation (v4 zero-padded in the high
// bytes), computed once upstream so neither newSockID nor the matching
// logic needs to know about netip.
type addrPort struct {
	addr16 [16]byte
	port   uint16
}
