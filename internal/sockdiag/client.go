// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sockdiag

import (
	"net/netip"
	"syscall"
	"time"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	pderrors "github.com/perimeterd/perimeterd/internal/errors"
	"github.com/perimeterd/perimeterd/internal/logging"
	"github.com/perimeterd/perimeterd/internal/metrics"
	"github.com/perimeterd/perimeterd/internal/policy"
)

// flagMatch is NLM_F_MATCH from uapi/linux/netlink.h (0x200). It is
// paired with NLM_F_REQUEST for UDP/UDP-lite queries, whose sockets the
// kernel indexes less precisely than TCP's, so the response stream may
// contain wildcard matches that userspace must filter precisely.
const flagMatch = 0x200

// ErrAttributionNotFound is returned when the diag response, after
// exact five-tuple and nonzero-inode filtering, yields no socket. The
// caller's contract (spec.md §7, AttributionNotFound) is to treat this
// as "unknown executable" and classify normally, not to fail the
// packet.
var ErrAttributionNotFound = pderrors.New(pderrors.KindNotFound, "no matching socket in diag response")

// Result is the information attribution needs from a matched socket.
type Result struct {
	Inode uint32
	UID   uint32
}

// Client issues inet-diag queries over a netlink socket. A Client holds
// no per-query state; callers may share one Client across goroutines,
// though each Query opens and closes its own netlink socket (the
// classifier never re-enters this client per packet — attribution
// results are cached upstream by inode, per spec.md §5).
type Client struct {
	log     *logging.Logger
	metrics *metrics.Metrics
}

// NewClient returns a ready-to-use Client.
func NewClient() *Client {
	return &Client{log: logging.WithComponent("sockdiag")}
}

// SetMetrics attaches a Metrics instance query latency and failures are
// reported to. Without one, Query still works, just unobserved.
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// Query resolves the socket owning (local, remote) for proto. Both
// addresses must share an address family; a mismatch is an
// input-validation error, not an IoError. The query has no built-in
// timeout; callers that want one should run Query in a goroutine and
// select against a timer, surfacing an IoError themselves on timeout
// per spec.md §5's cancellation note.
func (c *Client) Query(proto policy.Protocol, local, remote netip.AddrPort) (Result, error) {
	start := time.Now()
	res, err := c.query(proto, local, remote)
	if c.metrics != nil {
		c.metrics.SockDiagLatency.Observe(time.Since(start).Seconds())
		if err != nil && !pderrors.Is(err, ErrAttributionNotFound) {
			c.metrics.ObserveSockDiagError(pderrors.GetKind(err).String())
		}
	}
	return res, err
}

func (c *Client) query(proto policy.Protocol, local, remote netip.AddrPort) (Result, error) {
	if local.Addr().Is4() != remote.Addr().Is4() {
		return Result{}, pderrors.New(pderrors.KindValidation, "local and remote addresses must share an address family")
	}

	family := uint8(unix.AF_INET)
	if !local.Addr().Is4() {
		family = unix.AF_INET6
	}

	wireProto, err := wireProtocol(proto)
	if err != nil {
		return Result{}, err
	}

	req := buildRequest(family, wireProto, local, remote)

	sock, err := nl.Subscribe(syscall.NETLINK_INET_DIAG)
	if err != nil {
		return Result{}, pderrors.Wrap(err, pderrors.KindUnavailable, "open inet-diag netlink socket")
	}
	defer sock.Close()

	if err := sock.Send(req); err != nil {
		return Result{}, pderrors.Wrap(err, pderrors.KindUnavailable, "send inet-diag request")
	}

	pid, err := sock.GetPid()
	if err != nil {
		return Result{}, pderrors.Wrap(err, pderrors.KindUnavailable, "get netlink pid")
	}

	wantSrc := addrPortToWire(local)
	wantDst := addrPortToWire(remote)

	var last *msg
	for {
		msgs, err := sock.Receive()
		if err != nil {
			return Result{}, pderrors.Wrap(err, pderrors.KindUnavailable, "receive inet-diag response")
		}
		done := false
		for i := range msgs {
			m := &msgs[i]
			if m.Header.Seq != req.Seq || m.Header.Pid != pid {
				continue
			}
			if m.Header.Type == unix.NLMSG_DONE {
				done = true
				break
			}
			if m.Header.Type == unix.NLMSG_ERROR {
				return Result{}, pderrors.New(pderrors.KindUnavailable, "inet-diag returned NLMSG_ERROR")
			}
			parsed, ok := parseMsg(m.Data)
			if !ok {
				continue
			}
			if matchesExactly(parsed, wantSrc, wantDst) && parsed.Inode != 0 {
				last = parsed
			}
			if m.Header.Flags&unix.NLM_F_MULTI == 0 {
				done = true
			}
		}
		if done {
			break
		}
	}

	if last == nil {
		return Result{}, ErrAttributionNotFound
	}
	return Result{Inode: last.Inode, UID: last.UID}, nil
}

func wireProtocol(p policy.Protocol) (uint8, error) {
	switch p {
	case policy.ProtocolTCP:
		return IPPROTO_TCP, nil
	case policy.ProtocolUDP:
		return IPPROTO_UDP, nil
	case policy.ProtocolUDPLite:
		return IPPROTO_UDPLITE, nil
	default:
		return 0, pderrors.New(pderrors.KindValidation, "sockdiag query requires a concrete protocol, not any")
	}
}

func addrPortToWire(ap netip.AddrPort) addrPort {
	addr := ap.Addr()
	var a16 [16]byte
	if addr.Is4() {
		v4 := addr.As4()
		copy(a16[:4], v4[:])
	} else {
		a16 = addr.As16()
	}
	return addrPort{addr16: a16, port: ap.Port()}
}

func buildRequest(family, proto uint8, local, remote netip.AddrPort) *nl.NetlinkRequest {
	flags := uint16(unix.NLM_F_REQUEST)
	if proto == IPPROTO_UDP || proto == IPPROTO_UDPLITE {
		flags |= flagMatch
	}

	nlReq := nl.NewNetlinkRequest(SOCK_DIAG_BY_FAMILY, int(flags))
	r := &request{
		Family:   family,
		Protocol: proto,
		Ext:      0,
		Pad:      0,
		States:   stateAll,
		ID:       newSockID(proto, addrPortToWire(local), addrPortToWire(remote)),
	}
	nlReq.AddData(r)
	return nlReq
}

func matchesExactly(m *msg, wantSrc, wantDst addrPort) bool {
	return m.ID.SPort == wantSrc.portBytes() &&
		m.ID.DPort == wantDst.portBytes() &&
		m.ID.Src == wantSrc.addr16 &&
		m.ID.Dst == wantDst.addr16
}

func (ap addrPort) portBytes() [2]byte {
	var b [2]byte
	b[0] = byte(ap.port >> 8)
	b[1] = byte(ap.port)
	return b
}

// queryTimeout is the default bound a caller should apply around Query
// when calling it from a worker that must not hang indefinitely on a
// wedged netlink socket. It is advisory; Query itself never times out.
const queryTimeout = 2 * time.Second
