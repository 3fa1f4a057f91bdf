package p2p

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// PacketType tags the body of a framed packet.
type PacketType byte

const (
	PacketHello PacketType = iota + 1
	PacketDisconnecting
	PacketPing
	PacketPong
	PacketGetOrders
	PacketOrders
	PacketOrder
	PacketOrderInvalidation
	PacketSwapRequest
	PacketSwapAccepted
	PacketSwapFailed
	PacketSwapComplete
	PacketNodeStateUpdate
)

func (t PacketType) String() string {
	switch t {
	case PacketHello:
		return "Hello"
	case PacketDisconnecting:
		return "Disconnecting"
	case PacketPing:
		return "Ping"
	case PacketPong:
		return "Pong"
	case PacketGetOrders:
		return "GetOrders"
	case PacketOrders:
		return "Orders"
	case PacketOrder:
		return "Order"
	case PacketOrderInvalidation:
		return "OrderInvalidation"
	case PacketSwapRequest:
		return "SwapRequest"
	case PacketSwapAccepted:
		return "SwapAccepted"
	case PacketSwapFailed:
		return "SwapFailed"
	case PacketSwapComplete:
		return "SwapComplete"
	case PacketNodeStateUpdate:
		return "NodeStateUpdate"
	default:
		return fmt.Sprintf("Unknown(%d)", byte(t))
	}
}

// Packet is one frame of the gossip-stream wire protocol: a 4-byte
// big-endian length prefix, a 1-byte type tag, a 1-byte flags field
// (1 when a request id is present), a 16-byte packet id, a 16-byte
// request id (all zero when absent), and a JSON body.
type Packet struct {
	Type      PacketType
	ID        [16]byte
	RequestID [16]byte
	HasReqID  bool
	Body      []byte
}

// NewPacket builds a packet with a freshly generated id and JSON-encodes
// payload as the body.
func NewPacket(t PacketType, payload interface{}) (*Packet, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal packet body: %w", err)
	}
	p := &Packet{Type: t, Body: body}
	id := uuid.New()
	copy(p.ID[:], id[:])
	return p, nil
}

// Reply builds a response packet carrying the request's id as RequestID.
func (p *Packet) Reply(t PacketType, payload interface{}) (*Packet, error) {
	resp, err := NewPacket(t, payload)
	if err != nil {
		return nil, err
	}
	resp.RequestID = p.ID
	resp.HasReqID = true
	return resp, nil
}

// Unmarshal decodes the packet body into v.
func (p *Packet) Unmarshal(v interface{}) error {
	return json.Unmarshal(p.Body, v)
}

const maxPacketSize = 4 * 1024 * 1024 // 4MiB, generous enough for a full Orders snapshot

// writePacket writes the framed packet to w.
func writePacket(w io.Writer, p *Packet) error {
	if len(p.Body) > maxPacketSize {
		return fmt.Errorf("packet body too large: %d > %d", len(p.Body), maxPacketSize)
	}

	flags := byte(0)
	if p.HasReqID {
		flags = 1
	}

	header := make([]byte, 0, 4+1+1+16+16)
	length := uint32(1 + 1 + 16 + 16 + len(p.Body))
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, length)
	header = append(header, lenBuf...)
	header = append(header, byte(p.Type), flags)
	header = append(header, p.ID[:]...)
	header = append(header, p.RequestID[:]...)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write packet header: %w", err)
	}
	if _, err := w.Write(p.Body); err != nil {
		return fmt.Errorf("failed to write packet body: %w", err)
	}
	return nil
}

// readPacket reads one framed packet from r.
func readPacket(r *bufio.Reader) (*Packet, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read packet length: %w", err)
	}
	if length > maxPacketSize || length < 1+1+16+16 {
		return nil, fmt.Errorf("%w: invalid packet length: %d", ErrMalformedPacket, length)
	}

	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("failed to read packet: %w", err)
	}

	p := &Packet{
		Type:     PacketType(rest[0]),
		HasReqID: rest[1] == 1,
	}
	copy(p.ID[:], rest[2:18])
	copy(p.RequestID[:], rest[18:34])
	p.Body = rest[34:]
	return p, nil
}
