// Package packet is the bridge to the wire codec shared with the game
// server build: newline-framed packets of space-separated string blocks,
// scrambled byte-wise with a per-direction XOR key.
package packet

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openwcps/wcps-auth/internal/constants"
)

// In is one framed inbound packet. Blocks are addressed by zero-based
// index; the sequence field and the packet id are stripped off.
type In struct {
	ID     uint16
	Blocks []string
}

// Block returns the block at index i, or "" when the packet is shorter.
func (p *In) Block(i int) string {
	if i < 0 || i >= len(p.Blocks) {
		return ""
	}
	return p.Blocks[i]
}

// BlockInt parses the block at index i as a decimal integer.
func (p *In) BlockInt(i int) (int, error) {
	n, err := strconv.Atoi(p.Block(i))
	if err != nil {
		return 0, fmt.Errorf("block %d: %w", i, err)
	}
	return n, nil
}

// Decode unscrambles buf with xorKey and splits it into framed packets.
// A single TCP read may carry zero or more complete frames. Returns an
// error when the buffer does not decode to the wire text format; the
// caller is expected to disconnect on that.
func Decode(buf []byte, xorKey byte) ([]In, error) {
	decoded := make([]byte, len(buf))
	for i, b := range buf {
		c := b ^ xorKey
		if c != '\n' && (c < 0x20 || c > 0x7E) {
			return nil, fmt.Errorf("undecodable byte 0x%02x at offset %d", b, i)
		}
		decoded[i] = c
	}

	var packets []In
	for _, frame := range strings.Split(string(decoded), "\n") {
		if frame == "" {
			continue
		}
		fields := strings.Split(frame, " ")
		if len(fields) < 2 {
			return nil, fmt.Errorf("frame %q: missing packet id", frame)
		}
		id, err := strconv.ParseUint(fields[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("frame %q: bad packet id: %w", frame, err)
		}
		packets = append(packets, In{ID: uint16(id), Blocks: fields[2:]})
	}
	return packets, nil
}

// Out accumulates blocks for one outbound packet.
type Out struct {
	id     uint16
	xorKey byte
	blocks []string
}

// NewOut starts an outbound packet for the given id and send key.
func NewOut(id uint16, xorKey byte) *Out {
	return &Out{id: id, xorKey: xorKey}
}

// Append adds one string block.
func (o *Out) Append(block string) *Out {
	o.blocks = append(o.blocks, block)
	return o
}

// AppendInt adds one decimal integer block.
func (o *Out) AppendInt(n int) *Out {
	return o.Append(strconv.Itoa(n))
}

// Fill appends count copies of the integer value.
func (o *Out) Fill(value, count int) *Out {
	for i := 0; i < count; i++ {
		o.AppendInt(value)
	}
	return o
}

// Build renders the packet to scrambled wire bytes.
func (o *Out) Build() []byte {
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatUint(uint64(o.id), 10))
	for _, b := range o.blocks {
		sb.WriteByte(' ')
		sb.WriteString(b)
	}
	sb.WriteByte('\n')

	out := []byte(sb.String())
	for i := range out {
		out[i] ^= o.xorKey
	}
	return out
}

// Hello builds the connection hello sent immediately after accept.
func Hello(xorKey byte) []byte {
	return NewOut(constants.PacketHello, xorKey).AppendInt(constants.ErrSuccess).Build()
}
