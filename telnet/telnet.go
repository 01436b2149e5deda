// Package telnet strips Telnet option negotiation out of a byte stream.
//
// A Telnet server embeds commands in the data stream behind the IAC
// ("Interpret As Command") byte:
//
//	┌──────────┬───────────────┬──────────────┐
//	│ IAC 255  │ command byte  │ option byte  │
//	└──────────┴───────────────┴──────────────┘
//
// The decoder never negotiates. Every WILL, WONT, DO and DONT is answered
// with the same refusal, IAC WONT <option>, which is enough to keep the
// remote end from waiting on us. Subnegotiation blocks (IAC SB ... IAC SE)
// and two-byte commands (NOP, GA, ...) are dropped silently. A block with
// no IAC SE after MaxSubnegotiation bytes is abandoned and what follows is
// read as data. IAC IAC is an escaped literal 255 and is delivered as data.
//
// # Chunk Boundaries
//
// Decoder keeps its parse state between calls, so a command split across
// two reads is recognised exactly once:
//
//	dec := telnet.NewDecoder()
//	text, reply := dec.Decode([]byte{'o', 'k', telnet.IAC})
//	// text == "ok", reply == nil
//	text, reply = dec.Decode([]byte{telnet.DO, 1, 'x'})
//	// text == "x", reply == IAC WONT 1
package telnet

// Telnet command bytes (RFC 854).
const (
	SE   byte = 240 // End of subnegotiation
	NOP  byte = 241 // No operation
	GA   byte = 249 // Go ahead
	SB   byte = 250 // Begin subnegotiation
	WILL byte = 251
	WONT byte = 252
	DO   byte = 253
	DONT byte = 254
	IAC  byte = 255 // Interpret as command
)

type state int

const (
	stateData   state = iota // plain text
	stateIAC                 // saw IAC
	stateOption              // saw IAC + WILL/WONT/DO/DONT, option byte next
	stateSub                 // inside IAC SB ... until IAC SE
	stateSubIAC              // saw IAC inside a subnegotiation
)

// MaxSubnegotiation is the longest subnegotiation payload accepted. A block
// that runs past it without IAC SE is abandoned and the stream is read as
// text again.
const MaxSubnegotiation = 256

// Refusal returns the fixed response sent for any negotiation command.
func Refusal(option byte) []byte {
	return []byte{IAC, WONT, option}
}

// Decoder separates text from Telnet commands across successive chunks.
// A Decoder is not safe for concurrent use; each connection owns one.
type Decoder struct {
	state state
	sub   int // bytes consumed inside the current subnegotiation
}

// NewDecoder returns a decoder positioned at plain text.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode consumes one received chunk. It returns the decoded text and the
// bytes that must be written back to the peer (zero or more refusals).
// Neither slice aliases chunk.
func (d *Decoder) Decode(chunk []byte) (text []byte, reply []byte) {
	text = make([]byte, 0, len(chunk))

	for _, b := range chunk {
		switch d.state {
		case stateData:
			if b == IAC {
				d.state = stateIAC
				continue
			}
			text = append(text, b)

		case stateIAC:
			switch {
			case b == IAC:
				// Escaped 255 is regular data.
				text = append(text, IAC)
				d.state = stateData
			case b >= WILL && b <= DONT:
				d.state = stateOption
			case b == SB:
				d.state = stateSub
				d.sub = 0
			default:
				// Two-byte command (NOP, GA, DM, ...), nothing to answer.
				d.state = stateData
			}

		case stateOption:
			reply = append(reply, Refusal(b)...)
			d.state = stateData

		case stateSub:
			d.sub++
			if d.sub > MaxSubnegotiation {
				d.state = stateData
				if b == IAC {
					d.state = stateIAC
				} else {
					text = append(text, b)
				}
				continue
			}
			if b == IAC {
				d.state = stateSubIAC
			}

		case stateSubIAC:
			if b == SE {
				d.state = stateData
			} else {
				// IAC IAC inside a subnegotiation, or a malformed block.
				d.state = stateSub
			}
		}
	}

	return text, reply
}

// Pending reports whether the decoder stopped in the middle of a command.
func (d *Decoder) Pending() bool {
	return d.state != stateData
}

// Reset drops any partial command.
func (d *Decoder) Reset() {
	d.state = stateData
	d.sub = 0
}
