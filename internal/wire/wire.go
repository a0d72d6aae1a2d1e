// Package wire implements the self-describing textual wire codec shared
// by peer datagrams and admin responses. Every message is a JSON object
// keyed by a "command" tag; decoders tolerate unknown additional fields
// so the wire format stays forward compatible.
package wire

import (
	"encoding/json"
	"fmt"
)

// Command tags recognized on the wire.
const (
	CmdGossip        = "GOSSIP"
	CmdGossipReply   = "GOSSIP_REPLY"
	CmdConsensus     = "CONSENSUS"
	CmdConsensusAck  = "CONSENSUS-REPLY"
	CmdQuery         = "QUERY"
	CmdQueryReply    = "QUERY-REPLY"
)

// MaxPayloadSize is the size of the reactor's datagram read buffer, and
// the largest payload it guarantees to decode. Longer datagrams are
// truncated on read; undecodable datagrams are simply dropped. Outbound
// sends are not checked against this size.
const MaxPayloadSize = 1024

// Envelope is the superset of fields any recognized message may carry.
// Decoding into one struct (rather than a tagged union of types) keeps the
// decoder permissive about unknown/absent fields by construction — every
// field is optional from encoding/json's point of view, and the Command
// tag is what a handler switches on.
type Envelope struct {
	Command string `json:"command"`

	// GOSSIP / GOSSIP_REPLY / CONSENSUS
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	Name string `json:"name,omitempty"`

	// GOSSIP
	MessageID string `json:"messageID,omitempty"`

	// CONSENSUS
	Index int      `json:"index,omitempty"`
	Value string   `json:"value,omitempty"`
	OM    int      `json:"OM,omitempty"`
	Peers []string `json:"peers,omitempty"`
	Due   int64    `json:"due,omitempty"`

	// CONSENSUS-REPLY
	ReplyTo string `json:"reply-to,omitempty"`

	// QUERY-REPLY
	Database []string `json:"database,omitempty"`
}

// ErrDecode wraps any failure to decode a datagram: malformed JSON, a
// missing required field for the tagged command, or a type mismatch.
type ErrDecode struct {
	Reason string
}

func (e *ErrDecode) Error() string { return "wire: decode error: " + e.Reason }

// ErrUnknownCommand is returned by Decode when the command tag itself
// is not recognized; callers log and drop it rather than treating it as
// fatal.
type ErrUnknownCommand struct {
	Command string
}

func (e *ErrUnknownCommand) Error() string {
	return fmt.Sprintf("wire: unknown command %q", e.Command)
}

// Encode serializes an Envelope to its wire form: a single JSON object,
// no trailing newline (the caller appends one for stream transports).
func Encode(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return data, nil
}

// Decode parses a datagram or admin-stream line into an Envelope.
// Invalid UTF-8 in string fields is replaced rather than raising, which
// encoding/json already does for us: json.Unmarshal replaces invalid
// UTF-8 sequences with the Unicode replacement character instead of
// failing.
//
// Decode does not reject a recognized command missing one of its
// required fields outright — required-field presence is command-
// specific and checked by the caller that knows which fields that
// command needs (see RequireFields). The codec's job is structural
// decoding; required-field enforcement is part of each command's
// handler contract.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, &ErrDecode{Reason: err.Error()}
	}
	if e.Command == "" {
		return Envelope{}, &ErrDecode{Reason: "missing command field"}
	}
	if !knownCommand(e.Command) {
		return Envelope{}, &ErrUnknownCommand{Command: e.Command}
	}
	return e, nil
}

func knownCommand(cmd string) bool {
	switch cmd {
	case CmdGossip, CmdGossipReply, CmdConsensus, CmdConsensusAck, CmdQuery, CmdQueryReply:
		return true
	default:
		return false
	}
}

// RequireFields checks that an Envelope carries the fields each
// Command requires. Used by handlers at the dispatch boundary, after
// Decode has already confirmed the command tag is known.
func RequireFields(e Envelope) error {
	switch e.Command {
	case CmdGossip:
		if e.Host == "" || e.Port == 0 || e.MessageID == "" {
			return &ErrDecode{Reason: "GOSSIP requires host, port, messageID"}
		}
	case CmdGossipReply:
		if e.Host == "" || e.Port == 0 {
			return &ErrDecode{Reason: "GOSSIP_REPLY requires host, port"}
		}
	case CmdConsensus:
		if e.Host == "" || e.Port == 0 || e.MessageID == "" {
			return &ErrDecode{Reason: "CONSENSUS requires host, port, messageID"}
		}
	case CmdConsensusAck:
		if e.ReplyTo == "" {
			return &ErrDecode{Reason: "CONSENSUS-REPLY requires reply-to"}
		}
	case CmdQuery:
		if e.Host == "" || e.Port == 0 {
			return &ErrDecode{Reason: "QUERY requires host, port"}
		}
	case CmdQueryReply:
		// database may legitimately be empty (all-empty word vector)
	}
	return nil
}
