// Package admin implements the line-based administrative command
// surface: it translates newline-delimited text commands into calls on
// the Peer Table, Consensus Engine, Lying Policy, and Word Vector.
// Admin performs no validation of its own beyond what internal/validate
// offers — malformed input simply produces an error record, never a
// panic or a state change.
package admin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/omnode/omnode/internal/consensus"
	"github.com/omnode/omnode/internal/peertable"
	"github.com/omnode/omnode/internal/validate"
	"github.com/omnode/omnode/internal/wire"
	"github.com/omnode/omnode/internal/wordvector"
)

// Handler dispatches admin command lines. Not safe for concurrent use —
// owned by the reactor goroutine.
type Handler struct {
	peers     *peertable.Table
	words     *wordvector.Vector
	consensus *consensus.Engine
}

// New builds a Handler.
func New(peers *peertable.Table, words *wordvector.Vector, c *consensus.Engine) *Handler {
	return &Handler{peers: peers, words: words, consensus: c}
}

// Handle processes one command line and returns the encoded response
// record to write back, plus whether the caller should close the stream
// afterward (true only for the `exit` command).
func (h *Handler) Handle(line string) (response []byte, closeAfter bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return h.errorRecord("empty command"), false
	}

	switch fields[0] {
	case "peers":
		return h.handlePeers(), false
	case "current":
		return h.handleCurrent(), false
	case "set":
		return h.handleSet(fields), false
	case "consensus":
		return h.handleConsensus(fields), false
	case "lie":
		return h.handleLie(fields), false
	case "truth":
		return h.handleTruth(), false
	case "exit":
		return h.okRecord(), true
	default:
		return h.errorRecord(fmt.Sprintf("unknown command %q", fields[0])), false
	}
}

func (h *Handler) handlePeers() []byte {
	snapshot := h.peers.Snapshot()
	database := make([]string, 0, len(snapshot))
	for key, name := range snapshot {
		database = append(database, fmt.Sprintf("%s=%s", key, name))
	}
	return h.encode(wire.Envelope{Command: wire.CmdQueryReply, Database: database})
}

func (h *Handler) handleCurrent() []byte {
	return h.encode(wire.Envelope{Command: wire.CmdQueryReply, Database: h.words.Slice()})
}

func (h *Handler) handleSet(fields []string) []byte {
	if len(fields) != 3 {
		return h.errorRecord("usage: set <index> <word>")
	}
	index, err := strconv.Atoi(fields[1])
	if err != nil {
		return h.errorRecord("index must be an integer")
	}
	if err := validate.WordIndex(index); err != nil {
		return h.errorRecord(err.Error())
	}
	h.words.Set(index, fields[2])
	return h.okRecord()
}

func (h *Handler) handleConsensus(fields []string) []byte {
	if len(fields) != 2 {
		return h.errorRecord("usage: consensus <index>")
	}
	index, err := strconv.Atoi(fields[1])
	if err != nil {
		return h.errorRecord("index must be an integer")
	}
	if err := h.consensus.Initiate(index); err != nil {
		return h.errorRecord(err.Error())
	}
	return h.okRecord()
}

func (h *Handler) handleLie(fields []string) []byte {
	probability := 1.0
	if len(fields) == 2 {
		p, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return h.errorRecord("probability must be a number")
		}
		probability = p
	} else if len(fields) > 2 {
		return h.errorRecord("usage: lie [p]")
	}
	if err := validate.Probability(probability); err != nil {
		return h.errorRecord(err.Error())
	}
	h.consensus.Lying().Enable(probability)
	return h.okRecord()
}

func (h *Handler) handleTruth() []byte {
	h.consensus.Lying().Disable()
	return h.okRecord()
}

func (h *Handler) okRecord() []byte {
	return h.encode(wire.Envelope{Command: wire.CmdQueryReply})
}

func (h *Handler) errorRecord(reason string) []byte {
	data, _ := wire.Encode(wire.Envelope{Command: wire.CmdQueryReply, Database: []string{"error: " + reason}})
	return data
}

func (h *Handler) encode(env wire.Envelope) []byte {
	data, err := wire.Encode(env)
	if err != nil {
		return h.errorRecord("internal encode failure")
	}
	return data
}
