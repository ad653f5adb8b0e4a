package relay

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// DCCCommand enumerates the DCC sub-commands carried inside a PRIVMSG
// CTCP-style payload or (for this relay) a bare DCC frame, per the
// grammar [":" prefix SP] "DCC" SP subcmd SP param...
type DCCCommand int

const (
	DCCChat DCCCommand = iota
	DCCSend
	DCCAccept
	DCCResume
	DCCMsg
	DCCStop
	DCCClose
	DCCInvalid
)

var dccCommandNames = map[DCCCommand]string{
	DCCChat:   "CHAT",
	DCCSend:   "SEND",
	DCCAccept: "ACCEPT",
	DCCResume: "RESUME",
	DCCMsg:    "MSG",
	DCCStop:   "STOP",
	DCCClose:  "CLOSE",
}

func dccCommandFromString(s string) DCCCommand {
	for k, v := range dccCommandNames {
		if v == s {
			return k
		}
	}
	return DCCInvalid
}

// DCCFrame is the parsed form of a DCC sub-frame.
type DCCFrame struct {
	Prefix     string
	Command    DCCCommand
	Parameters []string
}

// ParseDCCFrame parses a line of the form "[:prefix ]DCC <CMD> <p>...".
// Grounded bit-for-bit on the original DccMessage::deserialize: the
// literal token "DCC" must appear either first or immediately after
// the prefix.
func ParseDCCFrame(line string) (*DCCFrame, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil, &RelayError{Kind: KindDCC, Message: "no parameters"}
	}

	f := &DCCFrame{}
	idx := 0
	if strings.HasPrefix(tokens[0], ":") {
		if len(tokens) < 2 || tokens[1] != "DCC" {
			return nil, &RelayError{Kind: KindDCC, Message: "cannot parse prefix"}
		}
		f.Prefix = strings.TrimPrefix(tokens[0], ":")
		idx = 2
	} else {
		if tokens[0] != "DCC" {
			return nil, &RelayError{Kind: KindDCC, Message: "invalid message"}
		}
		idx = 1
	}

	if idx >= len(tokens) {
		return nil, &RelayError{Kind: KindDCC, Message: "invalid command"}
	}
	f.Command = dccCommandFromString(tokens[idx])
	if f.Command == DCCInvalid {
		return nil, &RelayError{Kind: KindDCC, Message: "invalid command"}
	}
	f.Parameters = tokens[idx+1:]
	return f, nil
}

// Serialize renders a DCC frame back to wire form.
func (f *DCCFrame) Serialize() string {
	var b strings.Builder
	if f.Prefix != "" {
		b.WriteString(":")
		b.WriteString(f.Prefix)
		b.WriteString(" ")
	}
	b.WriteString("DCC ")
	b.WriteString(dccCommandNames[f.Command])
	for _, p := range f.Parameters {
		b.WriteString(" ")
		b.WriteString(p)
	}
	return b.String()
}

// TransferState is the per-session DCC state machine position, held
// independently at each endpoint.
type TransferState int

const (
	TransferIdle TransferState = iota
	TransferPending
	TransferActive
	TransferPaused
	TransferClosed
)

// controlEvent is what a STOP/RESUME frame turns into on the
// per-filename control sink.
type controlEvent struct {
	stop   bool
	resume bool
	offset int64
}

// Transfer tracks one ongoing DCC session, keyed by (peer, filename).
// control is a single-producer/single-consumer channel: the relay
// dispatch goroutine is the producer, the transfer worker goroutine
// owning the file is the sole consumer.
type Transfer struct {
	Peer     string
	Filename string
	Path     string
	Size     int64
	Progress int64
	State    TransferState
	control  chan controlEvent
}

// TransferRegistry is the bookkeeping of in-flight DCC sessions; the
// relay Server holds one and the DCC handlers update it. At most one
// active transfer may exist per (peer, filename).
type TransferRegistry struct {
	mu        sync.Mutex
	transfers map[string]*Transfer
}

func NewTransferRegistry() *TransferRegistry {
	return &TransferRegistry{transfers: make(map[string]*Transfer)}
}

func transferKey(peer, filename string) string { return peer + "\x00" + filename }

// Start registers a new transfer. Returns an error (OngoingTransfer)
// if one is already in flight for the same peer+filename.
func (r *TransferRegistry) Start(peer, filename, path string, size int64) (*Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := transferKey(peer, filename)
	if _, exists := r.transfers[key]; exists {
		return nil, errf(KindDCC, "210", filename, "transfer already in progress")
	}
	t := &Transfer{
		Peer: peer, Filename: filename, Path: path, Size: size,
		State: TransferPending, control: make(chan controlEvent, 4),
	}
	r.transfers[key] = t
	return t, nil
}

// Get returns the ongoing transfer for peer+filename, if any.
func (r *TransferRegistry) Get(peer, filename string) (*Transfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[transferKey(peer, filename)]
	return t, ok
}

// Stop signals STOP on the control sink of an ongoing transfer.
func (r *TransferRegistry) Stop(peer, filename string) error {
	t, ok := r.Get(peer, filename)
	if !ok {
		return errf(KindDCC, "215", filename, "no ongoing transfer")
	}
	t.control <- controlEvent{stop: true}
	return nil
}

// Resume signals RESUME with a byte offset on the control sink.
func (r *TransferRegistry) Resume(peer, filename string, offset int64) error {
	t, ok := r.Get(peer, filename)
	if !ok {
		return errf(KindDCC, "215", filename, "no ongoing transfer")
	}
	t.control <- controlEvent{resume: true, offset: offset}
	return nil
}

// Close removes a transfer from the registry, closing its control
// sink. Safe to call once; a second Close on the same key is a no-op.
func (r *TransferRegistry) Close(peer, filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := transferKey(peer, filename)
	if t, ok := r.transfers[key]; ok {
		close(t.control)
		delete(r.transfers, key)
	}
}

// Events exposes the control channel for the transfer worker to range
// over; only the worker that owns this Transfer should call it.
func (t *Transfer) Events() <-chan controlEvent { return t.control }

// advertisedEndpoint extracts the ip/port a CHAT or SEND frame
// advertises for the receiving peer to dial, used for the
// offline-peer best-effort notification in §9(d).
func (f *DCCFrame) advertisedEndpoint() (ip string, port int, ok bool) {
	switch f.Command {
	case DCCChat:
		if len(f.Parameters) < 3 {
			return "", 0, false
		}
		p, err := strconv.Atoi(f.Parameters[2])
		if err != nil {
			return "", 0, false
		}
		return f.Parameters[1], p, true
	case DCCSend:
		if len(f.Parameters) < 5 {
			return "", 0, false
		}
		p, err := strconv.Atoi(f.Parameters[4])
		if err != nil {
			return "", 0, false
		}
		return f.Parameters[3], p, true
	default:
		return "", 0, false
	}
}

func dccRoutingError(cmd DCCCommand, target string) *RelayError {
	return errf(KindDCC, "213", target, fmt.Sprintf("cannot route DCC %s", dccCommandNames[cmd]))
}
