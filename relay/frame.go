package relay

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// EnvelopeSize is the fixed wire size of a frame: every frame is
// padded with NUL bytes to this length before it is written, and a
// reader always consumes exactly this many bytes per frame.
const EnvelopeSize = 510

// Frame is a parsed protocol line: an optional prefix, a command, and
// its parameters. The last parameter may contain spaces if it was
// introduced with a leading ':' on the wire (the "trailing" parameter).
type Frame struct {
	Prefix  string
	Command string
	Params  []string
}

// ParseFrame parses a single line (without the trailing CRLF or NUL
// padding) into a Frame. Returns an error for structurally invalid
// input rather than a nil frame: an empty message, a prefix with no
// command, or an empty command. The command word is not checked
// against a command table here; the dispatcher answers unknown
// commands with ERR_UNKNOWNCOMMAND.
func ParseFrame(line string) (*Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, &RelayError{Kind: KindWire, Message: "empty message"}
	}

	f := &Frame{Params: make([]string, 0, 4)}

	if line[0] == ':' {
		parts := strings.SplitN(line[1:], " ", 2)
		if len(parts) < 2 {
			return nil, &RelayError{Kind: KindWire, Message: "missing command after prefix"}
		}
		f.Prefix = parts[0]
		line = parts[1]
	}

	parts := strings.SplitN(line, " ", 2)
	if parts[0] == "" {
		return nil, &RelayError{Kind: KindWire, Message: "empty command"}
	}
	f.Command = strings.ToUpper(parts[0])

	if len(parts) > 1 {
		rest := parts[1]
		for rest != "" {
			if rest[0] == ':' {
				f.Params = append(f.Params, rest[1:])
				break
			}
			next := strings.SplitN(rest, " ", 2)
			f.Params = append(f.Params, next[0])
			if len(next) > 1 {
				rest = next[1]
			} else {
				break
			}
		}
	}

	return f, nil
}

// String reconstructs the wire form of the frame, without CRLF or
// padding. The final parameter gets a leading ':' if it contains a
// space, starts with ':' or is empty, matching how ParseFrame would
// read it back.
func (f *Frame) String() string {
	var b strings.Builder
	if f.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(f.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(f.Command)
	for i, p := range f.Params {
		b.WriteByte(' ')
		if i == len(f.Params)-1 && (strings.Contains(p, " ") || strings.HasPrefix(p, ":") || p == "") {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

// Last returns the final parameter, or "" if there are none. Handlers
// use this for the conventional trailing free-text parameter.
func (f *Frame) Last() string {
	if len(f.Params) == 0 {
		return ""
	}
	return f.Params[len(f.Params)-1]
}

// WriteEnvelope writes a frame to w as a fixed EnvelopeSize-byte
// NUL-padded block. Lines longer than the envelope are truncated to
// fit, mirroring the spec's fixed-buffer socket framing.
func WriteEnvelope(w io.Writer, f *Frame) error {
	return WriteEnvelopeLine(w, f.String())
}

// WriteEnvelopeLine pads an already-serialized line (with an appended
// CRLF) into a fixed EnvelopeSize-byte NUL-padded block and writes it.
// Lines longer than the envelope are truncated to fit.
func WriteEnvelopeLine(w io.Writer, line string) error {
	buf := make([]byte, EnvelopeSize)
	copy(buf, line+"\r\n")
	_, err := w.Write(buf)
	return err
}

// ReadEnvelope reads exactly EnvelopeSize bytes from r and parses the
// NUL-terminated prefix of that block as a Frame.
func ReadEnvelope(r *bufio.Reader) (*Frame, error) {
	buf := make([]byte, EnvelopeSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	end := 0
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return ParseFrame(string(buf[:end]))
}

// ParseHostmask splits "nick!user@host" into its parts. Missing
// components are returned empty.
func ParseHostmask(hostmask string) (nick, user, host string) {
	nickRest := strings.SplitN(hostmask, "!", 2)
	if len(nickRest) < 2 {
		return hostmask, "", ""
	}
	nick = nickRest[0]
	userHost := strings.SplitN(nickRest[1], "@", 2)
	if len(userHost) < 2 {
		return nick, nickRest[1], ""
	}
	return nick, userHost[0], userHost[1]
}

// FormatHostmask joins nick/user/host into "nick!user@host".
func FormatHostmask(nick, user, host string) string {
	return fmt.Sprintf("%s!%s@%s", nick, user, host)
}
