// Package persistence implements the relay's persistence sidecar
// (§4.2): a single goroutine that owns clients.txt and channels.txt
// exclusively and applies Save/Update/Delete events in the order they
// were enqueued. The on-disk algorithm is grounded directly on the
// original server's database.rs: Save appends a line; Update and
// Delete both read the whole file, split on '\n', drop empty lines,
// locate the record by its first ';'-delimited field, and rewrite the
// file atomically.
package persistence

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Op is the persisted-entity event kind.
type Op int

const (
	OpClientSave Op = iota
	OpClientUpdate
	OpClientDelete
	OpChannelSave
	OpChannelUpdate
	OpChannelDelete
)

// Event is one persistence request. ID identifies the record for
// Update/Delete (the record's first ';'-field); Payload is the full
// serialized line for Save/Update.
type Event struct {
	Op      Op
	ID      string
	Payload string
}

// Sink is the single-producer-many/single-consumer-one channel the
// rest of the relay enqueues events onto. Bounded, so a slow sidecar
// applies backpressure to callers rather than growing without limit.
type Sink struct {
	events      chan Event
	clientsPath string
	channelsPath string
	done        chan struct{}
}

// New starts the sidecar goroutine rooted at dir, creating dir if
// needed, and returns a Sink ready to receive events.
func New(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create %s: %w", dir, err)
	}
	s := &Sink{
		events:       make(chan Event, 256),
		clientsPath:  filepath.Join(dir, "clients.txt"),
		channelsPath: filepath.Join(dir, "channels.txt"),
		done:         make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *Sink) Enqueue(e Event) {
	s.events <- e
}

func (s *Sink) Close() {
	close(s.events)
	<-s.done
}

func (s *Sink) run() {
	defer close(s.done)
	for e := range s.events {
		if err := s.apply(e); err != nil {
			log.Printf("[persistence] event %v failed: %v", e.Op, err)
		}
	}
}

func (s *Sink) apply(e Event) error {
	switch e.Op {
	case OpClientSave:
		return appendLine(s.clientsPath, e.Payload)
	case OpClientUpdate:
		return replaceLine(s.clientsPath, e.ID, e.Payload)
	case OpClientDelete:
		return removeLine(s.clientsPath, e.ID)
	case OpChannelSave:
		return appendLine(s.channelsPath, e.Payload)
	case OpChannelUpdate:
		return replaceLine(s.channelsPath, e.ID, e.Payload)
	case OpChannelDelete:
		return removeLine(s.channelsPath, e.ID)
	}
	return fmt.Errorf("unknown op %v", e.Op)
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// readLines loads path, splits on '\n', and drops every empty element
// (the trailing one left by a final newline as well as any blank line
// in between). Missing files behave as empty.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")
	var out []string
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}

func rewrite(path string, lines []string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func recordID(line string) string {
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		return line[:idx]
	}
	return line
}

func replaceLine(path, id, payload string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	found := false
	for i, l := range lines {
		if recordID(l) == id {
			lines[i] = payload
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, payload)
	}
	return rewrite(path, lines)
}

func removeLine(path, id string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	out := lines[:0]
	for _, l := range lines {
		if recordID(l) != id {
			out = append(out, l)
		}
	}
	return rewrite(path, out)
}

// LoadClients returns the raw persisted client lines, for server
// startup to repopulate in-memory state from a prior run.
func LoadClients(dir string) ([]string, error) {
	return readLines(filepath.Join(dir, "clients.txt"))
}

// LoadChannels returns the raw persisted channel lines.
func LoadChannels(dir string) ([]string, error) {
	return readLines(filepath.Join(dir, "channels.txt"))
}

// LoadOperators reads the server/rsc server_opers.txt credential file:
// semicolon-separated "nick;pass" lines.
func LoadOperators(path string) (map[string]string, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	creds := make(map[string]string, len(lines))
	for _, l := range lines {
		parts := strings.SplitN(l, ";", 2)
		if len(parts) == 2 {
			creds[parts[0]] = parts[1]
		}
	}
	return creds, nil
}
