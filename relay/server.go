package relay

import (
	"encoding/base64"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/chatrelay/relay/metrics"
	"github.com/chatrelay/relay/persistence"
	"github.com/chatrelay/relay/relay/config"
)

// Server is the process-wide object gluing session state, federation,
// persistence, and metrics together (§3). One Server owns one listening
// socket and, optionally, one parent federation link.
type Server struct {
	name        string
	networkName string
	desc        string

	cfg *config.Config

	session     *Session
	network     *Network
	federation  *Federation
	metrics     *metrics.Metrics
	persist     *PersistenceSink
	transfers   *TransferRegistry

	operMu sync.RWMutex
	opers  map[string]string // username -> password, stored and compared in plaintext (per §6's file format)

	listener net.Listener
}

// NewServer wires up a fresh Server from its ambient config. name is
// this server's identity on the federation tree (the CLI's <name>
// positional argument).
func NewServer(name string, cfg *config.Config) (*Server, error) {
	persist, err := persistence.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("server: persistence: %w", err)
	}

	s := &Server{
		name:        name,
		networkName: cfg.NetworkName,
		desc:        "chatrelay server",
		cfg:         cfg,
		metrics:     metrics.New(),
		persist:     persist,
		transfers:   NewTransferRegistry(),
		opers:       make(map[string]string),
	}
	s.session = NewSession(persist)
	s.network = NewNetwork(name)
	s.federation = NewFederation(s, s.network, s.session, cfg.LinkSecret)

	if opers, err := persistence.LoadOperators(cfg.OperatorsFile); err == nil {
		s.opers = opers
	} else {
		log.Printf("[server] no operator credentials loaded from %s: %v", cfg.OperatorsFile, err)
	}

	s.restoreState()
	return s, nil
}

func (s *Server) Name() string             { return s.name }
func (s *Server) NetworkName() string      { return s.networkName }
func (s *Server) Desc() string             { return s.desc }
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// CheckOperCredentials validates OPER username/password against the
// file-based credential table loaded at startup (§4.5, §6). Passwords
// are stored and compared in plaintext in that file, matching the
// original's server_opers.txt format; this is intentionally a simple
// admission gate, not a cryptographic identity system (Non-goals).
func (s *Server) CheckOperCredentials(username, password string) bool {
	s.operMu.RLock()
	defer s.operMu.RUnlock()
	stored, ok := s.opers[username]
	return ok && stored == password
}

// restoreState repopulates in-memory clients and channels from the
// persisted flat files, so a restarted server doesn't forget the
// channel roster and registered nicknames from its previous run.
func (s *Server) restoreState() {
	if lines, err := persistence.LoadChannels(s.cfg.DataDir); err == nil {
		for _, line := range lines {
			ch := channelFromPersistLine(line)
			if ch != nil {
				s.session.channels[ch.name] = ch
			}
		}
	}
	if lines, err := persistence.LoadClients(s.cfg.DataDir); err == nil {
		for _, line := range lines {
			cl := clientFromPersistLine(s, line)
			if cl != nil {
				s.session.clients[cl.nickname] = cl
			}
		}
	}
}

// channelFromPersistLine parses one channels.txt record back into a
// Channel, mirroring the field order PersistLine writes.
func channelFromPersistLine(line string) *Channel {
	fields := strings.Split(line, ";")
	if len(fields) < 9 {
		return nil
	}
	ch := NewChannel(fields[0])
	ch.SetTopic(fields[1])
	for _, u := range splitNonEmpty(fields[2], ",") {
		ch.users[u] = true
	}
	ch.key = fields[3]
	for _, b := range splitNonEmpty(fields[4], ",") {
		ch.SetBan(b, true)
	}
	for _, o := range splitNonEmpty(fields[5], ",") {
		ch.SetOperator(o, true)
	}
	for _, m := range splitNonEmpty(fields[6], ",") {
		if len(m) == 1 {
			ch.modes[rune(m[0])] = true
		}
	}
	if n, err := strconv.Atoi(fields[7]); err == nil && n > 0 {
		ch.limit = n
	}
	for _, v := range splitNonEmpty(fields[8], ",") {
		ch.SetVoice(v, true)
	}
	return ch
}

// clientFromPersistLine restores a disconnected client record so a
// later reconnect under the same nickname can find it and attempt a
// password re-bind (§9(b)).
func clientFromPersistLine(s *Server, line string) *Client {
	fields := strings.Split(line, ";")
	if len(fields) < 8 {
		return nil
	}
	c := NewClient(s, nil)
	c.nickname = fields[0]
	c.username = fields[1]
	c.hostname = fields[2]
	c.realname = fields[4]
	if fields[5] != "" {
		if hash, err := base64.StdEncoding.DecodeString(fields[5]); err == nil {
			c.passwordHash = hash
		}
	}
	c.awayMessage = fields[6]
	c.registered = true
	c.state = regRegistered
	return c
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}

// ListenAndServe binds addr and accepts connections until the
// listener is closed.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = ln
	log.Printf("[server] %s listening on %s", s.name, addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.metrics.Connections.Inc()
		client := NewClient(s, conn)
		go client.handleConnection()
	}
}

// LinkToParent dials and registers this server as a child of a parent
// relay, per the CLI's optional [<parent_name> <parent_ip> <parent_port>]
// arguments (§6).
func (s *Server) LinkToParent(parentName, parentAddr string) error {
	info := fmt.Sprintf(":%s", s.desc)
	_, err := s.federation.LinkToParent(parentAddr, parentName, info)
	return err
}

// Shutdown closes the listener and flushes the persistence sidecar.
func (s *Server) Shutdown() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.persist != nil {
		s.persist.Close()
	}
}
