package relay

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// regState is the pre-registration FSM position, per §4.4: Start ->
// HasPass? -> HasNick -> HasNickAndUser -> Registered.
type regState int

const (
	regStart regState = iota
	regHasNick
	regHasNickAndUser
	regRegistered
)

// Client is one connection to this server: a user session or, once the
// SERVER handshake succeeds, a link to a neighbouring server. On a
// server link HomeServer holds the neighbour's name. Users on other
// servers are not Client values; they are tracked only in Network's
// remote-client hop table.
type Client struct {
	sync.RWMutex

	server *Server
	conn   net.Conn
	wmu    sync.Mutex
	connID string // per-connection correlation id for log lines

	nickname   string
	username   string
	realname   string
	hostname   string
	passwordHash []byte
	awayMessage string
	Modes      UserMode

	HomeServer   string // "" for a client connected directly to this server
	registered   bool
	isServerLink bool // true once SERVER handshake succeeds on this connection
	state        regState
	pendingPass string

	channels map[string]bool
	invited  map[string]bool

	signonTime   time.Time
	lastActivity time.Time

	quitOnce sync.Once
	quitCh   chan struct{}
}

func NewClient(server *Server, conn net.Conn) *Client {
	host := "unknown"
	if conn != nil {
		if h, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
			host = h
		}
	}
	now := time.Now()
	return &Client{
		server:       server,
		conn:         conn,
		hostname:     host,
		connID:       uuid.New().String(),
		channels:     make(map[string]bool),
		invited:      make(map[string]bool),
		signonTime:   now,
		lastActivity: now,
		quitCh:       make(chan struct{}),
	}
}

// IdleSeconds is seconds since the last frame this client sent, for
// RPL_WHOISIDLE.
func (c *Client) IdleSeconds() int64 {
	c.RLock()
	defer c.RUnlock()
	return int64(time.Since(c.lastActivity).Seconds())
}

// SignonUnix is this connection's registration time, Unix seconds.
func (c *Client) SignonUnix() int64 {
	c.RLock()
	defer c.RUnlock()
	return c.signonTime.Unix()
}

func (c *Client) touchActivity() {
	c.Lock()
	c.lastActivity = time.Now()
	c.Unlock()
}

func (c *Client) Nickname() string {
	c.RLock()
	defer c.RUnlock()
	return c.nickname
}

func (c *Client) Username() string {
	c.RLock()
	defer c.RUnlock()
	return c.username
}

func (c *Client) Hostname() string {
	c.RLock()
	defer c.RUnlock()
	return c.hostname
}

func (c *Client) IsOperator() bool {
	c.RLock()
	defer c.RUnlock()
	return c.Modes.Operator
}

func (c *Client) IsRegistered() bool {
	c.RLock()
	defer c.RUnlock()
	return c.registered
}

// IsServerLink reports whether this connection completed the SERVER
// handshake and now carries federation traffic rather than client
// commands (§4.6).
func (c *Client) IsServerLink() bool {
	c.RLock()
	defer c.RUnlock()
	return c.isServerLink
}

// markServerLink flips this connection into a server link: it bypasses
// the user registration FSM entirely and its frames are routed by
// dispatchPeer instead of the client command switch.
func (c *Client) markServerLink() {
	c.Lock()
	c.isServerLink = true
	c.registered = true
	c.state = regRegistered
	c.Unlock()
}

func (c *Client) IsRemote() bool {
	c.RLock()
	defer c.RUnlock()
	return c.HomeServer != ""
}

func (c *Client) HomeServerName() string {
	c.RLock()
	defer c.RUnlock()
	return c.HomeServer
}

func (c *Client) Hostmask() string {
	c.RLock()
	defer c.RUnlock()
	return FormatHostmask(c.nickname, c.username, c.hostname)
}

// WriteFrame satisfies FrameWriter for server-link clients.
func (c *Client) WriteFrame(f *Frame) error {
	c.SendRaw(f.String())
	return nil
}

// SendRaw writes one line to the client's socket as a fixed
// EnvelopeSize-byte NUL-padded frame, serialized against concurrent
// writers. No-op for remote clients (no local socket).
func (c *Client) SendRaw(line string) {
	c.RLock()
	conn := c.conn
	c.RUnlock()
	if conn == nil {
		return
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := WriteEnvelopeLine(conn, line); err != nil {
		log.Printf("[%s/%s] write error: %v", c.hostname, c.connID, err)
	}
}

func (c *Client) SendMessage(prefix, command string, params ...string) {
	c.SendRaw((&Frame{Prefix: prefix, Command: command, Params: params}).String())
}

func (c *Client) SendNumeric(numeric, message string) {
	nick := c.Nickname()
	if nick == "" {
		nick = "*"
	}
	serverName := "relay"
	if c.server != nil {
		serverName = c.server.Name()
	}
	c.SendRaw(fmt.Sprintf(":%s %s %s %s", serverName, numeric, nick, message))
}

func (c *Client) sendError(e *RelayError) {
	c.SendNumeric(e.Numeric, e.Target+" :"+e.Message)
}

// --- registration FSM (§4.4) ---

func (c *Client) HandlePass(params []string) *RelayError {
	c.Lock()
	defer c.Unlock()
	if c.state >= regHasNick {
		return errAlreadyRegistered()
	}
	if len(params) < 1 {
		return errNeedMoreParams("PASS")
	}
	c.pendingPass = params[0]
	return nil
}

func (c *Client) HandleNick(params []string) *RelayError {
	if len(params) < 1 {
		return errf(KindRegistration, ERR_NONICKNAMEGIVEN, "*", "No nickname given")
	}
	newNick := params[0]
	if !isValidNickname(newNick) {
		return errf(KindRegistration, ERR_ERRONEUSNICKNAME, newNick, "Erroneous nickname")
	}

	if existing, exists := c.server.session.GetClient(newNick); exists {
		if _, hasSocket := c.server.session.LocalSocket(newNick); !hasSocket && !c.IsRegistered() {
			if existing.CheckReconnectPassword(c.pendingPassSnapshot()) {
				c.rebind(existing)
				return nil
			}
		}
		if fallback, ok := c.proposeFallbackNick(newNick); ok {
			newNick = fallback
		} else {
			return errNicknameInUse(newNick)
		}
	} else if c.server.network.IsRemoteClient(newNick) {
		return errNicknameInUse(newNick)
	}

	c.Lock()
	oldNick := c.nickname
	wasRegistered := c.registered
	c.nickname = newNick
	if c.state == regStart {
		c.state = regHasNick
	}
	pass := c.pendingPass
	c.Unlock()

	if oldNick == "" {
		c.server.session.PutClient(c)
	} else {
		c.server.session.RenameClient(oldNick, newNick, c)
		notice := &Frame{Prefix: FormatHostmask(oldNick, c.Username(), c.Hostname()), Command: "NICK", Params: []string{newNick}}
		c.broadcastToSharedChannels(notice.String())
		c.server.federation.BroadcastExcept(notice, nil)
	}

	if !wasRegistered {
		c.tryCompleteRegistration(pass)
	}
	return nil
}

func (c *Client) pendingPassSnapshot() string {
	c.RLock()
	defer c.RUnlock()
	return c.pendingPass
}

// proposeFallbackNick appends digits 1-9 to nick looking for a free
// one, per §4.4's bounded collision-resolution rule.
func (c *Client) proposeFallbackNick(nick string) (string, bool) {
	for i := 1; i <= 9; i++ {
		candidate := fmt.Sprintf("%s%d", nick, i)
		if !isValidNickname(candidate) {
			continue
		}
		if _, exists := c.server.session.GetClient(candidate); exists {
			continue
		}
		if c.server.network.IsRemoteClient(candidate) {
			continue
		}
		return candidate, true
	}
	return "", false
}

// rebind carries a previously-disconnected client record's identity
// (nickname, user info, away state, channel memberships) onto this
// fresh connection, per §9(b): the record survives reconnection, only
// its live socket is replaced.
func (c *Client) rebind(existing *Client) {
	existing.RLock()
	nick := existing.nickname
	username := existing.username
	realname := existing.realname
	passwordHash := existing.passwordHash
	awayMessage := existing.awayMessage
	modes := existing.Modes
	channels := make(map[string]bool, len(existing.channels))
	for name := range existing.channels {
		channels[name] = true
	}
	existing.RUnlock()

	c.Lock()
	c.nickname = nick
	c.username = username
	c.realname = realname
	c.passwordHash = passwordHash
	c.awayMessage = awayMessage
	c.Modes = modes
	c.channels = channels
	c.registered = true
	c.state = regRegistered
	c.Unlock()

	c.server.session.PutClient(c)
	c.server.session.RegisterSocket(c)
	c.sendWelcome()
}

func (c *Client) HandleUser(params []string) *RelayError {
	if len(params) < 4 {
		return errNeedMoreParams("USER")
	}
	c.Lock()
	if c.registered {
		c.Unlock()
		return errAlreadyRegistered()
	}
	c.username = params[0]
	c.realname = params[3]
	if c.state == regHasNick {
		c.state = regHasNickAndUser
	}
	pass := c.pendingPass
	c.Unlock()

	c.tryCompleteRegistration(pass)
	return nil
}

// tryCompleteRegistration finishes the FSM once nick and user are
// both set. Re-binding a previously-disconnected record on a nickname
// collision is handled earlier, in HandleNick.
func (c *Client) tryCompleteRegistration(pass string) {
	c.Lock()
	nick := c.nickname
	ready := c.state == regHasNickAndUser && !c.registered
	if !ready {
		c.Unlock()
		return
	}
	c.registered = true
	c.state = regRegistered
	c.Unlock()

	if pass != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
		if err == nil {
			c.Lock()
			c.passwordHash = hash
			c.Unlock()
		}
	}

	c.server.session.RegisterSocket(c)
	c.sendWelcome()

	intro := &Frame{Prefix: nick, Command: "NICK", Params: []string{nick}}
	c.server.federation.BroadcastExcept(intro, nil)
	userFrame := &Frame{Prefix: nick, Command: "USER", Params: []string{c.Username(), c.Hostname(), c.server.Name(), c.realname}}
	c.server.federation.BroadcastExcept(userFrame, nil)

	if c.server.persist != nil {
		c.server.persist.Enqueue(PersistEvent{Op: OpClientSave, Payload: c.persistLine()})
	}
}

// CheckReconnectPassword reports whether pass matches the password
// hash stored at original registration, so a new connection under the
// same nickname can re-bind rather than be rejected as in-use. Non-
// goals exclude authentication cryptography as a network feature; this
// is ambient hardening of a value already being persisted at rest.
func (c *Client) CheckReconnectPassword(pass string) bool {
	c.RLock()
	hash := c.passwordHash
	c.RUnlock()
	if hash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(pass)) == nil
}

func (c *Client) sendWelcome() {
	nick := c.Nickname()
	c.SendNumeric(RPL_WELCOME, fmt.Sprintf(":Welcome to %s, %s!%s@%s", c.server.NetworkName(), nick, c.Username(), c.Hostname()))
}

func (c *Client) persistLine() string {
	c.RLock()
	defer c.RUnlock()
	pass := ""
	if c.passwordHash != nil {
		pass = base64.StdEncoding.EncodeToString(c.passwordHash)
	}
	fields := []string{
		c.nickname,
		c.username,
		c.hostname,
		c.server.Name(),
		c.realname,
		pass,
		c.awayMessage,
		c.Modes.String(),
	}
	return strings.Join(fields, ";")
}

// Quit tears the client down: notifies shared channels, removes it
// from every registry, and closes the socket. Idempotent.
func (c *Client) Quit(reason string) {
	c.quitOnce.Do(func() {
		close(c.quitCh)

		nick := c.Nickname()
		quitMsg := &Frame{Prefix: c.Hostmask(), Command: "QUIT", Params: []string{reason}}
		notified := make(map[string]bool)
		c.RLock()
		chans := make([]string, 0, len(c.channels))
		for name := range c.channels {
			chans = append(chans, name)
		}
		c.RUnlock()

		for _, name := range chans {
			if ch, ok := c.server.session.GetChannel(name); ok {
				for _, member := range ch.Members() {
					if member == nick || notified[member] {
						continue
					}
					if peer, ok := c.server.session.LocalSocket(member); ok {
						peer.SendRaw(quitMsg.String())
						notified[member] = true
					}
				}
				if empty := ch.RemoveMember(nick); empty {
					c.server.session.RemoveChannel(name)
				}
			}
		}

		c.server.session.RemoveClient(nick)
		c.server.session.UnregisterSocket(nick)
		if !c.IsRemote() {
			c.server.federation.BroadcastExcept(quitMsg, nil)
		}
		if c.server.persist != nil {
			c.server.persist.Enqueue(PersistEvent{Op: OpClientDelete, ID: nick})
		}

		if c.conn != nil {
			_ = c.conn.Close()
			c.server.metrics.Connections.Dec()
		}
	})
}

func (c *Client) broadcastToSharedChannels(line string) {
	c.RLock()
	chans := make([]string, 0, len(c.channels))
	for name := range c.channels {
		chans = append(chans, name)
	}
	nick := c.nickname
	c.RUnlock()

	sent := map[string]bool{nick: true}
	for _, name := range chans {
		if ch, ok := c.server.session.GetChannel(name); ok {
			for _, member := range ch.Members() {
				if sent[member] {
					continue
				}
				if peer, ok := c.server.session.LocalSocket(member); ok {
					peer.SendRaw(line)
					sent[member] = true
				}
			}
		}
	}
}

// handleConnection is the per-connection goroutine: it owns the
// single reader for this socket, so frames from one client are always
// processed in arrival order. Each frame occupies exactly one fixed
// EnvelopeSize-byte block on the wire (§4.1).
func (c *Client) handleConnection() {
	log.Printf("[%s/%s] connection opened", c.hostname, c.connID)
	defer c.Quit("Connection closed")

	reader := bufio.NewReader(c.conn)
	buf := make([]byte, EnvelopeSize)

	for {
		if _, err := io.ReadFull(reader, buf); err != nil {
			return
		}
		end := 0
		for end < len(buf) && buf[end] != 0 {
			end++
		}
		line := strings.TrimRight(string(buf[:end]), "\r\n")
		if line == "" {
			continue
		}
		frame, perr := ParseFrame(line)
		if perr != nil {
			continue
		}
		c.server.metrics.MessagesReceived.Inc()
		c.touchActivity()
		c.dispatch(frame)

		select {
		case <-c.quitCh:
			return
		default:
		}
	}
}

func isValidNickname(nick string) bool {
	if len(nick) == 0 || len(nick) > 30 {
		return false
	}
	if nick[0] >= '0' && nick[0] <= '9' {
		return false
	}
	for _, r := range nick {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_[]{}|\\^`", r):
		default:
			return false
		}
	}
	return true
}

func isValidChannelName(name string) bool {
	if len(name) < 2 {
		return false
	}
	if name[0] != '#' && name[0] != '&' {
		return false
	}
	return !strings.ContainsAny(name, " ,:\x00\x07")
}

func wildcardMatch(s, pattern string) bool {
	return wildcardMatchRunes([]rune(strings.ToLower(s)), []rune(strings.ToLower(pattern)))
}

func wildcardMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	if p[0] == '*' {
		for i := 0; i <= len(s); i++ {
			if wildcardMatchRunes(s[i:], p[1:]) {
				return true
			}
		}
		return false
	}
	if len(s) == 0 {
		return false
	}
	if p[0] == '?' || p[0] == s[0] {
		return wildcardMatchRunes(s[1:], p[1:])
	}
	return false
}
