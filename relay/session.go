package relay

import "sync"

// Session is the process-wide registry of connected clients, known
// channels, and local sockets. Each map has its own RWMutex; code that
// must hold more than one acquires them in the order
// channels -> clients -> sockets, matching Network's own
// servers -> server order so the two composed orders never invert.
type Session struct {
	channelsMu sync.RWMutex
	channels   map[string]*Channel

	clientsMu sync.RWMutex
	clients   map[string]*Client

	socketsMu sync.Mutex
	sockets   map[string]*Client // subset of clients with a live local connection

	persist *PersistenceSink
}

func NewSession(persist *PersistenceSink) *Session {
	return &Session{
		channels: make(map[string]*Channel),
		clients:  make(map[string]*Client),
		sockets:  make(map[string]*Client),
		persist:  persist,
	}
}

func (s *Session) GetClient(nick string) (*Client, bool) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	c, ok := s.clients[nick]
	return c, ok
}

func (s *Session) PutClient(c *Client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[c.Nickname()] = c
}

func (s *Session) RemoveClient(nick string) {
	s.clientsMu.Lock()
	delete(s.clients, nick)
	s.clientsMu.Unlock()
}

// RenameClient moves a client's entry to a new key, used by NICK
// changes. The caller must already hold c's own lock state consistent
// with the new nickname.
func (s *Session) RenameClient(oldNick, newNick string, c *Client) {
	s.clientsMu.Lock()
	delete(s.clients, oldNick)
	s.clients[newNick] = c
	s.clientsMu.Unlock()
}

func (s *Session) EachClient(fn func(*Client)) {
	s.clientsMu.RLock()
	snapshot := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		snapshot = append(snapshot, c)
	}
	s.clientsMu.RUnlock()
	for _, c := range snapshot {
		fn(c)
	}
}

func (s *Session) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Session) GetChannel(name string) (*Channel, bool) {
	s.channelsMu.RLock()
	defer s.channelsMu.RUnlock()
	ch, ok := s.channels[name]
	return ch, ok
}

func (s *Session) GetOrCreateChannel(name string) (ch *Channel, created bool) {
	s.channelsMu.Lock()
	defer s.channelsMu.Unlock()
	if ch, ok := s.channels[name]; ok {
		return ch, false
	}
	ch = NewChannel(name)
	s.channels[name] = ch
	return ch, true
}

func (s *Session) RemoveChannel(name string) {
	s.channelsMu.Lock()
	delete(s.channels, name)
	s.channelsMu.Unlock()
}

func (s *Session) EachChannel(fn func(*Channel)) {
	s.channelsMu.RLock()
	snapshot := make([]*Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		snapshot = append(snapshot, ch)
	}
	s.channelsMu.RUnlock()
	for _, ch := range snapshot {
		fn(ch)
	}
}

func (s *Session) RegisterSocket(c *Client) {
	s.socketsMu.Lock()
	s.sockets[c.Nickname()] = c
	s.socketsMu.Unlock()
}

func (s *Session) UnregisterSocket(nick string) {
	s.socketsMu.Lock()
	delete(s.sockets, nick)
	s.socketsMu.Unlock()
}

func (s *Session) LocalSocket(nick string) (*Client, bool) {
	s.socketsMu.Lock()
	defer s.socketsMu.Unlock()
	c, ok := s.sockets[nick]
	return c, ok
}
