package relay

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
)

// Federation implements C8: the SERVER/SQUIT handshake and loop-free
// forwarding across the spanning tree described in §4.6. It holds the
// same Network/Session references as Server so handlers can reach it
// without walking back through Server on every call.
type Federation struct {
	server  *Server
	network *Network
	session *Session
	secret  string
}

func NewFederation(server *Server, network *Network, session *Session, linkSecret string) *Federation {
	return &Federation{server: server, network: network, session: session, secret: linkSecret}
}

// HandleServer processes an inbound "SERVER name hopcount :info" frame
// from a neighbor. The first SERVER frame on a fresh connection also
// carries link authentication via a preceding PASS, checked by the
// caller before HandleServer runs the registration itself.
func (fed *Federation) HandleServer(origin *Client, f *Frame) *RelayError {
	if len(f.Params) < 2 {
		return errNeedMoreParams("SERVER")
	}
	name := f.Params[0]
	hopcount, err := strconv.Atoi(f.Params[1])
	if err != nil {
		hopcount = 1
	}

	if name == fed.network.SelfName() || fed.network.KnowsServer(name) {
		return errf(KindResource, ERR_NOSUCHSERVER, name, "Server already registered")
	}

	fed.network.AddServer(name, hopcount)
	if !origin.IsServerLink() {
		// Only the handshake on a fresh connection creates a tree edge;
		// SERVER frames forwarded over an existing link only add a name.
		link := &PeerLink{Name: name, Conn: origin}
		fed.network.AddChild(link)
		origin.Lock()
		origin.HomeServer = name
		origin.Unlock()
	}

	forward := &Frame{Command: "SERVER", Params: []string{name, strconv.Itoa(hopcount + 1), fed.network.SelfName()}}
	fed.BroadcastExcept(forward, origin)
	log.Printf("[federation] linked server %s (hop %d)", name, hopcount)
	return nil
}

// HandleSquit tears down a server link: removes it from the tree,
// drops every remote client whose home was that server, and forwards
// the SQUIT onward so the rest of the tree converges.
func (fed *Federation) HandleSquit(origin *Client, f *Frame) *RelayError {
	if len(f.Params) < 1 {
		return errNeedMoreParams("SQUIT")
	}
	name := f.Params[0]
	reason := "SQUIT"
	if len(f.Params) > 1 {
		reason = f.Params[1]
	}

	fed.network.RemoveServer(name)
	fed.network.RemoveChild(name)

	var departed []string
	fed.session.EachClient(func(cl *Client) {
		if cl.HomeServerName() == name {
			departed = append(departed, cl.Nickname())
		}
	})
	for _, nick := range departed {
		quitMsg := &Frame{Prefix: nick, Command: "QUIT", Params: []string{reason}}
		fed.session.EachClient(func(peer *Client) {
			if ch := fed.sharesChannelWith(nick, peer.Nickname()); ch {
				peer.SendRaw(quitMsg.String())
			}
		})
		fed.session.RemoveClient(nick)
	}
	fed.network.RemoveServerClients(departed)

	forward := &Frame{Command: "SQUIT", Params: []string{name, reason}}
	fed.BroadcastExcept(forward, origin)
	return nil
}

// HandleRemoteNick processes a NICK frame forwarded from a neighbor:
// it introduces or renames an entry in the remote-client hop table
// (§4.8) rather than running the local registration FSM, so a remote
// user never gets a local socket entry (I4).
func (fed *Federation) HandleRemoteNick(origin *Client, f *Frame) {
	if len(f.Params) < 1 {
		return
	}
	newNick := f.Params[0]
	oldNick, _, _ := ParseHostmask(f.Prefix)
	if oldNick == "" {
		oldNick = f.Prefix
	}
	if oldNick != "" && oldNick != newNick {
		fed.network.RemoveRemoteClient(oldNick)
		renameMsg := &Frame{Prefix: oldNick, Command: "NICK", Params: []string{newNick}}
		fed.session.EachClient(func(peer *Client) {
			if fed.sharesChannelWith(oldNick, peer.Nickname()) {
				peer.SendRaw(renameMsg.String())
			}
		})
	}
	fed.network.SetRemoteClient(newNick, 1)
	fed.BroadcastExcept(f, origin)
}

// HandleRemoteUser carries no hop-table state of its own — the
// preceding NICK frame already introduced the remote nick — but it
// still needs to keep propagating toward the rest of the tree.
func (fed *Federation) HandleRemoteUser(origin *Client, f *Frame) {
	fed.BroadcastExcept(f, origin)
}

// HandleRemoteQuit drops a remote client's hop-table entry, notifies
// local clients who share a channel with it, and forwards the
// synthetic QUIT onward.
func (fed *Federation) HandleRemoteQuit(origin *Client, f *Frame) {
	nick, _, _ := ParseHostmask(f.Prefix)
	if nick == "" {
		nick = f.Prefix
	}
	fed.network.RemoveRemoteClient(nick)

	reason := "Remote quit"
	if len(f.Params) > 0 {
		reason = f.Last()
	}
	quitMsg := &Frame{Prefix: nick, Command: "QUIT", Params: []string{reason}}
	fed.session.EachClient(func(peer *Client) {
		if fed.sharesChannelWith(nick, peer.Nickname()) {
			peer.SendRaw(quitMsg.String())
		}
	})
	fed.BroadcastExcept(f, origin)
}

// HandleRemotePrivmsg delivers a federated PRIVMSG to a local target
// or channel member, and keeps forwarding it toward the rest of the
// tree when the target isn't reachable from here (§8 scenario S5).
func (fed *Federation) HandleRemotePrivmsg(origin *Client, f *Frame) {
	if len(f.Params) < 2 {
		return
	}
	target, message := f.Params[0], f.Params[1]
	sender := f.Prefix

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		if ch, ok := fed.session.GetChannel(target); ok {
			deliverLine := (&Frame{Prefix: sender, Command: RPL_CHANPRIVMSG, Params: []string{target, sender, message}}).String()
			for _, member := range ch.Members() {
				if peer, ok := fed.session.LocalSocket(member); ok {
					peer.SendRaw(deliverLine)
				}
			}
		}
		fed.BroadcastExcept(f, origin)
		return
	}

	if peer, ok := fed.session.LocalSocket(target); ok {
		peer.SendMessage(sender, RPL_USERPRIVMSG, sender, message)
		return
	}
	fed.BroadcastExcept(f, origin)
}

func (fed *Federation) sharesChannelWith(a, b string) bool {
	shares := false
	fed.session.EachChannel(func(ch *Channel) {
		if ch.IsMember(a) && ch.IsMember(b) {
			shares = true
		}
	})
	return shares
}

// BroadcastExcept forwards f to every directly-linked neighbor other
// than origin, satisfying the "never forward back to origin neighbor"
// loop-prevention rule. origin may be nil to broadcast unconditionally.
func (fed *Federation) BroadcastExcept(f *Frame, origin FrameWriter) {
	for _, link := range fed.network.Neighbors() {
		if origin != nil && link.Conn == origin {
			continue
		}
		if err := link.Conn.WriteFrame(f); err != nil {
			log.Printf("[federation] write to %s failed: %v", link.Name, err)
		}
	}
}

// BroadcastToChannelMembers forwards f when ch has at least one remote
// member, sending exactly one copy per neighbor regardless of how many
// of the channel's members sit behind it. Which neighbor a remote
// member is reached through is not tracked, so every neighbor gets the
// copy, including neighbors with no member of ch behind them.
func (fed *Federation) BroadcastToChannelMembers(ch *Channel, f *Frame) {
	hasRemote := false
	for _, member := range ch.Members() {
		if fed.network.IsRemoteClient(member) {
			hasRemote = true
			break
		}
	}
	if hasRemote {
		fed.BroadcastExcept(f, nil)
	}
}

// ForwardToRemoteUser routes a frame toward a remote nickname. With
// only hop-count bookkeeping (no per-nick route table), the relay
// forwards to every neighbor once; each downstream relay repeats the
// same decision until the frame reaches the nickname's home server.
func (fed *Federation) ForwardToRemoteUser(nick string, f *Frame) {
	fed.BroadcastExcept(f, nil)
}

// LinkToParent dials a parent server and performs the two-frame
// handshake: PASS <secret> then SERVER <name> 1 :<info>.
func (fed *Federation) LinkToParent(addr, parentName, selfInfo string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial parent %s: %w", addr, err)
	}
	link := NewClient(fed.server, conn)
	link.HomeServer = parentName
	link.markServerLink()

	link.SendRaw((&Frame{Command: "PASS", Params: []string{fed.secret}}).String())
	link.SendRaw((&Frame{Command: "SERVER", Params: []string{fed.network.SelfName(), "1", selfInfo}}).String())

	fed.network.SetParent(&PeerLink{Name: parentName, Conn: link})
	go link.handleConnection()
	return link, nil
}
