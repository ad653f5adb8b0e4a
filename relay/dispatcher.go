package relay

import "strings"

// dispatch routes one parsed frame to its handler (C6). Unregistered
// connections may only use PASS, NICK, USER, QUIT, SERVER and SQUIT;
// everything else is rejected with NotRegistered, per the registration
// FSM in §4.4. A peer connection never sends NICK/USER for itself — it
// authenticates via PASS+SERVER (§4.6) and, once that handshake
// succeeds, is marked a server link and routed through dispatchPeer
// for the rest of its lifetime instead of the client command switch.
func (c *Client) dispatch(f *Frame) {
	if c.IsServerLink() {
		c.dispatchPeer(f)
		return
	}

	if !c.IsRegistered() {
		switch f.Command {
		case "PASS":
			c.replyErr(c.HandlePass(f.Params))
		case "NICK":
			c.replyErr(c.HandleNick(f.Params))
		case "USER":
			c.replyErr(c.HandleUser(f.Params))
		case "QUIT":
			c.Quit(quitReason(f))
		case "SERVER":
			if c.pendingPassSnapshot() != c.server.federation.secret {
				c.sendError(errPasswordMismatch())
				return
			}
			if err := c.server.federation.HandleServer(c, f); err != nil {
				c.sendError(err)
				return
			}
			c.markServerLink()
		case "SQUIT":
			c.replyErr(c.server.federation.HandleSquit(c, f))
		default:
			c.sendError(errNotRegistered())
		}
		return
	}

	switch f.Command {
	case "NICK":
		c.replyErr(c.HandleNick(f.Params))
	case "PRIVMSG":
		c.replyErr(c.handlePrivmsg(f.Params))
	case "JOIN":
		c.replyErr(c.handleJoin(f.Params))
	case "PART":
		c.replyErr(c.handlePart(f.Params))
	case "KICK":
		c.replyErr(c.handleKick(f.Params))
	case "NAMES":
		c.replyErr(c.handleNames(f.Params))
	case "TOPIC":
		c.replyErr(c.handleTopic(f.Params))
	case "LIST":
		c.replyErr(c.handleList(f.Params))
	case "MODE":
		c.replyErr(c.handleMode(f.Params))
	case "OPER":
		c.replyErr(c.handleOper(f.Params))
	case "INVITE":
		c.replyErr(c.handleInvite(f.Params))
	case "WHO":
		c.replyErr(c.handleWho(f.Params))
	case "WHOIS":
		c.replyErr(c.handleWhois(f.Params))
	case "AWAY":
		c.replyErr(c.handleAway(f.Params))
	case "QUIT":
		c.Quit(quitReason(f))
	case "SQUIT":
		c.replyErr(c.server.federation.HandleSquit(c, f))
	case "DCC":
		c.replyErr(c.handleDCCFrame(f))
	case "PING":
		if len(f.Params) > 0 {
			c.SendMessage(c.server.Name(), "PONG", f.Params[0])
		}
	default:
		c.sendError(errUnknownCommand(f.Command))
	}
}

// dispatchPeer routes frames arriving on an established server link
// (§4.6, §4.8's propagation matrix). The link's own Client object
// carries no nickname of its own — every frame here describes a
// remote user via its prefix, not the connection itself.
func (c *Client) dispatchPeer(f *Frame) {
	fed := c.server.federation
	switch f.Command {
	case "SERVER":
		c.replyErr(fed.HandleServer(c, f))
	case "SQUIT":
		c.replyErr(fed.HandleSquit(c, f))
	case "NICK":
		fed.HandleRemoteNick(c, f)
	case "USER":
		fed.HandleRemoteUser(c, f)
	case "QUIT":
		fed.HandleRemoteQuit(c, f)
	case "PRIVMSG":
		fed.HandleRemotePrivmsg(c, f)
	case "JOIN", "PART", "TOPIC", "MODE", "KICK", "INVITE", "AWAY":
		fed.BroadcastExcept(f, c)
	case "DCC":
		c.replyErr(c.handleDCCFrame(f))
	case "PING":
		if len(f.Params) > 0 {
			c.SendMessage(c.server.Name(), "PONG", f.Params[0])
		}
	}
}

func (c *Client) replyErr(err *RelayError) {
	if err != nil {
		c.sendError(err)
	}
}

func quitReason(f *Frame) string {
	if len(f.Params) > 0 {
		return f.Last()
	}
	return "Client quit"
}

// joinCommaList splits a comma-separated IRC parameter list, e.g. for
// JOIN's "#a,#b" channel list.
func joinCommaList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
