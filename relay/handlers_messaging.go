package relay

import "strings"

// handlePrivmsg implements PRIVMSG target :message, routing to a
// local user, a channel (enforcing n/m modes), or forwarding toward a
// remote target along the federation tree (§4.5).
func (c *Client) handlePrivmsg(params []string) *RelayError {
	if len(params) < 1 {
		return errNeedMoreParams("PRIVMSG")
	}
	if len(params) < 2 {
		return errf(KindWire, ERR_NEEDMOREPARAMS, "PRIVMSG", "No text to send")
	}
	target, message := params[0], params[1]
	nick := c.Nickname()
	if target == nick {
		return errf(KindLookup, ERR_NOSUCHNICK, target, "Cannot message yourself")
	}

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		return c.sendChannelMessage(target, message)
	}
	return c.sendUserMessage(target, message)
}

func (c *Client) sendChannelMessage(target, message string) *RelayError {
	ch, ok := c.server.session.GetChannel(target)
	if !ok {
		return errNoSuchChannel(target)
	}
	nick := c.Nickname()
	isMember := ch.IsMember(nick)

	if ch.noExternalMessages() && !isMember {
		return errCannotSendToChan(target)
	}
	if ch.moderated() && isMember && !ch.IsOperator(nick) && !ch.IsVoiced(nick) {
		return errCannotSendToChan(target)
	}

	deliverLine := (&Frame{Prefix: nick, Command: RPL_CHANPRIVMSG, Params: []string{target, nick, message}}).String()
	for _, member := range ch.Members() {
		if member == nick {
			continue
		}
		if peer, ok := c.server.session.LocalSocket(member); ok {
			peer.SendRaw(deliverLine)
		}
	}
	c.server.federation.BroadcastToChannelMembers(ch, &Frame{Prefix: nick, Command: "PRIVMSG", Params: []string{target, message}})
	return nil
}

func (c *Client) sendUserMessage(target, message string) *RelayError {
	nick := c.Nickname()
	if peer, ok := c.server.session.LocalSocket(target); ok {
		peer.SendMessage(nick, RPL_USERPRIVMSG, nick, message)
		if away := peer.AwayMessage(); away != "" {
			c.SendNumeric(RPL_AWAY, target+" :"+away)
		}
		return nil
	}
	if c.server.network.IsRemoteClient(target) {
		c.server.federation.ForwardToRemoteUser(target, &Frame{Prefix: nick, Command: "PRIVMSG", Params: []string{target, message}})
		return nil
	}
	return errNoSuchNick(target)
}

func (c *Channel) noExternalMessages() bool {
	c.RLock()
	defer c.RUnlock()
	return c.modes[ModeNoExternal]
}

func (c *Channel) moderated() bool {
	c.RLock()
	defer c.RUnlock()
	return c.modes[ModeModerated]
}

func (c *Client) AwayMessage() string {
	c.RLock()
	defer c.RUnlock()
	return c.awayMessage
}

// handleAway implements AWAY [:message]. No parameter clears it.
func (c *Client) handleAway(params []string) *RelayError {
	c.Lock()
	if len(params) == 0 || params[0] == "" {
		c.awayMessage = ""
		c.Modes.Away = false
		c.Unlock()
		c.SendNumeric(RPL_UNAWAY, ":You are no longer marked as being away")
		return nil
	}
	c.awayMessage = params[0]
	c.Modes.Away = true
	c.Unlock()
	c.SendNumeric(RPL_NOWAWAY, ":You have been marked as being away")
	return nil
}
