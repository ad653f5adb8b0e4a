package relay

import (
	"fmt"
	"strings"
)

// handleMode dispatches to the channel or user mode handler based on
// the target. Unlike the source material this was adapted from, each
// branch returns, so a channel MODE never also runs the user-mode
// path.
func (c *Client) handleMode(params []string) *RelayError {
	if len(params) < 1 {
		return errNeedMoreParams("MODE")
	}
	target := params[0]
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		return c.handleChannelMode(target, params[1:])
	}
	return c.handleUserMode(target, params[1:])
}

// modesWithArgsAdd are channel mode characters that consume a parameter
// when set (l, k, b, o, v); modesWithArgsRemove are those that still
// consume one when cleared (b, o, v).
var modesWithArgsAdd = "lkbov"
var modesWithArgsRemove = "bov"

func (c *Client) handleChannelMode(channelName string, rest []string) *RelayError {
	ch, ok := c.server.session.GetChannel(channelName)
	if !ok {
		return errNoSuchChannel(channelName)
	}

	if len(rest) == 0 {
		c.SendNumeric(RPL_CHANNELMODEIS, fmt.Sprintf("%s %s", channelName, ch.ModeString()))
		return nil
	}

	nick := c.Nickname()
	if !ch.IsOperator(nick) && !c.IsOperator() {
		return errChanOPrivsNeeded(channelName)
	}

	modeString := rest[0]
	args := rest[1:]
	argIdx := 0

	if modeString == "+b" && len(args) == 0 {
		c.listChannelBans(ch)
		return nil
	}

	add := true
	var appliedFlags strings.Builder
	var appliedArgs []string
	for _, ch0 := range modeString {
		switch ch0 {
		case '+':
			add = true
			continue
		case '-':
			add = false
			continue
		}

		var arg string
		needsArg := (add && strings.ContainsRune(modesWithArgsAdd, ch0)) || (!add && strings.ContainsRune(modesWithArgsRemove, ch0))
		if needsArg {
			if argIdx < len(args) {
				arg = args[argIdx]
				argIdx++
			}
		}

		applied, err := ch.ApplyMode(ch0, add, arg)
		if err != nil {
			c.sendError(err)
			continue
		}
		if add {
			appliedFlags.WriteByte('+')
		} else {
			appliedFlags.WriteByte('-')
		}
		appliedFlags.WriteRune(ch0)
		if applied != "" {
			appliedArgs = append(appliedArgs, applied)
		}
	}

	if appliedFlags.Len() == 0 {
		return nil
	}
	changeParams := append([]string{channelName, appliedFlags.String()}, appliedArgs...)
	modeMsg := &Frame{Prefix: c.Hostmask(), Command: "MODE", Params: changeParams}
	for _, member := range ch.Members() {
		if peer, ok := c.server.session.LocalSocket(member); ok {
			peer.SendRaw(modeMsg.String())
		}
	}
	c.server.federation.BroadcastExcept(modeMsg, nil)
	if c.server.persist != nil {
		c.server.persist.Enqueue(PersistEvent{Op: OpChannelUpdate, ID: channelName, Payload: ch.PersistLine()})
	}
	return nil
}

func (c *Client) listChannelBans(ch *Channel) {
	for _, mask := range ch.BanList() {
		c.SendNumeric(RPL_BANLIST, fmt.Sprintf("%s %s", ch.Name(), mask))
	}
	c.SendNumeric(RPL_ENDOFBANLIST, fmt.Sprintf("%s :End of channel ban list", ch.Name()))
}

// handleUserMode implements user-targeted MODE: a client may only
// change its own modes, and only i, w and s toggle here (o comes from
// OPER, a from AWAY).
func (c *Client) handleUserMode(target string, rest []string) *RelayError {
	if target != c.Nickname() {
		return errUsersDontMatch()
	}
	if len(rest) == 0 {
		c.SendNumeric(RPL_UMODEIS, c.Modes.String())
		return nil
	}
	for _, r := range rest[0] {
		if !strings.ContainsRune("+-iws", r) {
			return errUnknownModeFlag()
		}
	}
	c.Lock()
	err := c.Modes.ParseModeString(rest[0])
	c.Unlock()
	if err != nil {
		return errUnknownModeFlag()
	}
	c.SendMessage(c.Hostmask(), "MODE", target, rest[0])
	return nil
}

// handleOper implements OPER nick pass, consulting the server-opers
// credential file (§4.5, §6).
func (c *Client) handleOper(params []string) *RelayError {
	if len(params) < 2 {
		return errNeedMoreParams("OPER")
	}
	username, password := params[0], params[1]
	if !c.server.CheckOperCredentials(username, password) {
		return errf(KindAuthorization, ERR_PASSWDMISMATCH, "*", "Password incorrect")
	}
	c.Lock()
	c.Modes.Operator = true
	c.Unlock()
	c.SendNumeric(RPL_YOUREOPER, ":You are now an IRC operator")
	return nil
}

// handleWho implements WHO target, where target is a channel name or
// a nick/realname wildcard mask.
func (c *Client) handleWho(params []string) *RelayError {
	mask := "*"
	if len(params) > 0 {
		mask = params[0]
	}

	if ch, ok := c.server.session.GetChannel(mask); ok {
		for _, member := range ch.Members() {
			if peer, ok := c.server.session.GetClient(member); ok {
				c.sendWhoLine(ch.Name(), peer)
			}
		}
	} else {
		c.server.session.EachClient(func(peer *Client) {
			if wildcardMatch(peer.Nickname(), mask) {
				c.sendWhoLine("*", peer)
			}
		})
	}
	c.SendNumeric(RPL_ENDOFWHO, mask+" :End of /WHO list")
	return nil
}

func (c *Client) sendWhoLine(channel string, peer *Client) {
	flags := "H"
	if peer.IsOperator() {
		flags += "*"
	}
	c.SendNumeric(RPL_WHOREPLY, fmt.Sprintf("%s %s %s %s %s %s :0 %s",
		channel, peer.Username(), peer.Hostname(), c.server.Name(), peer.Nickname(), flags, peer.realnameSnapshot()))
}

func (c *Client) realnameSnapshot() string {
	c.RLock()
	defer c.RUnlock()
	return c.realname
}

// handleWhois implements WHOIS nick.
func (c *Client) handleWhois(params []string) *RelayError {
	if len(params) < 1 {
		return errNeedMoreParams("WHOIS")
	}
	target := params[0]
	peer, ok := c.server.session.GetClient(target)
	if !ok {
		return errNoSuchNick(target)
	}

	c.SendNumeric(RPL_WHOISUSER, fmt.Sprintf("%s %s %s * :%s", peer.Nickname(), peer.Username(), peer.Hostname(), peer.realnameSnapshot()))
	c.SendNumeric(RPL_WHOISSERVER, fmt.Sprintf("%s %s :%s", peer.Nickname(), c.server.Name(), c.server.Desc()))
	if peer.IsOperator() {
		c.SendNumeric(RPL_WHOISOPERATOR, peer.Nickname()+" :is an IRC operator")
	}
	if away := peer.AwayMessage(); away != "" {
		c.SendNumeric(RPL_AWAY, peer.Nickname()+" :"+away)
	}
	peer.RLock()
	chans := make([]string, 0, len(peer.channels))
	for name := range peer.channels {
		chans = append(chans, name)
	}
	peer.RUnlock()
	c.SendNumeric(RPL_WHOISCHANNELS, fmt.Sprintf("%s :%s", peer.Nickname(), strings.Join(chans, " ")))
	c.SendNumeric(RPL_WHOISIDLE, fmt.Sprintf("%s %d %d :seconds idle, signon time", peer.Nickname(), peer.IdleSeconds(), peer.SignonUnix()))
	c.SendNumeric(RPL_ENDOFWHOIS, peer.Nickname()+" :End of /WHOIS list")
	return nil
}
