package relay

import "fmt"

// maxChannelsPerClient bounds simultaneous channel membership per
// client, per the ERR_TOOMANYCHANNELS reply in the numeric table.
const maxChannelsPerClient = 20

// handleJoin implements JOIN #chan[,#chan2] [key[,key2]] (§4.5).
func (c *Client) handleJoin(params []string) *RelayError {
	if len(params) < 1 {
		return errNeedMoreParams("JOIN")
	}
	names := joinCommaList(params[0])
	keys := make([]string, len(names))
	if len(params) > 1 {
		ks := joinCommaList(params[1])
		for i := range names {
			if i < len(ks) {
				keys[i] = ks[i]
			}
		}
	}

	nick := c.Nickname()
	for i, name := range names {
		if !isValidChannelName(name) {
			c.sendError(errNoSuchChannel(name))
			continue
		}

		c.RLock()
		alreadyIn := c.channels[name]
		memberCount := len(c.channels)
		c.RUnlock()
		if !alreadyIn && memberCount >= maxChannelsPerClient {
			c.sendError(errf(KindResource, ERR_TOOMANYCHANNELS, name, "You have joined too many channels"))
			continue
		}

		ch, created := c.server.session.GetOrCreateChannel(name)
		if !created {
			invited := c.wasInvited(name)
			if err := ch.CheckAdmission(nick, keys[i], invited); err != nil {
				c.sendError(err)
				continue
			}
		}

		ch.AddMember(nick)
		c.Lock()
		c.channels[name] = true
		delete(c.invited, name)
		c.Unlock()

		joinMsg := &Frame{Prefix: c.Hostmask(), Command: "JOIN", Params: []string{name}}
		for _, member := range ch.Members() {
			if peer, ok := c.server.session.LocalSocket(member); ok {
				peer.SendRaw(joinMsg.String())
			}
		}
		c.server.federation.BroadcastExcept(joinMsg, nil)

		if topic := ch.Topic(); topic != "" {
			c.SendNumeric(RPL_TOPIC, fmt.Sprintf("%s :%s", name, topic))
		} else {
			c.SendNumeric(RPL_NOTOPIC, fmt.Sprintf("%s :No topic is set", name))
		}
		c.sendNames(ch)

		if c.server.persist != nil {
			c.server.persist.Enqueue(PersistEvent{Op: OpChannelSave, Payload: ch.PersistLine()})
		}
	}
	return nil
}

func (c *Client) wasInvited(channel string) bool {
	c.RLock()
	defer c.RUnlock()
	return c.invited[channel]
}

// handlePart implements PART #chan[,#chan2] [:reason].
func (c *Client) handlePart(params []string) *RelayError {
	if len(params) < 1 {
		return errNeedMoreParams("PART")
	}
	reason := "Leaving"
	if len(params) > 1 {
		reason = params[1]
	}
	nick := c.Nickname()

	for _, name := range joinCommaList(params[0]) {
		ch, ok := c.server.session.GetChannel(name)
		if !ok {
			c.sendError(errNoSuchChannel(name))
			continue
		}
		if !ch.IsMember(nick) {
			c.sendError(errNotOnChannel(name))
			continue
		}

		partMsg := &Frame{Prefix: c.Hostmask(), Command: "PART", Params: []string{name, reason}}
		for _, member := range ch.Members() {
			if peer, ok := c.server.session.LocalSocket(member); ok {
				peer.SendRaw(partMsg.String())
			}
		}
		c.server.federation.BroadcastExcept(partMsg, nil)

		empty := ch.RemoveMember(nick)
		c.Lock()
		delete(c.channels, name)
		c.Unlock()

		if empty {
			c.server.session.RemoveChannel(name)
			if c.server.persist != nil {
				c.server.persist.Enqueue(PersistEvent{Op: OpChannelDelete, ID: name})
			}
		} else if c.server.persist != nil {
			c.server.persist.Enqueue(PersistEvent{Op: OpChannelUpdate, ID: name, Payload: ch.PersistLine()})
		}
	}
	return nil
}

// handleKick implements KICK #chan user [:reason]. Only channel
// operators (or server operators) may kick.
func (c *Client) handleKick(params []string) *RelayError {
	if len(params) < 2 {
		return errNeedMoreParams("KICK")
	}
	channelName, target := params[0], params[1]
	reason := "No reason"
	if len(params) > 2 {
		reason = params[2]
	}

	ch, ok := c.server.session.GetChannel(channelName)
	if !ok {
		return errNoSuchChannel(channelName)
	}
	nick := c.Nickname()
	if !ch.IsMember(nick) {
		return errNotOnChannel(channelName)
	}
	if !ch.IsOperator(nick) && !c.IsOperator() {
		return errChanOPrivsNeeded(channelName)
	}
	if !ch.IsMember(target) {
		return errUserNotInChannel(target, channelName)
	}

	kickMsg := &Frame{Prefix: c.Hostmask(), Command: "KICK", Params: []string{channelName, target, reason}}
	for _, member := range ch.Members() {
		if member == target {
			continue
		}
		if peer, ok := c.server.session.LocalSocket(member); ok {
			peer.SendRaw(kickMsg.String())
		}
	}
	if peer, ok := c.server.session.LocalSocket(target); ok {
		peer.SendNumeric(RPL_KICKMSG, fmt.Sprintf(":kicked from %s by %s (%s)", channelName, nick, reason))
	}
	c.server.federation.BroadcastExcept(kickMsg, nil)

	empty := ch.RemoveMember(target)
	if targetClient, ok := c.server.session.GetClient(target); ok {
		targetClient.Lock()
		delete(targetClient.channels, channelName)
		targetClient.Unlock()
	}
	if empty {
		c.server.session.RemoveChannel(channelName)
	}
	if c.server.persist != nil {
		c.server.persist.Enqueue(PersistEvent{Op: OpChannelUpdate, ID: channelName, Payload: ch.PersistLine()})
	}
	return nil
}

// handleNames implements NAMES [#chan].
func (c *Client) handleNames(params []string) *RelayError {
	if len(params) == 0 {
		c.server.session.EachChannel(func(ch *Channel) { c.sendNames(ch) })
		return nil
	}
	for _, name := range joinCommaList(params[0]) {
		if ch, ok := c.server.session.GetChannel(name); ok {
			c.sendNames(ch)
		}
	}
	return nil
}

func (c *Client) sendNames(ch *Channel) {
	var names string
	for _, member := range ch.Members() {
		prefix := ""
		if ch.IsOperator(member) {
			prefix = "@"
		} else if ch.IsVoiced(member) {
			prefix = "+"
		}
		if names != "" {
			names += " "
		}
		names += prefix + member
	}
	c.SendNumeric(RPL_NAMREPLY, fmt.Sprintf("= %s :%s", ch.Name(), names))
	c.SendNumeric(RPL_ENDOFNAMES, fmt.Sprintf("%s :End of /NAMES list", ch.Name()))
}

// handleTopic implements TOPIC #chan [:new topic].
func (c *Client) handleTopic(params []string) *RelayError {
	if len(params) < 1 {
		return errNeedMoreParams("TOPIC")
	}
	name := params[0]
	ch, ok := c.server.session.GetChannel(name)
	if !ok {
		return errNoSuchChannel(name)
	}
	nick := c.Nickname()
	if !ch.IsMember(nick) {
		return errNotOnChannel(name)
	}

	if len(params) == 1 {
		if topic := ch.Topic(); topic != "" {
			c.SendNumeric(RPL_TOPIC, fmt.Sprintf("%s :%s", name, topic))
		} else {
			c.SendNumeric(RPL_NOTOPIC, fmt.Sprintf("%s :No topic is set", name))
		}
		return nil
	}

	if ch.topicRestricted() && !ch.IsOperator(nick) && !c.IsOperator() {
		return errChanOPrivsNeeded(name)
	}

	ch.SetTopic(params[1])
	topicMsg := &Frame{Prefix: c.Hostmask(), Command: "TOPIC", Params: []string{name, params[1]}}
	for _, member := range ch.Members() {
		if peer, ok := c.server.session.LocalSocket(member); ok {
			peer.SendRaw(topicMsg.String())
		}
	}
	c.server.federation.BroadcastExcept(topicMsg, nil)
	if c.server.persist != nil {
		c.server.persist.Enqueue(PersistEvent{Op: OpChannelUpdate, ID: name, Payload: ch.PersistLine()})
	}
	return nil
}

// handleList implements LIST [#chan].
func (c *Client) handleList(params []string) *RelayError {
	emit := func(ch *Channel) {
		c.SendNumeric(RPL_LIST, fmt.Sprintf("%s %d :%s", ch.Name(), ch.MemberCount(), ch.Topic()))
	}
	if len(params) > 0 {
		for _, name := range joinCommaList(params[0]) {
			if ch, ok := c.server.session.GetChannel(name); ok {
				emit(ch)
			}
		}
	} else {
		c.server.session.EachChannel(emit)
	}
	c.SendNumeric(RPL_LISTEND, ":End of /LIST")
	return nil
}

// handleInvite implements INVITE nick #chan.
func (c *Client) handleInvite(params []string) *RelayError {
	if len(params) < 2 {
		return errNeedMoreParams("INVITE")
	}
	target, channelName := params[0], params[1]
	ch, ok := c.server.session.GetChannel(channelName)
	if !ok {
		return errNoSuchChannel(channelName)
	}
	nick := c.Nickname()
	if !ch.IsMember(nick) {
		return errNotOnChannel(channelName)
	}
	if ch.IsInviteOnly() && !ch.IsOperator(nick) && !c.IsOperator() {
		return errChanOPrivsNeeded(channelName)
	}
	targetClient, ok := c.server.session.GetClient(target)
	if !ok {
		return errNoSuchNick(target)
	}
	if ch.IsMember(target) {
		return errf(KindLookup, ERR_USERONCHANNEL, target+" "+channelName, "is already on channel")
	}

	targetClient.Lock()
	targetClient.invited[channelName] = true
	targetClient.Unlock()

	c.SendNumeric(RPL_INVITEMSG, fmt.Sprintf("%s %s", target, channelName))
	targetClient.SendMessage(c.Hostmask(), "INVITE", target, channelName)
	return nil
}

// topicRestricted reports whether only operators may set the topic.
func (c *Channel) topicRestricted() bool {
	c.RLock()
	defer c.RUnlock()
	return c.modes[ModeTopicOpsOnly]
}
