package relay

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Channel mode characters, matching the flag set in the original
// ChannelFlag enum (channelflag.rs): p/s/i/t/n/m/l/b/o/k/v.
const (
	ModePrivate      = 'p'
	ModeSecret       = 's'
	ModeInviteOnly   = 'i'
	ModeTopicOpsOnly = 't'
	ModeNoExternal   = 'n'
	ModeModerated    = 'm'
	ModeLimit        = 'l'
	ModeBan          = 'b'
	ModeOperator     = 'o'
	ModeKey          = 'k'
	ModeVoice        = 'v'
)

// Channel is the shared, mutable state of one channel. All fields are
// guarded by the embedded RWMutex; callers lock/unlock directly
// (mirroring the teacher's embedded-mutex style) rather than going
// through wrapper methods for every field access, since handlers
// routinely need to check several fields under one critical section.
type Channel struct {
	sync.RWMutex

	name       string
	topic      string
	users      map[string]bool
	operators  map[string]bool
	moderators map[string]bool // voiced users, allowed to speak while +m
	banned     map[string]bool
	key        string
	modes      map[rune]bool
	limit      int // 0 means unlimited
}

func NewChannel(name string) *Channel {
	return &Channel{
		name:       name,
		users:      make(map[string]bool),
		operators:  make(map[string]bool),
		moderators: make(map[string]bool),
		banned:     make(map[string]bool),
		modes:      map[rune]bool{ModeTopicOpsOnly: true, ModeNoExternal: true},
	}
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Topic() string {
	c.RLock()
	defer c.RUnlock()
	return c.topic
}

func (c *Channel) SetTopic(topic string) {
	c.Lock()
	c.topic = topic
	c.Unlock()
}

func (c *Channel) IsMember(nick string) bool {
	c.RLock()
	defer c.RUnlock()
	return c.users[nick]
}

func (c *Channel) IsOperator(nick string) bool {
	c.RLock()
	defer c.RUnlock()
	return c.operators[nick]
}

func (c *Channel) IsVoiced(nick string) bool {
	c.RLock()
	defer c.RUnlock()
	return c.moderators[nick]
}

func (c *Channel) IsBanned(nick string) bool {
	c.RLock()
	defer c.RUnlock()
	return c.banned[nick]
}

func (c *Channel) MemberCount() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.users)
}

// Members returns a snapshot of member nicknames.
func (c *Channel) Members() []string {
	c.RLock()
	defer c.RUnlock()
	out := make([]string, 0, len(c.users))
	for n := range c.users {
		out = append(out, n)
	}
	return out
}

// CheckAdmission runs the JOIN admission checks in the order the
// protocol requires: ban, invite-only, limit, key. Returns nil if the
// nick may join.
func (c *Channel) CheckAdmission(nick, key string, invited bool) *RelayError {
	c.RLock()
	defer c.RUnlock()
	if c.banned[nick] {
		return errBannedFromChan(c.name)
	}
	if c.modes[ModeInviteOnly] && !invited {
		return errInviteOnly(c.name)
	}
	if c.limit > 0 && len(c.users) >= c.limit {
		return errChannelFull(c.name)
	}
	if c.modes[ModeKey] && c.key != "" && c.key != key {
		return errBadChannelKey(c.name)
	}
	return nil
}

// AddMember admits nick unconditionally (the caller has already run
// CheckAdmission). The first member becomes channel operator.
func (c *Channel) AddMember(nick string) {
	c.Lock()
	defer c.Unlock()
	firstJoin := len(c.users) == 0
	c.users[nick] = true
	if firstJoin {
		c.operators[nick] = true
	}
}

// RemoveMember removes nick from every role map. Returns true if the
// channel is now empty and should be destroyed.
func (c *Channel) RemoveMember(nick string) (empty bool) {
	c.Lock()
	defer c.Unlock()
	delete(c.users, nick)
	delete(c.operators, nick)
	delete(c.moderators, nick)
	return len(c.users) == 0
}

func (c *Channel) SetOperator(nick string, value bool) {
	c.Lock()
	if value {
		c.operators[nick] = true
	} else {
		delete(c.operators, nick)
	}
	c.Unlock()
}

func (c *Channel) SetVoice(nick string, value bool) {
	c.Lock()
	if value {
		c.moderators[nick] = true
	} else {
		delete(c.moderators, nick)
	}
	c.Unlock()
}

func (c *Channel) SetBan(nick string, value bool) {
	c.Lock()
	if value {
		c.banned[nick] = true
	} else {
		delete(c.banned, nick)
	}
	c.Unlock()
}

// ApplyMode toggles a single channel mode character, taking its
// argument (for l/k/b/o/v) if the mode requires one. Returns the
// resolved argument actually applied (e.g. the nick for o/v).
func (c *Channel) ApplyMode(mode rune, add bool, arg string) (appliedArg string, err *RelayError) {
	c.Lock()
	defer c.Unlock()

	switch mode {
	case ModePrivate, ModeSecret, ModeInviteOnly, ModeTopicOpsOnly, ModeNoExternal, ModeModerated:
		c.modes[mode] = add
		return "", nil
	case ModeLimit:
		if !add {
			c.limit = 0
			delete(c.modes, ModeLimit)
			return "", nil
		}
		n, convErr := strconv.Atoi(arg)
		if convErr != nil || n < 1 {
			return "", errUnknownMode("l")
		}
		c.limit = n
		c.modes[ModeLimit] = true
		return arg, nil
	case ModeKey:
		if !add {
			c.key = ""
			delete(c.modes, ModeKey)
			return "", nil
		}
		if c.modes[ModeKey] && c.key != "" {
			return "", errf(KindAdmission, ERR_KEYSET, c.name, "Channel key already set")
		}
		c.key = arg
		c.modes[ModeKey] = true
		return arg, nil
	case ModeBan:
		if arg == "" {
			return "", errUnknownMode("b")
		}
		if add {
			c.banned[arg] = true
		} else {
			delete(c.banned, arg)
		}
		return arg, nil
	case ModeOperator:
		if arg == "" {
			return "", errUnknownMode("o")
		}
		if add {
			c.operators[arg] = true
		} else {
			delete(c.operators, arg)
		}
		return arg, nil
	case ModeVoice:
		if arg == "" {
			return "", errUnknownMode("v")
		}
		if add {
			c.moderators[arg] = true
		} else {
			delete(c.moderators, arg)
		}
		return arg, nil
	default:
		return "", errUnknownMode(string(mode))
	}
}

// ModeString renders the currently-set simple modes and their shared
// argument list, e.g. "+tnl 10".
func (c *Channel) ModeString() string {
	c.RLock()
	defer c.RUnlock()
	var flags strings.Builder
	var args []string
	flags.WriteByte('+')
	for _, m := range []rune{ModePrivate, ModeSecret, ModeInviteOnly, ModeTopicOpsOnly, ModeNoExternal, ModeModerated, ModeLimit, ModeKey} {
		if c.modes[m] {
			flags.WriteRune(m)
			switch m {
			case ModeLimit:
				args = append(args, strconv.Itoa(c.limit))
			case ModeKey:
				args = append(args, c.key)
			}
		}
	}
	out := flags.String()
	if len(args) > 0 {
		out += " " + strings.Join(args, " ")
	}
	return out
}

func (c *Channel) IsInviteOnly() bool {
	c.RLock()
	defer c.RUnlock()
	return c.modes[ModeInviteOnly]
}

// BanList returns a snapshot of banned masks.
func (c *Channel) BanList() []string {
	c.RLock()
	defer c.RUnlock()
	out := make([]string, 0, len(c.banned))
	for m := range c.banned {
		out = append(out, m)
	}
	return out
}

// PersistLine renders the channels.txt line for this channel, per the
// field order in the original Display impl: name;topic;users;pass;
// banned;operators;modes;limit;moderators.
func (c *Channel) PersistLine() string {
	c.RLock()
	defer c.RUnlock()
	fields := []string{
		c.name,
		c.topic,
		joinKeys(c.users),
		c.key,
		joinKeys(c.banned),
		joinKeys(c.operators),
		modeFlagsString(c.modes),
		limitString(c.limit),
		joinKeys(c.moderators),
	}
	return strings.Join(fields, ";")
}

func joinKeys(m map[string]bool) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return strings.Join(out, ",")
}

func modeFlagsString(modes map[rune]bool) string {
	var b strings.Builder
	for m := range modes {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteRune(m)
	}
	return b.String()
}

func limitString(limit int) string {
	if limit == 0 {
		return ""
	}
	return fmt.Sprintf("%d", limit)
}
