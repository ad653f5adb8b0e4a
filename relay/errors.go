package relay

import "fmt"

// Kind classifies a RelayError so dispatch code can map it to a numeric
// reply without string matching. Grouped the way the original
// implementation's command-error enums are grouped (see
// trabajo-practico-grupal/server/src/server_errors.rs in the retrieval
// pack's original_source).
type Kind int

const (
	KindWire Kind = iota
	KindRegistration
	KindAuthorization
	KindLookup
	KindAdmission
	KindResource
	KindDCC
)

// RelayError is the single error type returned by handlers. The
// dispatcher translates it into the numeric reply table in numerics.go.
type RelayError struct {
	Kind    Kind
	Numeric string
	Target  string
	Message string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("%s %s :%s", e.Numeric, e.Target, e.Message)
}

func errf(kind Kind, numeric, target, format string, args ...any) *RelayError {
	return &RelayError{Kind: kind, Numeric: numeric, Target: target, Message: fmt.Sprintf(format, args...)}
}

func errNotRegistered() *RelayError {
	return errf(KindRegistration, ERR_NOTREGISTERED, "*", "You have not registered")
}

func errNeedMoreParams(cmd string) *RelayError {
	return errf(KindWire, ERR_NEEDMOREPARAMS, cmd, "Not enough parameters")
}

func errNoSuchNick(nick string) *RelayError {
	return errf(KindLookup, ERR_NOSUCHNICK, nick, "No such nick/channel")
}

func errNoSuchChannel(name string) *RelayError {
	return errf(KindLookup, ERR_NOSUCHCHANNEL, name, "No such channel")
}

func errNotOnChannel(name string) *RelayError {
	return errf(KindLookup, ERR_NOTONCHANNEL, name, "You're not on that channel")
}

func errUserNotInChannel(nick, channel string) *RelayError {
	return errf(KindLookup, ERR_USERNOTINCHANNEL, nick+" "+channel, "They aren't on that channel")
}

func errChanOPrivsNeeded(name string) *RelayError {
	return errf(KindAuthorization, ERR_CHANOPRIVSNEEDED, name, "You're not a channel operator")
}

func errCannotSendToChan(name string) *RelayError {
	return errf(KindAdmission, ERR_CANNOTSENDTOCHAN, name, "Cannot send to channel")
}

func errInviteOnly(name string) *RelayError {
	return errf(KindAdmission, ERR_INVITEONLYCHAN, name, "Cannot join channel (+i)")
}

func errBannedFromChan(name string) *RelayError {
	return errf(KindAdmission, ERR_BANNEDFROMCHAN, name, "Cannot join channel (+b)")
}

func errBadChannelKey(name string) *RelayError {
	return errf(KindAdmission, ERR_BADCHANNELKEY, name, "Cannot join channel (+k)")
}

func errChannelFull(name string) *RelayError {
	return errf(KindAdmission, ERR_CHANNELISFULL, name, "Cannot join channel (+l)")
}

func errNicknameInUse(nick string) *RelayError {
	return errf(KindRegistration, ERR_NICKNAMEINUSE, nick, "Nickname is already in use")
}

func errAlreadyRegistered() *RelayError {
	return errf(KindRegistration, ERR_ALREADYREGISTRED, "*", "You may not reregister")
}

func errPasswordMismatch() *RelayError {
	return errf(KindAuthorization, ERR_PASSWDMISMATCH, "*", "Password incorrect")
}

func errNoPrivileges() *RelayError {
	return errf(KindAuthorization, ERR_NOPRIVILEGES, "*", "Permission Denied- You're not an IRC operator")
}

func errUsersDontMatch() *RelayError {
	return errf(KindAuthorization, ERR_USERSDONTMATCH, "*", "Cannot change mode for other users")
}

func errUnknownCommand(cmd string) *RelayError {
	return errf(KindWire, ERR_UNKNOWNCOMMAND, cmd, "Unknown command")
}

func errUnknownMode(mode string) *RelayError {
	return errf(KindWire, ERR_UNKNOWNMODE, mode, "is unknown mode char")
}

func errUnknownModeFlag() *RelayError {
	return errf(KindWire, ERR_UNKNOWNMODEFLAG, "*", "Unknown MODE flag")
}
