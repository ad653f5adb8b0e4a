package relay

import "github.com/chatrelay/relay/persistence"

// PersistenceSink and PersistEvent alias the persistence package's
// types so the rest of relay can reference them without every handler
// importing persistence directly.
type (
	PersistenceSink = persistence.Sink
	PersistEvent    = persistence.Event
)

const (
	OpClientSave    = persistence.OpClientSave
	OpClientUpdate  = persistence.OpClientUpdate
	OpClientDelete  = persistence.OpClientDelete
	OpChannelSave   = persistence.OpChannelSave
	OpChannelUpdate = persistence.OpChannelUpdate
	OpChannelDelete = persistence.OpChannelDelete
)
