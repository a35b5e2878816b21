package voice

import "context"

// FrameSink receives encoded opus frames from a Player
type FrameSink interface {
	SendFrame(ctx context.Context, frame []byte) error
	Speaking(speaking bool) error
}

// Connection is a media connection to one guild's voice channel.
//
// Destroy is idempotent. Statuses subscribes to status transitions; see
// CanTransition for the state machine.
type Connection interface {
	FrameSink
	GuildID() string
	ChannelID() string
	Status() Status
	Statuses() (<-chan Status, func())
	Destroy() error
}

// Connector opens media connections. It does not deduplicate per guild;
// the Controller does that through its Registry.
type Connector interface {
	Connect(ctx context.Context, channelID, guildID string) (Connection, error)
}
