package voice

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Hibiki/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotID = "bot"

func newTestDiscordConnection(ready bool) (*discordConnection, *discordgo.Session, <-chan Status) {
	s := &discordgo.Session{State: discordgo.NewState()}
	s.State.User = &discordgo.User{ID: testBotID}

	c := newDiscordConnection(s, &discordgo.VoiceConnection{Ready: ready}, "g1", "c1", logging.NullLogger())
	ch, _ := c.Statuses()
	return c, s, ch
}

func setReady(c *discordConnection, ready bool) {
	c.vc.Lock()
	c.vc.Ready = ready
	c.vc.Unlock()
}

func botLeft(guildID string) *discordgo.VoiceStateUpdate {
	return &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{GuildID: guildID, UserID: testBotID},
	}
}

func drainStatuses(ch <-chan Status) []Status {
	var out []Status
	for {
		select {
		case st := <-ch:
			out = append(out, st)
		default:
			return out
		}
	}
}

func TestDiscordConnection_InitialReady(t *testing.T) {
	c, _, ch := newTestDiscordConnection(true)

	c.syncReady()

	assert.Equal(t, []Status{StatusConnecting, StatusReady}, drainStatuses(ch))
	assert.Equal(t, StatusReady, c.Status())
}

func TestDiscordConnection_NotReadyStaysSignalling(t *testing.T) {
	c, _, ch := newTestDiscordConnection(false)

	c.syncReady()

	assert.Empty(t, drainStatuses(ch))
	assert.Equal(t, StatusSignalling, c.Status())
}

func TestDiscordConnection_ReadinessFlapRecovers(t *testing.T) {
	c, _, ch := newTestDiscordConnection(true)
	c.syncReady()
	drainStatuses(ch)

	setReady(c, false)
	c.syncReady()
	assert.Equal(t, []Status{StatusDisconnected}, drainStatuses(ch))

	c.syncReady()
	assert.Empty(t, drainStatuses(ch), "no change while still not ready")

	setReady(c, true)
	c.syncReady()
	assert.Equal(t, []Status{StatusConnecting, StatusReady}, drainStatuses(ch))
}

func TestDiscordConnection_KickWithStaleReadyDoesNotRecover(t *testing.T) {
	c, s, ch := newTestDiscordConnection(true)
	c.syncReady()
	drainStatuses(ch)

	c.onVoiceStateUpdate(s, botLeft("g1"))
	assert.Equal(t, []Status{StatusDisconnected}, drainStatuses(ch))

	// discordgo still reports Ready until it closes the socket
	c.syncReady()
	c.syncReady()
	assert.Empty(t, drainStatuses(ch))
	assert.Equal(t, StatusDisconnected, c.Status())

	setReady(c, false)
	c.syncReady()
	assert.Empty(t, drainStatuses(ch))
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestDiscordConnection_KickThenRealReconnect(t *testing.T) {
	c, s, ch := newTestDiscordConnection(true)
	c.syncReady()
	c.onVoiceStateUpdate(s, botLeft("g1"))
	drainStatuses(ch)

	setReady(c, false)
	c.syncReady()
	setReady(c, true)
	c.syncReady()

	assert.Equal(t, []Status{StatusConnecting, StatusReady}, drainStatuses(ch))
}

func TestDiscordConnection_VoiceStateUpdateFiltering(t *testing.T) {
	tests := []struct {
		name   string
		update *discordgo.VoiceStateUpdate
	}{
		{"other guild", botLeft("g2")},
		{"other user", &discordgo.VoiceStateUpdate{
			VoiceState: &discordgo.VoiceState{GuildID: "g1", UserID: "someone"},
		}},
		{"bot moved channel", &discordgo.VoiceStateUpdate{
			VoiceState: &discordgo.VoiceState{GuildID: "g1", UserID: testBotID, ChannelID: "c2"},
		}},
		{"nil voice state", &discordgo.VoiceStateUpdate{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, s, ch := newTestDiscordConnection(true)
			c.syncReady()
			drainStatuses(ch)

			c.onVoiceStateUpdate(s, tt.update)

			assert.Empty(t, drainStatuses(ch))
			assert.Equal(t, StatusReady, c.Status())
		})
	}
}

func TestDiscordConnection_VoiceServerUpdate(t *testing.T) {
	c, s, ch := newTestDiscordConnection(true)
	c.syncReady()
	drainStatuses(ch)

	// ignored while ready
	c.onVoiceServerUpdate(s, &discordgo.VoiceServerUpdate{GuildID: "g1", Endpoint: "voice.example"})
	assert.Empty(t, drainStatuses(ch))

	c.onVoiceStateUpdate(s, botLeft("g1"))
	c.onVoiceServerUpdate(s, &discordgo.VoiceServerUpdate{GuildID: "g2", Endpoint: "voice.example"})
	assert.Equal(t, []Status{StatusDisconnected}, drainStatuses(ch))

	c.onVoiceServerUpdate(s, &discordgo.VoiceServerUpdate{GuildID: "g1", Endpoint: "voice.example"})
	assert.Equal(t, []Status{StatusSignalling}, drainStatuses(ch))
	assert.Equal(t, StatusSignalling, c.Status())
}

func TestDiscordConnection_SendFrame(t *testing.T) {
	t.Run("delivers frame", func(t *testing.T) {
		c, _, _ := newTestDiscordConnection(true)
		send := make(chan []byte, 1)
		c.vc.OpusSend = send

		require.NoError(t, c.SendFrame(context.Background(), []byte{1, 2}))
		assert.Equal(t, []byte{1, 2}, <-send)
	})

	t.Run("no opus channel", func(t *testing.T) {
		c, _, _ := newTestDiscordConnection(true)
		assert.ErrorIs(t, c.SendFrame(context.Background(), []byte{1}), ErrConnectionDestroyed)
	})

	t.Run("send timeout", func(t *testing.T) {
		c, _, _ := newTestDiscordConnection(true)
		c.vc.OpusSend = make(chan []byte)
		c.sendTimeout = 10 * time.Millisecond

		assert.ErrorIs(t, c.SendFrame(context.Background(), []byte{1}), ErrFrameSendTimeout)
	})

	t.Run("context cancelled", func(t *testing.T) {
		c, _, _ := newTestDiscordConnection(true)
		c.vc.OpusSend = make(chan []byte)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, c.SendFrame(ctx, []byte{1}), context.Canceled)
	})
}
