package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/santa-bot/internal/coordinator"
	"github.com/p-blackswan/santa-bot/internal/texts"
)

// Transport delivers notification plans to Slack, probes direct message
// reachability and answers admin lookups.
//
// Announcement refs are message timestamps in the room channel. Private refs
// are "channel:timestamp" since a DM channel id is only known after opening it.
type Transport struct {
	api    BotAPI
	labels texts.Controls
	logger zerolog.Logger
}

// NewTransport creates a Slack transport.
func NewTransport(api BotAPI, catalog *texts.Catalog, logger zerolog.Logger) *Transport {
	if catalog == nil {
		catalog = texts.Default()
	}
	return &Transport{
		api:    api,
		labels: catalog.Controls,
		logger: logger.With().Str("component", "slack.transport").Logger(),
	}
}

// PostAnnouncement posts the room announcement and returns its timestamp.
func (t *Transport) PostAnnouncement(ctx context.Context, room, text string, controls []coordinator.Control) (string, error) {
	_, ts, err := t.api.PostMessageContext(ctx, room,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(MessageBlocks(room, text, controls, t.labels)...),
	)
	if err != nil {
		return "", fmt.Errorf("posting announcement: %w", err)
	}
	return ts, nil
}

// UpdateAnnouncement rewrites the announcement. No controls removes the buttons.
func (t *Transport) UpdateAnnouncement(ctx context.Context, room, ref, text string, controls []coordinator.Control) error {
	_, _, _, err := t.api.UpdateMessageContext(ctx, room, ref,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(MessageBlocks(room, text, controls, t.labels)...),
	)
	if err != nil {
		return fmt.Errorf("updating announcement: %w", err)
	}
	return nil
}

// SendPrivate opens a DM with recipient and posts text, threaded under
// replyTo when it is a ref in the same conversation.
func (t *Transport) SendPrivate(ctx context.Context, room, recipient, text, replyTo string, controls []coordinator.Control) (string, error) {
	channel, err := t.openDM(ctx, recipient)
	if err != nil {
		return "", err
	}
	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(MessageBlocks(room, text, controls, t.labels)...),
	}
	if ch, ts, ok := SplitRef(replyTo); ok && ch == channel {
		opts = append(opts, slack.MsgOptionTS(ts))
	}
	_, ts, err := t.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return "", fmt.Errorf("sending private message: %w", err)
	}
	return JoinRef(channel, ts), nil
}

// UpdatePrivate rewrites a private message and drops its buttons.
func (t *Transport) UpdatePrivate(ctx context.Context, _, ref, text string) error {
	channel, ts, ok := SplitRef(ref)
	if !ok {
		return fmt.Errorf("malformed private message ref %q", ref)
	}
	_, _, _, err := t.api.UpdateMessageContext(ctx, channel, ts,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(MessageBlocks("", text, nil, t.labels)...),
	)
	if err != nil {
		return fmt.Errorf("updating private message: %w", err)
	}
	return nil
}

// Probe reports whether a DM can be opened with the user.
func (t *Transport) Probe(ctx context.Context, userID string) error {
	_, err := t.openDM(ctx, userID)
	return err
}

// IsAdmin reports whether the user administers the workspace the room belongs to.
func (t *Transport) IsAdmin(ctx context.Context, _, userID string) (bool, error) {
	u, err := t.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("fetching user %s: %w", userID, err)
	}
	return u.IsAdmin || u.IsOwner || u.IsPrimaryOwner, nil
}

// DisplayName returns the name shown for the user, falling back to the id.
func (t *Transport) DisplayName(ctx context.Context, userID string) string {
	u, err := t.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		t.logger.Warn().Err(err).Str("user", userID).Msg("user lookup failed")
		return userID
	}
	for _, name := range []string{u.Profile.DisplayName, u.RealName, u.Name} {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return userID
}

// RoomTitle returns the channel name, or fallback when it cannot be read.
func (t *Transport) RoomTitle(ctx context.Context, channelID, fallback string) string {
	ch, err := t.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil || ch == nil || ch.Name == "" {
		if err != nil {
			t.logger.Debug().Err(err).Str("channel", channelID).Msg("conversation lookup failed")
		}
		return fallback
	}
	return ch.Name
}

// Ephemeral shows text to a single user in channel.
func (t *Transport) Ephemeral(ctx context.Context, channel, userID, text string) {
	if _, err := t.api.PostEphemeralContext(ctx, channel, userID, slack.MsgOptionText(text, false)); err != nil {
		t.logger.Warn().Err(err).Str("channel", channel).Str("user", userID).Msg("ephemeral message failed")
	}
}

func (t *Transport) openDM(ctx context.Context, userID string) (string, error) {
	ch, _, _, err := t.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users:    []string{userID},
		ReturnIM: true,
	})
	if err != nil {
		return "", fmt.Errorf("opening conversation with %s: %w", userID, err)
	}
	return ch.ID, nil
}

// JoinRef encodes a private message ref.
func JoinRef(channel, ts string) string { return channel + ":" + ts }

// SplitRef decodes a private message ref.
func SplitRef(ref string) (channel, ts string, ok bool) {
	channel, ts, ok = strings.Cut(ref, ":")
	if !ok || channel == "" || ts == "" {
		return "", "", false
	}
	return channel, ts, true
}
