package slack

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/p-blackswan/santa-bot/internal/coordinator"
	"github.com/p-blackswan/santa-bot/internal/notify"
	"github.com/p-blackswan/santa-bot/internal/texts"
)

// Sessions is the coordinator surface reachable from Slack.
type Sessions interface {
	CreateSession(ctx context.Context, room coordinator.Room, actor coordinator.Actor) (coordinator.Result, error)
	Join(ctx context.Context, room string, actor coordinator.Actor) (coordinator.Result, error)
	Leave(ctx context.Context, room string, actor coordinator.Actor) (coordinator.Result, error)
	Start(ctx context.Context, room string, actor coordinator.Actor) (coordinator.Result, error)
	Cancel(ctx context.Context, room string, actor coordinator.Actor) (coordinator.Result, error)
	UpdateName(ctx context.Context, room string, actor coordinator.Actor) (coordinator.Result, error)
	AbortStart(ctx context.Context, room, sessionID string, undelivered []string) (coordinator.Result, error)
}

// Runner delivers notification plans.
type Runner interface {
	Run(ctx context.Context, plan []coordinator.Notification) notify.Report
}

// quiet lists operations whose success is already visible to the actor
// through the announcement or a private message.
var quiet = map[string]bool{
	"create": true,
	"join":   true,
}

// Handler processes Slack events.
// Slash commands and button callbacks become coordinator operations; rejected
// operations are answered with an ephemeral notice to the actor.
type Handler struct {
	socket     *socketmode.Client
	sessions   Sessions
	runner     Runner
	transport  *Transport
	middleware *Middleware
	notices    texts.Notice
	logger     zerolog.Logger
}

// NewHandler creates a new event handler.
func NewHandler(sessions Sessions, runner Runner, transport *Transport, middleware *Middleware, catalog *texts.Catalog, logger zerolog.Logger) *Handler {
	if catalog == nil {
		catalog = texts.Default()
	}
	return &Handler{
		sessions:   sessions,
		runner:     runner,
		transport:  transport,
		middleware: middleware,
		notices:    catalog.Notice,
		logger:     logger.With().Str("component", "slack.handler").Logger(),
	}
}

// SetSocket sets the Socket Mode client for acknowledging events.
func (h *Handler) SetSocket(s *socketmode.Client) {
	h.socket = s
}

// HandleEvent routes Socket Mode events to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeSlashCommand:
		h.ack(evt)
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			h.logger.Warn().Str("type", string(evt.Type)).Msg("failed to cast slash command data")
			return
		}
		h.HandleCommand(ctx, cmd)
	case socketmode.EventTypeEventsAPI:
		h.ack(evt)
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			h.logger.Warn().Str("type", string(evt.Type)).Msg("failed to cast events_api data")
			return
		}
		if eventsAPIEvent.Type == slackevents.CallbackEvent {
			h.handleCallbackEvent(ctx, eventsAPIEvent.InnerEvent)
		}
	case socketmode.EventTypeInteractive:
		h.ack(evt)
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		h.HandleInteraction(ctx, callback)
	case socketmode.EventTypeConnected:
		h.logger.Info().Msg("connected to Slack")
	case socketmode.EventTypeConnectionError:
		h.logger.Warn().Msg("Slack connection error, retrying")
	default:
		h.logger.Debug().Str("type", string(evt.Type)).Msg("unhandled event type")
	}
}

// Slack requires an ack within 3 seconds.
func (h *Handler) ack(evt socketmode.Event) {
	if h.socket != nil && evt.Request != nil {
		h.socket.Ack(*evt.Request)
	}
}

// A mention of the bot is answered with the usage notice.
func (h *Handler) handleCallbackEvent(ctx context.Context, innerEvent slackevents.EventsAPIInnerEvent) {
	switch ev := innerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		h.logger.Info().
			Str("user", ev.User).
			Str("channel", ev.Channel).
			Msg("app mention received")
		if ev.User != "" && h.middleware.CheckRateLimit(ev.User) {
			h.transport.Ephemeral(ctx, ev.Channel, ev.User, h.notices.Usage)
		}
	default:
		h.logger.Debug().
			Str("inner_type", innerEvent.Type).
			Msg("unhandled callback event type")
	}
}

// HandleCommand runs a /santa command.
func (h *Handler) HandleCommand(ctx context.Context, cmd slack.SlashCommand) {
	h.logger.Info().
		Str("command", cmd.Command).
		Str("user", cmd.UserID).
		Str("channel", cmd.ChannelID).
		Msg("slash command received")

	if !h.middleware.CheckRateLimit(cmd.UserID) {
		h.transport.Ephemeral(ctx, cmd.ChannelID, cmd.UserID, h.notices.RateLimited)
		return
	}
	if !isChannel(cmd.ChannelID) {
		h.transport.Ephemeral(ctx, cmd.ChannelID, cmd.UserID, h.notices.ChannelOnly)
		return
	}

	actor := h.actor(ctx, cmd.UserID)
	switch strings.ToLower(strings.TrimSpace(cmd.Text)) {
	case "", "new":
		room := coordinator.Room{
			ID:    cmd.ChannelID,
			Title: h.transport.RoomTitle(ctx, cmd.ChannelID, cmd.ChannelName),
		}
		res, err := h.sessions.CreateSession(ctx, room, actor)
		h.respond(ctx, "create", cmd.ChannelID, cmd.UserID, res, err)
	case "cancel":
		res, err := h.sessions.Cancel(ctx, cmd.ChannelID, actor)
		h.respond(ctx, "cancel", cmd.ChannelID, cmd.UserID, res, err)
	default:
		h.transport.Ephemeral(ctx, cmd.ChannelID, cmd.UserID, h.notices.Usage)
	}
}

// HandleInteraction runs the session buttons of a block_actions callback.
func (h *Handler) HandleInteraction(ctx context.Context, callback slack.InteractionCallback) {
	if callback.Type != slack.InteractionTypeBlockActions {
		return
	}
	channel := callback.Channel.ID
	user := callback.User.ID

	for _, action := range callback.ActionCallback.BlockActions {
		h.logger.Info().
			Str("action", action.ActionID).
			Str("user", user).
			Msg("interaction received")

		op := h.operation(action.ActionID)
		if op == nil {
			continue
		}
		if !h.middleware.CheckRateLimit(user) {
			h.transport.Ephemeral(ctx, channel, user, h.notices.RateLimited)
			return
		}

		room := action.Value
		if room == "" {
			room = channel
		}
		res, err := op.run(ctx, room, h.actor(ctx, user))
		h.respond(ctx, op.name, channel, user, res, err)
	}
}

type operation struct {
	name string
	run  func(ctx context.Context, room string, actor coordinator.Actor) (coordinator.Result, error)
}

func (h *Handler) operation(actionID string) *operation {
	switch actionID {
	case ActionJoin:
		return &operation{"join", h.sessions.Join}
	case ActionLeave:
		return &operation{"leave", h.sessions.Leave}
	case ActionStart:
		return &operation{"start", h.sessions.Start}
	case ActionCancel:
		return &operation{"cancel", h.sessions.Cancel}
	case ActionRename:
		return &operation{"rename", h.sessions.UpdateName}
	}
	return nil
}

func (h *Handler) actor(ctx context.Context, userID string) coordinator.Actor {
	return coordinator.Actor{ID: userID, DisplayName: h.transport.DisplayName(ctx, userID)}
}

func (h *Handler) respond(ctx context.Context, op, channel, user string, res coordinator.Result, err error) {
	log := h.logger.With().Str("op", op).Str("user", user).Str("channel", channel).Logger()
	if err != nil {
		log.Error().Err(err).Msg("operation failed")
		h.transport.Ephemeral(ctx, channel, user, h.notices.Failed)
		return
	}
	if !res.OK() {
		log.Info().Str("status", string(res.Status)).Str("reason", string(res.Reason)).Msg("operation rejected")
		if res.Notice != "" {
			h.transport.Ephemeral(ctx, channel, user, res.Notice)
		}
		return
	}

	report := h.runner.Run(ctx, res.Plan)
	if !report.OK() {
		log.Warn().Int("delivered", report.Delivered).Int("failed", len(report.Failures)).Msg("plan partially delivered")
	}
	if missed := report.Undelivered(); op == "start" && len(missed) > 0 && res.Session != nil {
		h.abortStart(ctx, channel, user, res.Session.RoomID, res.Session.ID, missed)
		return
	}
	if res.Notice != "" && !quiet[op] {
		h.transport.Ephemeral(ctx, channel, user, res.Notice)
	}
}

// abortStart reopens a session whose match messages did not all arrive and
// tells the actor who was missed.
func (h *Handler) abortStart(ctx context.Context, channel, user, room, sessionID string, missed []string) {
	log := h.logger.With().Str("room", room).Str("user", user).Strs("undelivered", missed).Logger()
	res, err := h.sessions.AbortStart(ctx, room, sessionID, missed)
	if err != nil {
		log.Error().Err(err).Msg("rolling back start failed")
		h.transport.Ephemeral(ctx, channel, user, h.notices.Failed)
		return
	}
	if res.Status != coordinator.StatusPartialFailure {
		log.Warn().Str("status", string(res.Status)).Msg("start not rolled back")
		return
	}
	if report := h.runner.Run(ctx, res.Plan); !report.OK() {
		log.Warn().Int("failed", len(report.Failures)).Msg("rollback notices partially delivered")
	}
	h.transport.Ephemeral(ctx, channel, user, res.Notice)
}

// isChannel excludes direct message conversations, whose ids start with D.
func isChannel(id string) bool {
	return id != "" && !strings.HasPrefix(id, "D")
}
