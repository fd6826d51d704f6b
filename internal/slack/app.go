package slack

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// BotAPI abstracts the Slack API client for testing.
type BotAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
}

// NewClient creates the Slack web API client used by the transport and the app.
func NewClient(botToken, appToken string) *slack.Client {
	return slack.New(botToken, slack.OptionAppLevelToken(appToken))
}

// App is the Slack bot application using Socket Mode.
type App struct {
	api      BotAPI
	socket   *socketmode.Client
	logger   zerolog.Logger
	handler  *Handler
	inflight sync.WaitGroup
}

// NewApp creates a new Slack bot app on client.
func NewApp(client *slack.Client, logger zerolog.Logger, handler *Handler) *App {
	socket := socketmode.New(client)
	handler.SetSocket(socket)

	return &App{
		api:     client,
		socket:  socket,
		logger:  logger.With().Str("component", "slack").Logger(),
		handler: handler,
	}
}

// Ping checks the bot token.
func (a *App) Ping(ctx context.Context) error {
	_, err := a.api.AuthTestContext(ctx)
	return err
}

// Run starts the Socket Mode event loop. Blocks until context is cancelled,
// then waits for in-flight events.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Msg("starting Slack Socket Mode connection")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-a.socket.Events:
				if !ok {
					return
				}
				a.inflight.Add(1)
				go func() {
					defer a.inflight.Done()
					a.handler.HandleEvent(context.WithoutCancel(ctx), evt)
				}()
			}
		}
	}()

	err := a.socket.RunContext(ctx)
	a.logger.Info().Msg("shutting down Slack Socket Mode")
	a.inflight.Wait()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("socket mode error: %w", err)
	}
	return nil
}
