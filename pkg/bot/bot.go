package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"sync"

	"joinguard-hq/warden/pkg/broadcast"
	"joinguard-hq/warden/pkg/enforcement"
	"joinguard-hq/warden/pkg/platform"
	"joinguard-hq/warden/pkg/policy"
	"joinguard-hq/warden/pkg/store"
)

// Deps are the services the bot routes to.
type Deps struct {
	Client     platform.Client
	Engine     *enforcement.Engine
	Policies   *policy.Service
	Store      store.Backend
	Sessions   *broadcast.Sessions
	Broadcasts *broadcast.Coordinator

	// IsOperator gates /stats and /broadcast.
	IsOperator func(userID int64) bool

	// BaseContext is the parent of background broadcast jobs. Cancelling it
	// interrupts running broadcasts. Default: context.Background()
	BaseContext context.Context
}

// Bot handles updates.
type Bot struct {
	client     platform.Client
	engine     *enforcement.Engine
	policies   *policy.Service
	store      store.Backend
	sessions   *broadcast.Sessions
	broadcasts *broadcast.Coordinator
	isOperator func(int64) bool
	base       context.Context
	commands   map[string]commandFunc
	jobs       sync.WaitGroup
	logger     *slog.Logger
}

// New creates a Bot.
func New(deps Deps) *Bot {
	b := &Bot{
		client:     deps.Client,
		engine:     deps.Engine,
		policies:   deps.Policies,
		store:      deps.Store,
		sessions:   deps.Sessions,
		broadcasts: deps.Broadcasts,
		isOperator: deps.IsOperator,
		base:       deps.BaseContext,
		logger:     slog.Default().With("component", "bot"),
	}
	if b.isOperator == nil {
		b.isOperator = func(int64) bool { return false }
	}
	if b.base == nil {
		b.base = context.Background()
	}
	b.commands = b.commandTable()
	return b
}

// Handle implements Handler.
func (b *Bot) Handle(ctx context.Context, u platform.Update) error {
	switch {
	case u.Message != nil && u.Message.IsCommand():
		return b.handleCommand(ctx, u.Message)
	case u.Message != nil:
		_, err := b.engine.HandleMessage(ctx, u.Message)
		return err
	case u.Callback != nil:
		return b.handleCallback(ctx, u.Callback)
	default:
		return nil
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *platform.Callback) error {
	switch {
	case enforcement.IsVerifyData(cb.Data):
		_, err := b.engine.HandleVerify(ctx, cb)
		return err
	case isBroadcastData(cb.Data):
		return b.handleBroadcastCallback(ctx, cb)
	default:
		return b.client.AnswerCallback(ctx, cb.ID, "", false)
	}
}

// Wait blocks until background broadcast jobs have finished.
func (b *Bot) Wait() {
	b.jobs.Wait()
}

// reply sends an HTML message to the chat msg came from, threaded under it.
func (b *Bot) reply(ctx context.Context, msg *platform.Message, text string) error {
	_, err := b.client.SendMessage(ctx, platform.OutgoingMessage{
		ChatID:  msg.Chat.ID,
		Text:    text,
		HTML:    true,
		ReplyTo: msg.ID,
	})
	if err != nil {
		return fmt.Errorf("reply in chat %d: %w", msg.Chat.ID, err)
	}
	return nil
}

// replyError shows user errors verbatim and hides everything else.
func (b *Bot) replyError(ctx context.Context, msg *platform.Message, err error) error {
	if policy.IsUserError(err) || errors.Is(err, broadcast.ErrSendInProgress) {
		return b.reply(ctx, msg, "❌ "+html.EscapeString(err.Error()))
	}
	if replyErr := b.reply(ctx, msg, "❌ Something went wrong. Please try again later."); replyErr != nil {
		b.logger.Warn("failed to report error", "error", replyErr)
	}
	return err
}
