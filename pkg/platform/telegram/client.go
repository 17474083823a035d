package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/platform"
)

// Config configures the Telegram client.
type Config struct {
	// Token is the bot token from @BotFather.
	Token string

	// APIEndpoint overrides the Bot API endpoint format, e.g. for a local
	// Bot API server. Empty uses the public endpoint.
	APIEndpoint string

	// Debug logs raw API traffic.
	Debug bool

	// PollTimeout is the long-polling timeout for getUpdates.
	// Default: 30 seconds
	PollTimeout time.Duration

	// MaxRetries is how many times a rate-limited call is retried.
	// Default: 2
	MaxRetries int

	// MaxRetryWait caps a single retry_after wait.
	// Default: 10 seconds
	MaxRetryWait time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollTimeout <= 0 {
		c.PollTimeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.MaxRetryWait <= 0 {
		c.MaxRetryWait = 10 * time.Second
	}
}

// Client talks to the Bot API.
type Client struct {
	api    *tgbotapi.BotAPI
	config Config
	logger *slog.Logger
}

// New connects to the Bot API and verifies the token with getMe.
func New(config Config) (*Client, error) {
	if config.Token == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	config.applyDefaults()

	var (
		api *tgbotapi.BotAPI
		err error
	)
	if config.APIEndpoint != "" {
		api, err = tgbotapi.NewBotAPIWithAPIEndpoint(config.Token, config.APIEndpoint)
	} else {
		api, err = tgbotapi.NewBotAPI(config.Token)
	}
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", classify("getMe", err))
	}
	api.Debug = config.Debug

	logger := slog.Default().With("component", "platform.telegram")
	logger.Info("connected to telegram",
		"bot_id", api.Self.ID,
		"username", api.Self.UserName,
	)

	return &Client{api: api, config: config, logger: logger}, nil
}

// Username returns the bot's username without "@".
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// do runs fn, retrying while the platform answers 429.
func (c *Client) do(ctx context.Context, method string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := classify(method, fn())
		if err == nil {
			return nil
		}

		var apiErr *platform.APIError
		if !errors.As(err, &apiErr) || !errors.Is(err, platform.ErrRateLimited) || attempt >= c.config.MaxRetries {
			return err
		}

		wait := apiErr.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		if wait > c.config.MaxRetryWait {
			return err
		}

		c.logger.Warn("rate limited by platform, retrying",
			"method", method,
			"retry_after", wait,
			"attempt", attempt+1,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) Self(ctx context.Context) (platform.User, error) {
	var u tgbotapi.User
	err := c.do(ctx, "getMe", func() (err error) {
		u, err = c.api.GetMe()
		return err
	})
	if err != nil {
		return platform.User{}, err
	}
	return convertUser(&u), nil
}

func (c *Client) GetChat(ctx context.Context, ref channel.Ref) (platform.Chat, error) {
	var chat tgbotapi.Chat
	err := c.do(ctx, "getChat", func() (err error) {
		chat, err = c.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: chatConfig(ref)})
		return err
	})
	if err != nil {
		return platform.Chat{}, err
	}
	return convertChat(&chat), nil
}

func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (platform.ChatMember, error) {
	var m tgbotapi.ChatMember
	err := c.do(ctx, "getChatMember", func() (err error) {
		m, err = c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
		})
		return err
	})
	if err != nil {
		return platform.ChatMember{}, err
	}
	return convertMember(userID, &m), nil
}

func (c *Client) InviteLink(ctx context.Context, chatID int64) (string, error) {
	var link string
	err := c.do(ctx, "exportChatInviteLink", func() (err error) {
		link, err = c.api.GetInviteLink(tgbotapi.ChatInviteLinkConfig{
			ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		})
		return err
	})
	return link, err
}

func (c *Client) Restrict(ctx context.Context, chatID, userID int64, perms platform.Permissions, until time.Time) error {
	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		Permissions:      convertPermissions(perms),
	}
	if !until.IsZero() {
		cfg.UntilDate = until.Unix()
	}
	return c.do(ctx, "restrictChatMember", func() error {
		_, err := c.api.Request(cfg)
		return err
	})
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return c.do(ctx, "deleteMessage", func() error {
		_, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
		return err
	})
}

func (c *Client) SendMessage(ctx context.Context, msg platform.OutgoingMessage) (int, error) {
	out := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	if msg.HTML {
		out.ParseMode = tgbotapi.ModeHTML
	}
	out.ReplyToMessageID = msg.ReplyTo
	out.DisableNotification = msg.Silent
	out.DisableWebPagePreview = true
	if len(msg.Keyboard) > 0 {
		out.ReplyMarkup = convertKeyboard(msg.Keyboard)
	}

	var sent tgbotapi.Message
	err := c.do(ctx, "sendMessage", func() (err error) {
		sent, err = c.api.Send(out)
		return err
	})
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb platform.Keyboard) error {
	var edit tgbotapi.EditMessageTextConfig
	if len(kb) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, convertKeyboard(kb))
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	edit.ParseMode = tgbotapi.ModeHTML
	return c.do(ctx, "editMessageText", func() error {
		_, err := c.api.Request(edit)
		return err
	})
}

func (c *Client) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	var id tgbotapi.MessageID
	err := c.do(ctx, "copyMessage", func() (err error) {
		id, err = c.api.CopyMessage(tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID))
		return err
	})
	if err != nil {
		return 0, err
	}
	return id.MessageID, nil
}

func (c *Client) PinMessage(ctx context.Context, chatID int64, messageID int, silent bool) error {
	return c.do(ctx, "pinChatMessage", func() error {
		_, err := c.api.Request(tgbotapi.PinChatMessageConfig{
			ChatID:              chatID,
			MessageID:           messageID,
			DisableNotification: silent,
		})
		return err
	})
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cfg := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cfg = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	return c.do(ctx, "answerCallbackQuery", func() error {
		_, err := c.api.Request(cfg)
		return err
	})
}

func chatConfig(ref channel.Ref) tgbotapi.ChatConfig {
	if h, ok := ref.Handle(); ok {
		return tgbotapi.ChatConfig{SuperGroupUsername: "@" + h}
	}
	id, _ := ref.ID()
	return tgbotapi.ChatConfig{ChatID: id}
}

var _ platform.Client = (*Client)(nil)
