// Package directory resolves channel references to chats and join links,
// caching the answers so the per-message path does not repeat lookups.
package directory

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"joinguard-hq/warden/pkg/cache"
	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/platform"
)

// Config configures cache lifetimes.
type Config struct {
	// ChatTTL is how long a chat lookup is reused.
	// Default: 10 minutes
	ChatTTL time.Duration

	// InviteTTL is how long an exported invite link is reused.
	// Default: 1 hour
	InviteTTL time.Duration

	// MaxSize bounds each cache.
	// Default: 1,000
	MaxSize int

	// Observer receives hit and miss counts for the "chat" and
	// "invite_link" caches.
	Observer cache.Observer
}

// Directory looks chats up through the platform and caches the results.
type Directory struct {
	client platform.Client
	chats  *cache.Cache[string, platform.Chat]
	links  *cache.Cache[int64, string]
	logger *slog.Logger
}

// New creates a Directory.
func New(client platform.Client, cfg Config) *Directory {
	if cfg.ChatTTL == 0 {
		cfg.ChatTTL = 10 * time.Minute
	}
	if cfg.InviteTTL == 0 {
		cfg.InviteTTL = time.Hour
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 1000
	}
	chats := cache.Config{TTL: cfg.ChatTTL, MaxSize: cfg.MaxSize, Name: "chat", Observer: cfg.Observer}
	links := cache.Config{TTL: cfg.InviteTTL, MaxSize: cfg.MaxSize, Name: "invite_link", Observer: cfg.Observer}
	return &Directory{
		client: client,
		chats:  cache.New[string, platform.Chat](chats),
		links:  cache.New[int64, string](links),
		logger: slog.Default().With("component", "directory"),
	}
}

func idKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Lookup returns the chat ref names.
func (d *Directory) Lookup(ctx context.Context, ref channel.Ref) (platform.Chat, error) {
	if c, ok := d.chats.Get(ref.Key()); ok {
		return c, nil
	}

	c, err := d.client.GetChat(ctx, ref)
	if err != nil {
		return platform.Chat{}, err
	}

	d.chats.Set(ref.Key(), c)
	d.chats.Set(idKey(c.ID), c)
	return c, nil
}

// Resolve returns the platform id for ref.
func (d *Directory) Resolve(ctx context.Context, ref channel.Ref) (int64, error) {
	if id, ok := ref.ID(); ok {
		return id, nil
	}
	c, err := d.Lookup(ctx, ref)
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

// JoinLink returns a link a user can follow to join the channel, or "" if
// none can be obtained. Public channels get their canonical link; private
// channels get their primary invite link, exported on demand.
func (d *Directory) JoinLink(ctx context.Context, ref channel.Ref, chatID int64) string {
	if link := ref.Link(); link != "" {
		return link
	}
	if chatID == 0 {
		chatID, _ = ref.ID()
	}
	if chatID == 0 {
		return ""
	}
	if link, ok := d.links.Get(chatID); ok {
		return link
	}

	c, err := d.Lookup(ctx, channel.ID(chatID))
	if err == nil {
		if c.Username != "" {
			return channel.PublicLink(c.Username)
		}
		if c.InviteLink != "" {
			d.links.Set(chatID, c.InviteLink)
			return c.InviteLink
		}
	}

	link, err := d.client.InviteLink(ctx, chatID)
	if err != nil || link == "" {
		d.logger.Warn("no join link available",
			"channel", ref.String(),
			"chat_id", chatID,
			"error", err,
		)
		return ""
	}
	d.links.Set(chatID, link)
	return link
}

// Title returns a display name for the channel, falling back to the ref.
func (d *Directory) Title(ctx context.Context, ref channel.Ref, chatID int64) string {
	lookup := ref
	if chatID != 0 {
		lookup = channel.ID(chatID)
	}
	if c, err := d.Lookup(ctx, lookup); err == nil && c.Title != "" {
		return c.Title
	}
	return ref.String()
}

// Forget drops cached data for ref.
func (d *Directory) Forget(ref channel.Ref) {
	if c, ok := d.chats.Get(ref.Key()); ok {
		d.chats.Delete(idKey(c.ID))
		d.links.Delete(c.ID)
	}
	d.chats.Delete(ref.Key())
	if id, ok := ref.ID(); ok {
		d.links.Delete(id)
	}
}
