package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"joinguard-hq/warden/pkg/platform"
)

// Updates long-polls getUpdates and converts each update. The returned
// channel is closed after ctx is cancelled.
func (c *Client) Updates(ctx context.Context) (<-chan platform.Update, error) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(c.config.PollTimeout.Seconds())
	u.AllowedUpdates = []string{"message", "callback_query"}

	raw := c.api.GetUpdatesChan(u)
	out := make(chan platform.Update)

	go func() {
		defer close(out)
		defer c.api.StopReceivingUpdates()

		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-raw:
				if !ok {
					return
				}
				converted, ok := convertUpdate(&upd)
				if !ok {
					continue
				}
				select {
				case out <- converted:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	c.logger.Info("polling for updates", "timeout", c.config.PollTimeout)
	return out, nil
}

var _ platform.Source = (*Client)(nil)
