// Package telegram implements platform.Client and platform.Source on top of
// the Telegram Bot API (github.com/go-telegram-bot-api/telegram-bot-api/v5).
//
// API failures are converted to *platform.APIError and classified from the
// Bot API's error code and description, so the engine can tell "the bot is
// not an admin there" from "the user is not a member". Calls answered with
// 429 Too Many Requests are retried a bounded number of times, honouring the
// retry_after hint.
package telegram
