package bot

import (
	"context"
	"errors"
	"fmt"

	"joinguard-hq/warden/pkg/broadcast"
	"joinguard-hq/warden/pkg/platform"
)

func isBroadcastData(data string) bool {
	_, _, ok := broadcast.ParseCallback(data)
	return ok
}

func (b *Bot) handleBroadcastCallback(ctx context.Context, cb *platform.Callback) error {
	sessionID, action, _ := broadcast.ParseCallback(cb.Data)
	operator := cb.From.ID

	if !b.isOperator(operator) {
		return b.client.AnswerCallback(ctx, cb.ID, "Not allowed.", true)
	}

	var (
		sess broadcast.Session
		err  error
	)
	switch action {
	case broadcast.ActionGroups, broadcast.ActionUsers, broadcast.ActionBoth:
		sess, err = b.sessions.ChooseTarget(operator, sessionID, broadcast.Target(action))
	case broadcast.ActionPin, broadcast.ActionNoPin:
		sess, err = b.sessions.ChoosePin(operator, sessionID, action == broadcast.ActionPin)
	case broadcast.ActionCancel:
		if err := b.sessions.Cancel(operator, sessionID); err != nil {
			return b.answerSessionError(ctx, cb, err)
		}
		b.answer(ctx, cb, "Cancelled.")
		return b.client.EditMessage(ctx, cb.ChatID, cb.MessageID, "Broadcast cancelled.", nil)
	default:
		b.answer(ctx, cb, "")
		return nil
	}
	if err != nil {
		return b.answerSessionError(ctx, cb, err)
	}

	if sess.State == broadcast.ChoosingPin {
		b.answer(ctx, cb, "")
		text, kb := broadcast.PinMenu(sess.ID)
		return b.client.EditMessage(ctx, cb.ChatID, cb.MessageID, text, kb)
	}
	return b.launch(ctx, cb, sess)
}

// launch resolves the job and runs it in the background, editing the menu
// message with progress and the final report.
func (b *Bot) launch(ctx context.Context, cb *platform.Callback, sess broadcast.Session) error {
	job, err := b.broadcasts.Start(ctx, sess)
	if err != nil {
		b.sessions.Finish(sess.OperatorID, sess.ID)
		b.answer(ctx, cb, "Could not start the broadcast.")
		return fmt.Errorf("start broadcast: %w", err)
	}
	b.answer(ctx, cb, "Broadcast started.")

	chatID, menuID := cb.ChatID, cb.MessageID
	b.edit(ctx, chatID, menuID, fmt.Sprintf("📣 Broadcasting to %d recipients…", len(job.Recipients)))

	b.jobs.Add(1)
	go func() {
		defer b.jobs.Done()
		defer b.sessions.Finish(sess.OperatorID, sess.ID)

		jobCtx := b.base
		rep := b.broadcasts.Run(jobCtx, job, func(r broadcast.Report) {
			if !r.Done() {
				b.edit(context.WithoutCancel(jobCtx), chatID, menuID, r.Progress())
			}
		})
		b.edit(context.WithoutCancel(jobCtx), chatID, menuID, rep.Summary())
	}()
	return nil
}

func (b *Bot) answerSessionError(ctx context.Context, cb *platform.Callback, err error) error {
	switch {
	case errors.Is(err, broadcast.ErrNoSession), errors.Is(err, broadcast.ErrSessionExpired):
		b.answer(ctx, cb, "This broadcast selection has expired. Send /broadcast again.")
		return nil
	case errors.Is(err, broadcast.ErrWrongState), errors.Is(err, broadcast.ErrSendInProgress):
		b.answer(ctx, cb, "Already in progress.")
		return nil
	default:
		b.answer(ctx, cb, "Something went wrong.")
		return err
	}
}

func (b *Bot) answer(ctx context.Context, cb *platform.Callback, text string) {
	if err := b.client.AnswerCallback(ctx, cb.ID, text, false); err != nil {
		b.logger.Debug("failed to answer callback", "error", err)
	}
}

func (b *Bot) edit(ctx context.Context, chatID int64, messageID int, text string) {
	if err := b.client.EditMessage(ctx, chatID, messageID, text, nil); err != nil {
		b.logger.Debug("failed to edit broadcast status",
			"chat_id", chatID,
			"message_id", messageID,
			"error", err,
		)
	}
}
