package notifier

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// CommandHandler answers an operator command. An empty reply sends nothing.
type CommandHandler func(command string, args []string) string

// StartPolling long-polls for operator commands from the configured chat.
// Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	log.Info("telegram command polling started")
	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			log.Info("telegram command polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.handleUpdate(ctx, update, handler)
		}
	}
}

func (t *TelegramNotifier) handleUpdate(ctx context.Context, update tgbotapi.Update, handler CommandHandler) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Chat.ID != t.chatID || !msg.IsCommand() {
		return
	}

	command := msg.Command()
	args := strings.Fields(msg.CommandArguments())
	log.WithFields(log.Fields{"command": command, "args": args}).Info("received command")

	if reply := handler(command, args); reply != "" {
		if err := t.Send(ctx, reply); err != nil {
			log.WithError(err).Error("send command reply")
		}
	}
}
