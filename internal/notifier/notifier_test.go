package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BandSentinel/internal/eligibility"
	"BandSentinel/internal/model"
)

// fakeBot records sent messages and fails the first failures sends.
type fakeBot struct {
	failures int
	sent     []tgbotapi.MessageConfig
	updates  chan tgbotapi.Update
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.failures > 0 {
		f.failures--
		return tgbotapi.Message{}, errors.New("429 too many requests")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }

func (f *fakeBot) StopReceivingUpdates() {}

func newTestNotifier(bot *fakeBot) *TelegramNotifier {
	n := newTelegramNotifier(bot, 42)
	n.backoff = time.Millisecond
	return n
}

func TestSendWithRetry_RecoversAfterFailures(t *testing.T) {
	bot := &fakeBot{failures: 2}
	n := newTestNotifier(bot)

	require.NoError(t, n.Send(context.Background(), "<b>hi</b>"))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, bot.sent[0].ParseMode)
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	bot := &fakeBot{failures: 10}
	n := newTestNotifier(bot)

	err := n.SendWithRetry(context.Background(), "x", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 retries exhausted")
	assert.Equal(t, 7, bot.failures)
}

func TestSendWithRetry_Cancelled(t *testing.T) {
	bot := &fakeBot{failures: 10}
	n := newTestNotifier(bot)
	n.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.SendWithRetry(ctx, "x", 3), context.Canceled)
}

func TestNoop(t *testing.T) {
	var n Notifier = Noop{}
	assert.NoError(t, n.Send(context.Background(), "ignored"))
}

func commandUpdate(chatID int64, text string, cmdLen int) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: cmdLen},
		},
	}}
}

func TestHandleUpdate(t *testing.T) {
	bot := &fakeBot{}
	n := newTestNotifier(bot)

	var gotCmd string
	var gotArgs []string
	handler := func(cmd string, args []string) string {
		gotCmd, gotArgs = cmd, args
		return "reply"
	}

	n.handleUpdate(context.Background(), commandUpdate(42, "/band  btc", 5), handler)
	assert.Equal(t, "band", gotCmd)
	assert.Equal(t, []string{"btc"}, gotArgs)
	require.Len(t, bot.sent, 1)
	assert.Equal(t, "reply", bot.sent[0].Text)

	// Other chats are ignored.
	gotCmd = ""
	n.handleUpdate(context.Background(), commandUpdate(7, "/status", 7), handler)
	assert.Empty(t, gotCmd)
	assert.Len(t, bot.sent, 1)
}

func TestStartPolling_StopsOnCancel(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update, 1)}
	n := newTestNotifier(bot)
	bot.updates <- commandUpdate(42, "/status", 7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.StartPolling(ctx, func(string, []string) string {
			cancel()
			return ""
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("polling did not stop")
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{64000.126, "64000.13"},
		{1, "1.00"},
		{0.012345, "0.01235"},
		{0.5, "0.5"},
		{0, "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPrice(tt.in), "FormatPrice(%v)", tt.in)
	}
}

func TestFormatRunReport(t *testing.T) {
	msg := FormatRunReport(&model.RunReport{
		RunID:           "0123456789abcdef",
		CalculationDate: time.Date(2024, 6, 25, 0, 0, 0, 0, time.UTC),
		Duration:        1234 * time.Millisecond,
		Computed:        10, Healthy: 6, Weak: 3, Insufficient: 2, Excluded: 4, Review: 1,
	})
	assert.Contains(t, msg, "2024-06-25")
	assert.Contains(t, msg, "<code>01234567</code>")
	assert.Contains(t, msg, "healthy: 6 | 🔴 weak: 3")
	assert.Contains(t, msg, "Manual review: 1")
	assert.NotContains(t, msg, "Failed")
}

func TestFormatBand(t *testing.T) {
	a := model.Asset{ID: "bitcoin", AssetMeta: model.AssetMeta{Symbol: "BTC", Name: "Bitcoin"}}
	msg := FormatBand(a, &model.BMSBResult{
		CalculationDate: time.Date(2024, 6, 25, 0, 0, 0, 0, time.UTC),
		SMA20:           114.5, EMA21: 115.01525597994768,
		SupportLower: 114.5, SupportUpper: 115.01525597994768,
		CurrentPrice: 124, PricePosition: model.AboveBand,
		SMATrend: model.Increasing, EMATrend: model.Decreasing,
		BandHealth: model.Weak, WeeksUsed: 25,
	})
	assert.Contains(t, msg, "<b>BTC</b> Bitcoin")
	assert.Contains(t, msg, "Price: 124.00 (above band)")
	assert.Contains(t, msg, "Band: 114.50 - 115.02")
	assert.Contains(t, msg, "EMA21w: 115.02 ↓")
	assert.Contains(t, msg, "🔴 weak")
}

func TestFormatExclusions(t *testing.T) {
	assert.Equal(t, "No assets excluded.", FormatExclusions(nil))

	msg := FormatExclusions([]eligibility.Rejected{
		{Asset: model.Asset{AssetMeta: model.AssetMeta{Symbol: "WBTC"}}, Reason: "explicit_wrapped"},
		{Asset: model.Asset{AssetMeta: model.AssetMeta{Symbol: "USDT"}}, Reason: "database_stablecoin"},
		{Asset: model.Asset{AssetMeta: model.AssetMeta{Symbol: "WETH"}}, Reason: "explicit_wrapped"},
	})
	assert.Contains(t, msg, "(3)")
	assert.Contains(t, msg, "<i>explicit_wrapped</i>: WBTC, WETH")
	assert.Contains(t, msg, "<i>database_stablecoin</i>: USDT")
}
