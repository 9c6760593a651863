package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"paper_trading/internal/engine"
	"paper_trading/internal/ledger"
	"paper_trading/internal/models"
	"time"

	tele "gopkg.in/telebot.v3"
)

const requestTimeout = 15 * time.Second

type Bot struct {
	bot          *tele.Bot
	engine       *engine.TradingEngine
	authorizedID int64
	startTime    time.Time
	log          *slog.Logger
}

func NewBot(token string, authorizedID int64, engine *engine.TradingEngine) (*Bot, error) {
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:          b,
		engine:       engine,
		authorizedID: authorizedID,
		startTime:    time.Now(),
		log:          slog.With("component", "telegram"),
	}

	bot.setupHandlers()
	return bot, nil
}

// Start blocks while polling for updates.
func (b *Bot) Start() {
	b.log.Info("📱 Telegram bot started")
	b.bot.Start()
}

func (b *Bot) Stop() {
	b.bot.Stop()
}

func (b *Bot) setupHandlers() {
	// Middleware for authorization
	b.bot.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() == nil || c.Sender().ID != b.authorizedID {
				return c.Send("⛔ Unauthorized")
			}
			return next(c)
		}
	})

	// Commands
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/stats", b.handleStats)
	b.bot.Handle("/positions", b.handlePositions)
	b.bot.Handle("/aggregate", b.handleAggregate)
	b.bot.Handle("/trades", b.handleTrades)
	b.bot.Handle("/pnl", b.handlePnL)
	b.bot.Handle("/price", b.handlePrice)
	b.bot.Handle("/buy", b.handleOrder(models.SideBuy))
	b.bot.Handle("/sell", b.handleOrder(models.SideSell))
	b.bot.Handle("/preview", b.handlePreview)
	b.bot.Handle("/close", b.handleClose)

	// Buttons
	b.bot.Handle(&btnStats, b.handleStats)
	b.bot.Handle(&btnPositions, b.handlePositions)
	b.bot.Handle(&btnAggregate, b.handleAggregate)
	b.bot.Handle(&btnTrades, b.handleTrades)
	b.bot.Handle(&btnRefresh, b.handlePositions)
	b.bot.Handle(&btnCloseAll, b.handleCloseAll)
	b.bot.Handle(&btnBack, b.handleStart)
}

var (
	btnStats     = tele.Btn{Text: "📊 Stats", Unique: "stats"}
	btnPositions = tele.Btn{Text: "📋 Positions", Unique: "positions"}
	btnAggregate = tele.Btn{Text: "🧮 Exposure", Unique: "aggregate"}
	btnTrades    = tele.Btn{Text: "📅 Trades", Unique: "trades"}
	btnRefresh   = tele.Btn{Text: "🔄 Refresh", Unique: "refresh"}
	btnCloseAll  = tele.Btn{Text: "❌ Close all", Unique: "close_all"}
	btnBack      = tele.Btn{Text: "🔙 Back", Unique: "back"}
)

func (b *Bot) handleStart(c tele.Context) error {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(btnStats, btnPositions),
		menu.Row(btnAggregate, btnTrades),
	)

	msg := `🤖 *Paper trading*

/buy <coin> <qty> – open a long lot
/sell <coin> <qty> – close longs or open a short
/preview <coin> <qty> – what a sell would do
/close <id> – close one lot
/price <coin> – current mid
/pnl – unrealized P&L`

	return c.Send(msg, menu, tele.ModeMarkdown)
}

func (b *Bot) handleStats(c tele.Context) error {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(btnRefresh, btnPositions),
		menu.Row(btnBack),
	)
	return c.Send(formatStats(b.engine.GetStats(), time.Since(b.startTime)), menu, tele.ModeMarkdown)
}

func (b *Bot) handlePositions(c tele.Context) error {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(btnRefresh, btnCloseAll),
		menu.Row(btnBack),
	)
	return c.Send(formatPositions(b.engine.PositionViews(), b.engine.TotalPnL()), menu, tele.ModeMarkdown)
}

func (b *Bot) handleAggregate(c tele.Context) error {
	return c.Send(formatAggregated(b.engine.AggregatedViews()), tele.ModeMarkdown)
}

func (b *Bot) handleTrades(c tele.Context) error {
	return c.Send(formatTrades(b.engine.TradeHistory(10)), tele.ModeMarkdown)
}

func (b *Bot) handlePnL(c tele.Context) error {
	total := b.engine.TotalPnL()
	return c.Send(fmt.Sprintf("%s Unrealized P&L: %s", pnlEmoji(total), formatUSD(total)))
}

func (b *Bot) handlePrice(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /price <coin>")
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	price, err := b.engine.Price(ctx, args[0])
	if err != nil {
		return c.Send("⚠️ " + err.Error())
	}
	return c.Send(fmt.Sprintf("💱 %s: %g", args[0], price))
}

func (b *Bot) handleOrder(side models.Side) tele.HandlerFunc {
	return func(c tele.Context) error {
		symbol, qty, err := parseOrderArgs(c.Args())
		if errors.Is(err, errUsage) {
			return c.Send(fmt.Sprintf("Usage: /%s <coin> <qty>", side))
		}
		if err != nil {
			return c.Send("⚠️ " + err.Error())
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if _, err := b.engine.SubmitTrade(ctx, symbol, side, qty); err != nil {
			b.log.Warn("Order rejected", slog.String("symbol", symbol), slog.Any("err", err))
			return c.Send("❌ " + err.Error())
		}
		// Confirmation is sent by the engine callback.
		return nil
	}
}

func (b *Bot) handlePreview(c tele.Context) error {
	symbol, qty, err := parseOrderArgs(c.Args())
	if err != nil {
		return c.Send("Usage: /preview <coin> <qty>")
	}
	p := b.engine.SellPreview(symbol, qty)

	msg := fmt.Sprintf("🔎 Sell %g %s\nAvailable: %g", p.Quantity, p.Symbol, p.Available)
	if p.IsShortSell {
		msg += fmt.Sprintf("\n📉 Short sell: %g", p.ShortQuantity)
	}
	if p.InsufficientFunds {
		msg += "\n⚠️ Exceeds long exposure"
	}
	return c.Send(msg)
}

func (b *Bot) handleClose(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /close <position id>")
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if _, err := b.engine.ClosePositionByID(ctx, args[0]); err != nil {
		switch {
		case errors.Is(err, ledger.ErrPositionNotFound):
			return c.Send("❓ Unknown position")
		case errors.Is(err, ledger.ErrPositionClosed):
			return c.Send("ℹ️ Position already closed")
		default:
			return c.Send("❌ " + err.Error())
		}
	}
	// Confirmation is sent by the engine callback.
	return nil
}

func (b *Bot) handleCloseAll(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	trades, err := b.engine.CloseAllPositions(ctx)
	if err != nil {
		return c.Send(fmt.Sprintf("⚠️ Closed %d position(s), some failed: %v", len(trades), err))
	}
	return c.Send(fmt.Sprintf("✅ Closed %d position(s)", len(trades)))
}

// SendExecution notifies the operator about an executed order.
func (b *Bot) SendExecution(exec *models.Execution) {
	b.notify(formatExecution(exec))
}

// SendClose notifies the operator about a manually closed lot.
func (b *Bot) SendClose(trade models.Trade) {
	b.notify(formatClose(trade))
}

func (b *Bot) notify(msg string) {
	if _, err := b.bot.Send(&tele.User{ID: b.authorizedID}, msg, tele.ModeMarkdown); err != nil {
		b.log.Warn("Failed to send notification", slog.Any("err", err))
	}
}
