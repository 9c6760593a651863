package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"paper_trading/config"
	"paper_trading/internal/engine"
	"paper_trading/internal/exchange"
	"paper_trading/internal/ledger"
	"paper_trading/internal/storage"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
)

// Register adds the ledger commands to c.
func Register(c *subcommands.Commander) {
	c.Register(&positionsCmd{}, "ledger")
	c.Register(&aggregateCmd{}, "ledger")
	c.Register(&tradesCmd{}, "ledger")
	c.Register(&pnlCmd{}, "ledger")

	c.Register(&orderCmd{side: "buy"}, "orders")
	c.Register(&orderCmd{side: "sell"}, "orders")
	c.Register(&closeCmd{}, "orders")

	c.Register(&pricesCmd{}, "market")
	c.Register(&candlesCmd{}, "market")
}

// session is an engine over the configured ledger store. The price loop is
// never started; commands refresh prices once when they need them.
type session struct {
	cfg    *config.Config
	engine *engine.TradingEngine
	store  storage.Store
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	store, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.StorageDriver,
		Dir:         cfg.StorageDir,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	policy, err := ledger.ParseShortPolicy(cfg.ShortPolicy)
	if err != nil {
		store.Close()
		return nil, err
	}
	l := ledger.New(store, ledger.WithShortPolicy(policy))
	l.Load(ctx)

	market, err := exchange.New(cfg.PriceSource, cfg.APIURL)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &session{
		cfg:    cfg,
		engine: engine.NewTradingEngine(l, market, engine.Options{MaxPriceAge: cfg.PriceMaxAge}),
		store:  store,
	}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Warn("Failed to close store", slog.Any("err", err))
	}
}

// withSession runs fn against an open session and maps errors to an exit status.
func withSession(ctx context.Context, fn func(*session) error) subcommands.ExitStatus {
	s, err := openSession(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	if err := fn(s); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// refresh fetches mids once. Valuation falls back to n/a when the supplier
// is unreachable.
func (s *session) refresh(ctx context.Context) {
	if err := s.engine.RefreshPrices(ctx); err != nil {
		slog.Warn("Prices unavailable", slog.Any("err", err))
	}
}

func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err != nil {
		fmt.Println(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Println(md)
		return
	}
	fmt.Print(out)
}
