package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"paper_trading/internal/models"
	"strconv"

	"github.com/google/subcommands"
)

type positionsCmd struct {
	all     bool
	offline bool
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "list position lots with their unrealized PnL" }
func (*positionsCmd) Usage() string {
	return `papertrade positions [-all] [-offline]

  Lists the open lots valued at the current mid. With -all, closed lots are
  listed too (without valuation).
`
}

func (p *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&p.all, "all", false, "Include closed lots.")
	f.BoolVar(&p.offline, "offline", false, "Do not fetch prices.")
}

func (p *positionsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withSession(ctx, func(s *session) error {
		if p.all {
			printMarkdown(lotsMarkdown(s.engine.Ledger().Positions()))
			return nil
		}
		if !p.offline {
			s.refresh(ctx)
		}
		printMarkdown(positionsMarkdown(s.engine.PositionViews(), s.engine.TotalPnL()))
		return nil
	})
}

type aggregateCmd struct {
	offline bool
}

func (*aggregateCmd) Name() string     { return "aggregate" }
func (*aggregateCmd) Synopsis() string { return "show net exposure per symbol" }
func (*aggregateCmd) Usage() string {
	return `papertrade aggregate [-offline]
`
}

func (p *aggregateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&p.offline, "offline", false, "Do not fetch prices.")
}

func (p *aggregateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withSession(ctx, func(s *session) error {
		if !p.offline {
			s.refresh(ctx)
		}
		printMarkdown(aggregateMarkdown(s.engine.AggregatedViews()))
		return nil
	})
}

type tradesCmd struct {
	limit int
}

func (*tradesCmd) Name() string     { return "trades" }
func (*tradesCmd) Synopsis() string { return "show the trade history, newest first" }
func (*tradesCmd) Usage() string {
	return `papertrade trades [-n <count>]
`
}

func (p *tradesCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&p.limit, "n", 20, "Number of trades to show (0 for all).")
}

func (p *tradesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withSession(ctx, func(s *session) error {
		printMarkdown(tradesMarkdown(s.engine.TradeHistory(p.limit)))
		return nil
	})
}

type pnlCmd struct{}

func (*pnlCmd) Name() string     { return "pnl" }
func (*pnlCmd) Synopsis() string { return "print the total unrealized PnL" }
func (*pnlCmd) Usage() string {
	return `papertrade pnl
`
}
func (*pnlCmd) SetFlags(*flag.FlagSet) {}

func (*pnlCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withSession(ctx, func(s *session) error {
		if err := s.engine.RefreshPrices(ctx); err != nil {
			return fmt.Errorf("fetch prices: %w", err)
		}
		fmt.Println(formatUSD(s.engine.TotalPnL()))
		return nil
	})
}

// orderCmd submits a buy or sell at the current mid.
type orderCmd struct {
	side string
}

func (c *orderCmd) Name() string     { return c.side }
func (c *orderCmd) Synopsis() string { return c.side + " a quantity of a coin at the current mid" }
func (c *orderCmd) Usage() string {
	return fmt.Sprintf(`papertrade %s <coin> <quantity>
`, c.side)
}
func (*orderCmd) SetFlags(*flag.FlagSet) {}

func (c *orderCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	qty, err := strconv.ParseFloat(f.Arg(1), 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid quantity %q\n", f.Arg(1))
		return subcommands.ExitUsageError
	}
	return withSession(ctx, func(s *session) error {
		exec, err := s.engine.SubmitTrade(ctx, f.Arg(0), models.Side(c.side), qty)
		if err != nil {
			return err
		}
		printMarkdown(executionMarkdown(exec))
		return nil
	})
}

type closeCmd struct{}

func (*closeCmd) Name() string     { return "close" }
func (*closeCmd) Synopsis() string { return "close one lot at the current mid" }
func (*closeCmd) Usage() string {
	return `papertrade close <position id>
`
}
func (*closeCmd) SetFlags(*flag.FlagSet) {}

func (c *closeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return withSession(ctx, func(s *session) error {
		trade, err := s.engine.ClosePositionByID(ctx, f.Arg(0))
		if err != nil {
			return err
		}
		printMarkdown(tradesMarkdown([]models.Trade{trade}))
		return nil
	})
}

type pricesCmd struct{}

func (*pricesCmd) Name() string     { return "prices" }
func (*pricesCmd) Synopsis() string { return "print the mids of the watchlist" }
func (*pricesCmd) Usage() string {
	return `papertrade prices [coin...]

  Without arguments the configured watchlist is used.
`
}
func (*pricesCmd) SetFlags(*flag.FlagSet) {}

func (*pricesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withSession(ctx, func(s *session) error {
		coins := f.Args()
		if len(coins) == 0 {
			coins = s.cfg.Watchlist
		}
		if err := s.engine.RefreshPrices(ctx); err != nil {
			return fmt.Errorf("fetch prices: %w", err)
		}
		prices, _ := s.engine.Prices()
		printMarkdown(pricesMarkdown(coins, prices))
		return nil
	})
}

type candlesCmd struct {
	interval string
	hours    int
}

func (*candlesCmd) Name() string     { return "candles" }
func (*candlesCmd) Synopsis() string { return "summarize recent candles of a coin" }
func (*candlesCmd) Usage() string {
	return `papertrade candles [-i <interval>] [-h <hours>] [coin]

  Without a coin the configured default symbol is used.
`
}

func (p *candlesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.interval, "i", "1h", "Candle interval.")
	f.IntVar(&p.hours, "h", 24, "Hours of history.")
}

func (p *candlesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withSession(ctx, func(s *session) error {
		coin := s.cfg.DefaultSymbol
		if f.NArg() > 0 {
			coin = f.Arg(0)
		}
		_, summary, err := s.engine.Candles(ctx, coin, p.interval, p.hours)
		if err != nil {
			return err
		}
		printMarkdown(summaryMarkdown(summary))
		return nil
	})
}
