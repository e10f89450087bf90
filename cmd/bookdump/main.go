package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"orderbook-viewer/internal/config"
	"orderbook-viewer/internal/depth"
	"orderbook-viewer/internal/feed"
)

func main() {
	url := flag.String("url", config.Default().FeedURL, "feed websocket URL")
	market := flag.String("market", "PI_XBTUSD", "product id to subscribe")
	ticket := flag.String("ticket", "0.5", "ticket size used to group price levels")
	settle := flag.Duration("settle", 2*time.Second, "how long to keep applying deltas after the snapshot")
	asJSON := flag.Bool("json", false, "print the view as JSON")
	flag.Parse()

	ts, err := decimal.NewFromString(*ticket)
	if err != nil || !ts.IsPositive() {
		log.Fatalf("--ticket must be a positive number, got %q", *ticket)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	f := feed.NewCryptoFacilitiesFeed(*url, config.Default().FeedName, logger)
	if err := f.SubscribeMarket(*market); err != nil {
		log.Fatal(err)
	}
	go f.Run(ctx, func(bool) {})

	book, err := collect(ctx, f, *settle)
	cancel()
	f.Close()
	if err != nil {
		log.Fatalf("read book: %v", err)
	}

	v := book.View(ts)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	printView(os.Stdout, *market, ts, v)
}

// collect waits for a snapshot, then applies deltas until settle elapses.
func collect(ctx context.Context, f feed.DepthFeed, settle time.Duration) (*depth.Store, error) {
	book := depth.NewStore()
	var deadline <-chan time.Time
	for {
		select {
		case up := <-f.Updates():
			if up.Kind == depth.Snapshot {
				book.Apply(up)
				if deadline == nil {
					deadline = time.After(settle)
				}
				continue
			}
			if deadline != nil {
				book.Apply(up)
			}
		case err := <-f.Errors():
			return nil, err
		case <-deadline:
			return book, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("no snapshot before timeout: %w", ctx.Err())
		}
	}
}

func printView(w io.Writer, market string, ticket decimal.Decimal, v depth.View) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\tgroup %s\t\t\t\n", market, ticket)
	fmt.Fprintln(tw, "PRICE\tSIZE\tTOTAL\tDEPTH%\t")
	for _, r := range v.Asks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t\n", r.Price, r.Size, r.Total, r.Depth)
	}
	fmt.Fprintln(tw, "----\t----\t----\t----\t")
	for _, r := range v.Bids {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t\n", r.Price, r.Size, r.Total, r.Depth)
	}
	_ = tw.Flush()
}
