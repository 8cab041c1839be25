package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"optionwatch/internal/chain"
	"optionwatch/internal/fetcher"
)

// Expiries prints the expiry dates the provider lists for symbol.
func (a *App) Expiries(ctx context.Context, symbol string) error {
	return listExpiries(ctx, a.newFetcher(), strings.ToUpper(strings.TrimSpace(symbol)), os.Stdout)
}

func listExpiries(ctx context.Context, lister fetcher.ExpiryLister, symbol string, out io.Writer) error {
	expiries, err := lister.ListExpiries(ctx, symbol)
	if err != nil {
		return err
	}
	if len(expiries) == 0 {
		fmt.Fprintf(out, "no expiries listed for %s\n", symbol)
		return nil
	}
	for _, e := range expiries {
		fmt.Fprintf(out, "%s\t%s\n", e.Format(chain.ExpiryLayout), e.Weekday().String()[:3])
	}
	return nil
}
