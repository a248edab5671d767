// Package fetcher retrieves registry and operator web pages.
package fetcher

import (
	"context"

	"github.com/rotisserie/eris"
)

// Fetcher retrieves a page as decoded HTML. label names the caller in logs
// and metrics ("sunbiz", "pos_site", ...).
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, label string) (string, error)
}

// ErrBlocked is returned when a page is an anti-bot challenge. It is never retried.
var ErrBlocked = eris.New("fetcher: blocked by anti-bot protection")
