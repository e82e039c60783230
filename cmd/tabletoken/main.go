// Command tabletoken mints the signed QR links printed on restaurant tables.
//
//	TABLE_TOKEN_SECRET=... tabletoken -tenant pizzeria -tables 1-12 -base https://order.example.com
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/utafrali/TableOrder/pkg/logger"
	"github.com/utafrali/TableOrder/pkg/middleware"
	"github.com/utafrali/TableOrder/pkg/slug"
)

func main() {
	var (
		tenant = flag.String("tenant", "", "Restaurant slug")
		tables = flag.String("tables", "", "Table number or inclusive range, e.g. 4 or 1-12")
		base   = flag.String("base", "", "Base URL of the guest web app")
		ttl    = flag.Duration("ttl", 0, "Token lifetime; 0 never expires")
	)
	flag.Parse()

	log := logger.New("tabletoken", "info")

	secret := os.Getenv("TABLE_TOKEN_SECRET")
	if len(secret) < 32 {
		log.Error("TABLE_TOKEN_SECRET must be set to at least 32 bytes")
		os.Exit(1)
	}
	if *tenant == "" || *tables == "" || *base == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(os.Stdout, []byte(secret), *base, *tenant, *tables, *ttl, time.Now()); err != nil {
		log.Error("failed to mint table links", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run writes one "table<TAB>link" line per table.
func run(w io.Writer, secret []byte, base, tenant, tables string, ttl time.Duration, now time.Time) error {
	normalized := slug.Generate(tenant)
	if normalized == "" {
		return fmt.Errorf("tenant %q has no usable characters", tenant)
	}
	tenant = normalized
	first, last, err := parseTables(tables)
	if err != nil {
		return err
	}

	for table := first; table <= last; table++ {
		token, err := middleware.MintTableToken(secret, tenant, table, ttl, now)
		if err != nil {
			return fmt.Errorf("mint token for table %d: %w", table, err)
		}
		link, err := qrLink(base, tenant, table, token)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%d\t%s\n", table, link); err != nil {
			return err
		}
	}
	return nil
}

func parseTables(spec string) (first, last int, err error) {
	lo, hi, isRange := strings.Cut(spec, "-")
	first, err = strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || first <= 0 {
		return 0, 0, fmt.Errorf("invalid table %q", lo)
	}
	last = first
	if isRange {
		last, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil || last < first {
			return 0, 0, fmt.Errorf("invalid table range %q", spec)
		}
	}
	return first, last, nil
}

// qrLink builds <base>/<tenant>/<table>?t=<token>.
func qrLink(base, tenant string, table int, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", base)
	}
	u = u.JoinPath(tenant, strconv.Itoa(table))
	u.RawQuery = url.Values{middleware.TableTokenQuery: []string{token}}.Encode()
	return u.String(), nil
}
