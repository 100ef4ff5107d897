// cmd/preflight/main.go
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hamed0406/uptimeviewer/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.FromEnv()

	if err := cfg.Validate(); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for f := range verrs {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			for _, f := range fields {
				fmt.Fprintf(os.Stderr, "✖ %s: %v\n", f, verrs[f])
			}
			fail("configuration invalid")
		}
		fail(err.Error())
	}

	raw := os.Getenv("URLS")
	if len(cfg.URLs) == 0 {
		warn("URLS is empty; the monitor will have nothing to probe.")
	} else {
		ok(fmt.Sprintf("URLS: %d target(s)", len(cfg.URLs)))
		if n := len(strings.Split(raw, ",")); n > len(cfg.URLs) {
			warn(fmt.Sprintf("URLS had %d empty or duplicate entries; they will be ignored.", n-len(cfg.URLs)))
		}
	}

	ok("API_ADDR=" + cfg.Addr)

	switch cfg.DBDriver {
	case config.DriverMemory:
		warn("DB_DRIVER=memory; history is lost on restart.")
	default:
		ok("DB_DRIVER=" + cfg.DBDriver + " with DATABASE_URL present")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; any origin may call the API.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if cfg.PublicRPM == 0 {
		warn("PUBLIC_RPM=0; rate limiting disabled.")
	}

	ok("preflight passed")
}
