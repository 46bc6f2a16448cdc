// Command auditview queries the audit trail of an accessdesk database from
// the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/charlesng35/accessdesk/internal/app"
	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/database"
	"github.com/charlesng35/accessdesk/internal/store"
)

const usage = `usage: auditview [-config dir] <command> [flags]

commands:
  events   list events, newest first
  summary  aggregate the trailing window
  export   write matching events as NDJSON
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("auditview", flag.ContinueOnError)
	global.SetOutput(out)
	global.Usage = func() { fmt.Fprint(out, usage) }
	configDir := global.String("config", "", "Configuration directory")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("a command is required")
	}

	_ = godotenv.Load()
	var paths []string
	if dir := strings.TrimSpace(*configDir); dir != "" {
		paths = append(paths, dir)
	}
	cfg, err := app.LoadConfig(paths...)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.ConnectionConfig())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close(db)

	reader := audit.NewReader(store.New(db).AuditEvents)
	return dispatch(ctx, reader, global.Arg(0), global.Args()[1:], out)
}

func dispatch(ctx context.Context, reader *audit.Reader, command string, args []string, out io.Writer) error {
	switch command {
	case "events":
		fs := flag.NewFlagSet("events", flag.ContinueOnError)
		fs.SetOutput(out)
		ff := bindFilterFlags(fs)
		limit := fs.Int("limit", 25, "Maximum events to show")
		offset := fs.Int("offset", 0, "Events to skip")
		if err := fs.Parse(args); err != nil {
			return err
		}
		filter, err := ff.filter()
		if err != nil {
			return err
		}
		result, err := reader.Query(ctx, filter, audit.Page{Limit: *limit, Offset: *offset})
		if err != nil {
			return err
		}
		renderEvents(out, result)
		return nil

	case "summary":
		fs := flag.NewFlagSet("summary", flag.ContinueOnError)
		fs.SetOutput(out)
		days := fs.Int("days", 7, "Window in days")
		if err := fs.Parse(args); err != nil {
			return err
		}
		summary, err := reader.Summarize(ctx, *days)
		if err != nil {
			return err
		}
		renderSummary(out, summary)
		return nil

	case "export":
		fs := flag.NewFlagSet("export", flag.ContinueOnError)
		fs.SetOutput(out)
		ff := bindFilterFlags(fs)
		if err := fs.Parse(args); err != nil {
			return err
		}
		filter, err := ff.filter()
		if err != nil {
			return err
		}
		_, err = reader.ExportNDJSON(ctx, out, filter)
		return err
	}
	fmt.Fprint(out, usage)
	return fmt.Errorf("unknown command %q", command)
}

type filterFlags struct {
	user, eventType, severity, minSeverity, resource, since, until string
}

func bindFilterFlags(fs *flag.FlagSet) *filterFlags {
	f := &filterFlags{}
	fs.StringVar(&f.user, "user", "", "Employee email")
	fs.StringVar(&f.eventType, "type", "", "Comma separated event types")
	fs.StringVar(&f.severity, "severity", "", "Comma separated severities")
	fs.StringVar(&f.minSeverity, "min-severity", "", "Lowest severity to include")
	fs.StringVar(&f.resource, "resource", "", "Resource as type:name or type")
	fs.StringVar(&f.since, "since", "", "Start date (YYYY-MM-DD or RFC 3339)")
	fs.StringVar(&f.until, "until", "", "End date (YYYY-MM-DD or RFC 3339)")
	return f
}

func (f *filterFlags) filter() (audit.Filter, error) {
	out := audit.Filter{UserEmail: strings.ToLower(strings.TrimSpace(f.user))}

	for _, t := range splitList(f.eventType) {
		out.EventTypes = append(out.EventTypes, audit.EventType(strings.ToUpper(t)))
	}
	for _, raw := range splitList(f.severity) {
		sev, ok := audit.ParseSeverity(raw)
		if !ok {
			return audit.Filter{}, fmt.Errorf("unknown severity %q", raw)
		}
		out.Severities = append(out.Severities, sev)
	}
	if raw := strings.TrimSpace(f.minSeverity); raw != "" {
		sev, ok := audit.ParseSeverity(raw)
		if !ok {
			return audit.Filter{}, fmt.Errorf("unknown severity %q", raw)
		}
		out.MinSeverity = sev
	}
	if resource := strings.TrimSpace(f.resource); resource != "" {
		out.ResourceType, out.ResourceName, _ = strings.Cut(resource, ":")
	}

	var err error
	if out.Since, err = parseDate(f.since); err != nil {
		return audit.Filter{}, err
	}
	if out.Until, err = parseDate(f.until); err != nil {
		return audit.Filter{}, err
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", raw)
}
