// Command pollctl fills in a provider form from the terminal, polls the
// backend once and saves the report next to you.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"manual-polling-tool/internal/form"
	"manual-polling-tool/internal/poll"
	"manual-polling-tool/internal/registry"
)

type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	var sets stringList
	backend := flag.String("backend", envOr("BACKEND_URL", "http://127.0.0.1:5000"), "polling backend base URL")
	providersFile := flag.String("providers", os.Getenv("PROVIDERS_FILE"), "provider form definitions (YAML or JSON); empty uses the built-in set")
	provider := flag.String("provider", "", "provider id; prompts when empty")
	out := flag.String("out", ".", "directory for <provider>_report.json")
	lookback := flag.Int("lookback", form.DefaultLookbackDays, "default date range in days")
	timeout := flag.Duration("timeout", 0, "backend call timeout (0 = none)")
	noInput := flag.Bool("no-input", false, "do not prompt; use defaults and -set values")
	verbose := flag.Bool("v", false, "log pipeline details to stderr")
	flag.Var(&sets, "set", "field value as key=value (repeatable)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, options{
		backend:       *backend,
		providersFile: *providersFile,
		provider:      *provider,
		outDir:        *out,
		lookback:      *lookback,
		timeout:       *timeout,
		noInput:       *noInput,
		verbose:       *verbose,
		sets:          sets,
	}, &surveyPrompter{pageSize: 15}, os.Stdout, os.Stderr)
	os.Exit(code)
}

type options struct {
	backend       string
	providersFile string
	provider      string
	outDir        string
	lookback      int
	timeout       time.Duration
	noInput       bool
	verbose       bool
	sets          []string
}

// run executes one session and returns the process exit code.
func run(ctx context.Context, opts options, p prompter, stdout, stderr io.Writer) int {
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	reg, err := loadRegistry(opts.providersFile)
	if err != nil {
		fmt.Fprintln(stderr, "providers error:", err)
		return 2
	}
	client, err := poll.NewClient(opts.backend, 0, 0)
	if err != nil {
		fmt.Fprintln(stderr, "backend error:", err)
		return 2
	}

	id, err := chooseProvider(ctx, p, reg, opts.provider)
	if err != nil {
		return fail(stderr, err)
	}

	board := form.NewBoard(reg, client, form.NewDateSeeder(opts.lookback), form.Options{
		Policy:  form.PolicyReject,
		Timeout: opts.timeout,
		Logger:  logger,
	})
	ctrl, _ := board.Controller(id)
	f, _ := board.NewForm(id)

	if err := applyOverrides(f, opts.sets); err != nil {
		return fail(stderr, err)
	}
	if !opts.noInput {
		if err := fillForm(ctx, p, f); err != nil {
			return fail(stderr, err)
		}
	}

	fmt.Fprintln(stdout, form.LoadingMessage)
	outcome, err := ctrl.Submit(ctx, f.State())
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, outcome.Status.Message)
	if outcome.Report == nil {
		return 1
	}

	path, err := writeReport(opts.outDir, outcome.Report)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, summary(outcome.Report, path))
	return 0
}

func fail(stderr io.Writer, err error) int {
	if errors.Is(err, errAborted) || errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "aborted")
		return 130
	}
	fmt.Fprintln(stderr, "error:", err)
	return 1
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Default()
	}
	return registry.LoadFile(path)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
