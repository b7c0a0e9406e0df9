// Command runharness runs a program under an overridden environment and
// checks its exit status against an expectation.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/deixis/runharness"
	"github.com/deixis/runharness/harness"
	"github.com/deixis/runharness/internal/config"
	hmcp "github.com/deixis/runharness/internal/mcp"
	"github.com/deixis/runharness/internal/report"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("runharness: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "run":
		var ok bool
		ok, err = runMain(args)
		if err == nil && !ok {
			os.Exit(1)
		}
	case "mcp":
		err = mcpMain(args)
	case "version":
		fmt.Println(runharness.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "runharness: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: runharness <command> [flags] [args]

Commands:
  run         Run a program and check its exit status
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "runharness <command> -h" for command-specific flags.`)
}

// --- run ---

// envFlag collects repeated -env KEY=VALUE flags.
type envFlag map[string]string

func (f envFlag) String() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (f envFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("want KEY=VALUE, got %q", s)
	}
	f[k] = v
	return nil
}

// runOptions are the parsed flags of the run command.
type runOptions struct {
	timeout time.Duration
	json    bool
	verbose bool
	req     harness.Request
}

func parseRunFlags(args []string) (*runOptions, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	shouldFail := fs.Bool("shouldfail", false, "expect a non-zero exit status")
	timeoutFlag := fs.Duration("timeout", 0, "override configured timeout (e.g. 30s)")
	jsonFlag := fs.Bool("json", false, "output the run report as JSON")
	verboseFlag := fs.Bool("v", false, "print captured output on success too")
	envFile := fs.String("env-file", "", "read environment overrides from a dotenv file")
	env := envFlag{}
	fs.Var(env, "env", "environment override KEY=VALUE (repeatable)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() == 0 {
		return nil, errors.New("run: missing executable")
	}

	overrides := map[string]string{}
	if *envFile != "" {
		fileEnv, err := godotenv.Read(*envFile)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", *envFile, err)
		}
		for k, v := range fileEnv {
			overrides[k] = v
		}
	}
	// Flags win over the file.
	for k, v := range env {
		overrides[k] = v
	}

	return &runOptions{
		timeout: *timeoutFlag,
		json:    *jsonFlag,
		verbose: *verboseFlag,
		req: harness.Request{
			Executable: fs.Arg(0),
			Args:       fs.Args()[1:],
			Env:        overrides,
			ShouldFail: *shouldFail,
		},
	}, nil
}

// runMain reports whether the run matched its expected outcome.
func runMain(args []string) (bool, error) {
	opts, err := parseRunFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, nil
		}
		return false, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	workspace, err := os.Getwd()
	if err != nil {
		return false, fmt.Errorf("determining workspace: %w", err)
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		return false, fmt.Errorf("loading config: %w", err)
	}

	var logger *log.Logger
	if opts.verbose {
		logger = log.New(os.Stderr, "runharness: ", 0)
	}
	h := loaded.Config.Harness(workspace, opts.timeout, logger)

	var rep *report.RunReport
	hd, err := h.Start(ctx, opts.req)
	if err != nil {
		rep = report.FromStartError(uuid.New().String(), opts.req, err)
	} else {
		rep = report.FromHandle(hd, hd.Wait(ctx))
	}

	if opts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return false, err
		}
	} else {
		fmt.Print(formatRunCLI(rep, opts.verbose))
	}
	return rep.OK(), nil
}

func formatRunCLI(r *report.RunReport, verbose bool) string {
	var b []byte
	w := func(format string, args ...any) {
		b = fmt.Appendf(b, format, args...)
	}

	switch r.Status {
	case report.Pass:
		w("%s\n", color.GreenString("ok"))
	case report.Mismatch:
		w("%s\n\n", color.RedString("FAIL"))
	case report.Timeout:
		w("%s\n\n", color.YellowString("TIMEOUT"))
	default:
		w("%s\n\n", color.RedString("ERROR"))
	}

	switch {
	case r.Message != "":
		w("%s", r.Message)
		if !strings.HasSuffix(r.Message, "\n") {
			w("\n")
		}
	case verbose:
		body, _ := r.Section("all")
		w("\n%s", body)
	}
	return string(b)
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	reportsDir := fs.String("reports", "", "directory for run reports (default: a temp directory)")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(hmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return serve(ctx, *httpAddr, *reportsDir)
}

func serve(ctx context.Context, httpAddr, reportsDir string) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	store := report.NewLRUStore(cfg.Reports(), report.NewDiskStore(reportsDir))
	logger := log.New(os.Stderr, "runharness: ", 0)

	server := hmcp.NewServer(cfg, store, workspace, logger)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
