package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "vstack",
		Level:  hclog.LevelFromString(envOr("VSTACK_LOG_LEVEL", "warn")),
		Output: os.Stderr,
	})

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, logger: logger}
	os.Exit(a.run(ctx, os.Args[1:]))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  vstack <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  embed           Embed the texts given as arguments")
	fmt.Fprintln(w, "  create-index    Create an index")
	fmt.Fprintln(w, "  list-indexes    List every index")
	fmt.Fprintln(w, "  describe        Describe an index")
	fmt.Fprintln(w, "  delete-index    Delete an index")
	fmt.Fprintln(w, "  optimize        Optimize an index for latency")
	fmt.Fprintln(w, "  upsert          Upsert JSON lines records read from -file or stdin")
	fmt.Fprintln(w, "  search          Search an index")
	fmt.Fprintln(w, "  delete-vectors  Delete vectors by id")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Use 'vstack <command> -h' for command-specific flags.")
	fmt.Fprintln(w, "Credentials are read from -api-key, the config file, VECTORSTACKAI_API_KEY or a .env file.")
}
