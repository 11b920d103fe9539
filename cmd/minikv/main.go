package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/lojhan/minikv/internal/logging"
	"github.com/lojhan/minikv/internal/shell"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  %[1]s                          interactive mode
  %[1]s <file> get <key>
  %[1]s <file> set <key> <value>
  %[1]s <file> del <key>
  %[1]s <file> list
  %[1]s <file> count

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "Rotating log file (default stderr)")
	flag.Usage = usage
	flag.Parse()

	logger, err := logging.New(logging.Options{
		Level:     *logLevel,
		File:      *logFile,
		MaxSizeMB: 10,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := shell.Config{Out: os.Stdout, Err: os.Stderr, Logger: logger}

	args := flag.Args()
	if len(args) == 0 {
		if err := shell.NewSession(cfg).Run(context.Background(), os.Stdin); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(args) < 2 {
		usage()
		os.Exit(1)
	}

	code := shell.ExitCode(shell.RunOnce(cfg, args[0], args[1:]))
	logger.Sync()
	os.Exit(code)
}
