// Package shell implements the minikv command line: an interactive session
// over an in-memory table and a one-shot mode bound to a data file.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lojhan/minikv/internal/command"
	"github.com/lojhan/minikv/internal/persistence"
	"github.com/lojhan/minikv/internal/resp"
	"github.com/lojhan/minikv/internal/store"
)

const (
	Prompt  = "minikv> "
	Banner  = "MiniKV Interactive Mode. Type 'h' or 'help' for commands, 'q' or 'quit' to exit."
	MaxArgs = 64
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrCommand     = errors.New("command failed")
	ErrUsage       = errors.New("usage error")
)

// arity is the argument count of each command, name included. Extra arguments
// are ignored.
var arity = map[string]int{
	"get":   2,
	"set":   3,
	"del":   2,
	"list":  1,
	"count": 1,
	"load":  2,
	"save":  2,
}

const usage = `Usage:
  get <key> [-f <file>]
  set <key> <value> [-f <file>]
  del <key> [-f <file>]
  list [-f <file>]
  count [-f <file>]
  load <file> (session table only)
  save <file> (session table only)
  quit / q : Exit
`

type Config struct {
	Out    io.Writer
	Err    io.Writer
	Logger *zap.Logger
}

func (c *Config) setDefaults() {
	if c.Out == nil {
		c.Out = io.Discard
	}
	if c.Err == nil {
		c.Err = io.Discard
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Session is the state of one interactive session. Its table lives as long as
// the session; tables opened with -f are separate and short-lived.
type Session struct {
	cfg      Config
	table    *store.HashTable
	registry *command.Registry
}

func NewSession(cfg Config) *Session {
	cfg.setDefaults()

	table := store.NewHashTable(store.WithLogger(cfg.Logger))
	registry := command.NewRegistry()
	command.Register(registry, table, command.Options{Logger: cfg.Logger})

	return &Session{
		cfg:      cfg,
		table:    table,
		registry: registry,
	}
}

func (s *Session) Table() *store.HashTable {
	return s.table
}

// Exec runs one tokenized command line. A "-f <file>" pair anywhere in args
// runs the command against a fresh table loaded from that file and saves it
// back after changes.
func (s *Session) Exec(args []string) error {
	file, args, err := extractFileFlag(args)
	if err != nil {
		fmt.Fprintf(s.cfg.Err, "Error: %v\n", err)
		return err
	}
	if len(args) == 0 {
		return nil
	}

	args = trimArgs(args)
	registry := s.registry
	if file != "" {
		registry = fileRegistry(s.cfg, file)
	}
	return render(s.cfg, args, registry.Execute(args))
}

// Run reads commands from in until EOF, a quit command or ctx is done.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.cfg.Out, Banner)

	scanner := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(s.cfg.Out, Prompt)
		if !scanner.Scan() {
			return scanner.Err()
		}

		args := Tokenize(scanner.Text())
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "q", "quit", "exit":
			return nil
		case "h", "help":
			fmt.Fprint(s.cfg.Out, usage)
			continue
		}

		if err := s.Exec(args); err != nil {
			s.cfg.Logger.Debug("command failed", zap.Strings("args", args), zap.Error(err))
		}
	}
}

// RunOnce executes a single command against the table stored in file and
// saves the file after SET and DEL.
func RunOnce(cfg Config, file string, args []string) error {
	cfg.setDefaults()
	if len(args) == 0 {
		fmt.Fprint(cfg.Err, usage)
		return ErrUsage
	}

	switch strings.ToLower(args[0]) {
	case "get", "set", "del", "list", "count":
	default:
		fmt.Fprintf(cfg.Err, "Unknown command: %s\n", args[0])
		return fmt.Errorf("%w: unknown command %s", ErrUsage, args[0])
	}

	args = trimArgs(args)
	return render(cfg, args, fileRegistry(cfg, file).Execute(args))
}

// ExitCode maps an Exec or RunOnce result to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrKeyNotFound):
		return 2
	default:
		return 1
	}
}

func fileRegistry(cfg Config, file string) *command.Registry {
	table := store.NewHashTable(store.WithLogger(cfg.Logger))
	if _, err := persistence.Load(file, table); err != nil {
		cfg.Logger.Debug("starting with empty table", zap.String("file", file), zap.Error(err))
	}

	registry := command.NewRegistry()
	command.Register(registry, table, command.Options{
		DefaultFile:         file,
		AutoSave:            true,
		DisableFileCommands: true,
		Logger:              cfg.Logger,
	})
	return registry
}

func extractFileFlag(args []string) (string, []string, error) {
	for i, arg := range args {
		if arg != "-f" {
			continue
		}
		if i+1 >= len(args) {
			return "", nil, fmt.Errorf("%w: -f requires a filename", ErrUsage)
		}
		rest := make([]string, 0, len(args)-2)
		rest = append(rest, args[:i]...)
		rest = append(rest, args[i+2:]...)
		return args[i+1], rest, nil
	}
	return "", args, nil
}

func trimArgs(args []string) []string {
	if n, ok := arity[strings.ToLower(args[0])]; ok && len(args) > n {
		return args[:n]
	}
	return args
}

func render(cfg Config, args []string, reply resp.Value) error {
	name := strings.ToUpper(args[0])
	switch reply.Type {
	case resp.Error:
		fmt.Fprintf(cfg.Err, "Error: %s\n", strings.TrimPrefix(reply.Str, "ERR "))
		return fmt.Errorf("%w: %s", ErrCommand, reply.Str)
	case resp.BulkString:
		if reply.Null {
			fmt.Fprintln(cfg.Err, "Key not found")
			return ErrKeyNotFound
		}
		fmt.Fprintln(cfg.Out, reply.Str)
	case resp.Array:
		for _, elem := range reply.Array {
			fmt.Fprintln(cfg.Out, elem.Str)
		}
	case resp.Integer:
		switch name {
		case "COUNT", "DBSIZE":
			fmt.Fprintln(cfg.Out, strconv.FormatInt(reply.Int, 10))
		case "LOAD":
			fmt.Fprintf(cfg.Out, "Loaded %s\n", args[1])
		}
	case resp.SimpleString:
		switch {
		case name == "SAVE" && len(args) > 1:
			fmt.Fprintf(cfg.Out, "Saved %s\n", args[1])
		case reply.Str != "OK":
			fmt.Fprintln(cfg.Out, reply.Str)
		}
	}
	return nil
}
