package command

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lojhan/minikv/internal/persistence"
	"github.com/lojhan/minikv/internal/resp"
	"github.com/lojhan/minikv/internal/store"
)

// Options controls the file-backed behaviour of the registered commands.
type Options struct {
	// DefaultFile is the file SAVE writes when called without arguments and
	// the file AutoSave writes after every change.
	DefaultFile string
	AutoSave    bool
	// DisableFileCommands makes LOAD and SAVE refuse to run, for tables that
	// are bound to a single file for their whole lifetime.
	DisableFileCommands bool
	// PinnedFile limits LOAD and SAVE to DefaultFile, for tables served to
	// clients that must not choose paths on the host.
	PinnedFile bool
	// OnChange is called after SET, DEL or LOAD changed the table. persisted
	// reports whether the change already reached DefaultFile.
	OnChange func(persisted bool)
	Logger   *zap.Logger
}

// Register installs the key-value command set for ht into r.
func Register(r *Registry, ht *store.HashTable, opts Options) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	commit := func(changed bool) error {
		var err error
		saved := false
		if opts.AutoSave && opts.DefaultFile != "" {
			err = saveFile(opts.Logger, opts.DefaultFile, ht)
			saved = err == nil
		}
		if changed && opts.OnChange != nil {
			opts.OnChange(saved)
		}
		return err
	}

	r.Register("PING", PingCommand)
	r.Register("ECHO", EchoCommand)

	r.Register("GET", GetCommand(ht))
	r.Register("SET", SetCommand(ht, commit))
	r.Register("DEL", DelCommand(ht, commit))
	r.Register("LIST", ListCommand(ht))
	r.Register("COUNT", CountCommand(ht))
	r.Register("DBSIZE", CountCommand(ht))

	r.Register("LOAD", LoadCommand(ht, opts))
	r.Register("SAVE", SaveCommand(ht, opts))
}

func LoadCommand(ht *store.HashTable, opts Options) Handler {
	return func(args []string) resp.Value {
		if opts.DisableFileCommands {
			return resp.ErrorValue("ERR load command cannot be used with -f")
		}
		if len(args) != 1 {
			return wrongArgs("load")
		}
		if opts.PinnedFile && args[0] != opts.DefaultFile {
			return resp.ErrorValue("ERR load is limited to the data file")
		}

		n, err := persistence.Load(args[0], ht)
		if err != nil {
			opts.Logger.Warn("load failed", zap.String("file", args[0]), zap.Error(err))
			return resp.ErrorValue(fmt.Sprintf("ERR failed to load file %s: %v", args[0], err))
		}

		opts.Logger.Info("data file loaded",
			zap.String("file", args[0]),
			zap.Int("applied", n),
			zap.Int("keys", ht.Count()),
		)
		if n > 0 && opts.OnChange != nil {
			opts.OnChange(false)
		}
		return resp.IntegerValue(int64(n))
	}
}

func SaveCommand(ht *store.HashTable, opts Options) Handler {
	return func(args []string) resp.Value {
		if opts.DisableFileCommands {
			return resp.ErrorValue("ERR save command cannot be used with -f")
		}

		var file string
		switch len(args) {
		case 0:
			file = opts.DefaultFile
		case 1:
			file = args[0]
		default:
			return wrongArgs("save")
		}
		if file == "" {
			return resp.ErrorValue("ERR no file to save to")
		}
		if opts.PinnedFile && file != opts.DefaultFile {
			return resp.ErrorValue("ERR save is limited to the data file")
		}

		if err := saveFile(opts.Logger, file, ht); err != nil {
			return resp.ErrorValue(fmt.Sprintf("ERR failed to save to file %s: %v", file, err))
		}
		return resp.OKValue()
	}
}

func saveFile(logger *zap.Logger, file string, ht *store.HashTable) error {
	if err := persistence.Save(file, ht); err != nil {
		logger.Error("save failed", zap.String("file", file), zap.Error(err))
		return err
	}
	logger.Debug("data file saved", zap.String("file", file), zap.Int("keys", ht.Count()))
	return nil
}
