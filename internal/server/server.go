package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lojhan/minikv/internal/command"
	"github.com/lojhan/minikv/internal/persistence"
	"github.com/lojhan/minikv/internal/resp"
	"github.com/lojhan/minikv/internal/store"
)

const (
	DefaultAddr     = "127.0.0.1:6380"
	Version         = "1.0.0"
	shutdownTimeout = 5 * time.Second
)

type Config struct {
	Addr string
	// DBFile is loaded on start, written by SAVE without arguments and on
	// shutdown when there are unsaved changes.
	DBFile    string
	AutoSave  bool
	Multicore bool
	Logger    *zap.Logger
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("server address is required")
	}
	if c.AutoSave && c.DBFile == "" {
		return errors.New("autosave requires a data file")
	}
	return nil
}

func (c *Config) protoAddr() string {
	if strings.Contains(c.Addr, "://") {
		return c.Addr
	}
	return "tcp://" + c.Addr
}

// Server serves a single table over RESP. Every command runs under one mutex,
// so the table never sees concurrent access even with multicore event loops.
type Server struct {
	gnet.BuiltinEventEngine

	cfg      Config
	logger   *zap.Logger
	mu       sync.Mutex
	table    *store.HashTable
	registry *command.Registry

	eng      gnet.Engine
	ready    chan struct{}
	stopOnce sync.Once
	stopErr  error

	clients  atomic.Int64
	commands atomic.Int64
	dirty    atomic.Int64
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		table:    store.NewHashTable(store.WithLogger(cfg.Logger)),
		registry: command.NewRegistry(),
		ready:    make(chan struct{}),
	}

	if cfg.DBFile != "" {
		n, err := persistence.Load(cfg.DBFile, s.table)
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			s.logger.Info("no data file found, starting with empty table", zap.String("file", cfg.DBFile))
		case err != nil:
			return nil, fmt.Errorf("failed to load data file: %w", err)
		default:
			s.logger.Info("data file loaded",
				zap.String("file", cfg.DBFile),
				zap.Int("applied", n),
				zap.Int("keys", s.table.Count()),
			)
		}
	}

	command.Register(s.registry, s.table, command.Options{
		DefaultFile: cfg.DBFile,
		AutoSave:    cfg.AutoSave,
		PinnedFile:  true,
		OnChange:    s.onChange,
		Logger:      cfg.Logger,
	})
	s.registry.Register("INFO", s.infoCommand)

	return s, nil
}

// Ready is closed once the engine is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

func (s *Server) Addr() string {
	return s.cfg.Addr
}

// Run serves until ctx is done or the engine fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- gnet.Run(s, s.cfg.protoAddr(),
			gnet.WithMulticore(s.cfg.Multicore),
			gnet.WithReusePort(false),
			gnet.WithLogger(s.logger.Sugar()),
		)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Append(s.Stop(stopCtx), <-errCh)
	}
}

// Stop shuts the engine down and saves unsaved changes to DBFile.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		select {
		case <-s.ready:
		case <-ctx.Done():
			s.stopErr = ctx.Err()
			return
		}

		s.logger.Info("shutting down server", zap.String("addr", s.cfg.Addr))
		s.stopErr = multierr.Append(s.eng.Stop(ctx), s.saveOnShutdown())
	})
	return s.stopErr
}

func (s *Server) saveOnShutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.DBFile == "" || s.dirty.Load() == 0 {
		return nil
	}
	if err := persistence.Save(s.cfg.DBFile, s.table); err != nil {
		return fmt.Errorf("failed to save on shutdown: %w", err)
	}
	s.dirty.Store(0)
	s.logger.Info("data file saved", zap.String("file", s.cfg.DBFile), zap.Int("keys", s.table.Count()))
	return nil
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.eng = eng
	close(s.ready)
	s.logger.Info("server listening", zap.String("addr", s.cfg.Addr), zap.Bool("multicore", s.cfg.Multicore))
	return gnet.None
}

func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	s.clients.Inc()
	s.logger.Debug("client connected", zap.Stringer("remote", c.RemoteAddr()))
	return nil, gnet.None
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	s.clients.Dec()
	if err != nil {
		s.logger.Debug("client disconnected", zap.Stringer("remote", c.RemoteAddr()), zap.Error(err))
	} else {
		s.logger.Debug("client disconnected", zap.Stringer("remote", c.RemoteAddr()))
	}
	return gnet.None
}

// OnTraffic executes every complete command buffered on c. A trailing partial
// command stays buffered until more data arrives.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	data, err := c.Peek(-1)
	if err != nil {
		s.logger.Warn("failed to read from client", zap.Stringer("remote", c.RemoteAddr()), zap.Error(err))
		return gnet.Close
	}

	out := bytebufferpool.Get()
	defer bytebufferpool.Put(out)
	serializer := resp.NewSerializer(out)

	action, consumed := s.handle(data, serializer, c)

	if _, err := c.Discard(consumed); err != nil {
		return gnet.Close
	}
	if out.Len() > 0 {
		if _, err := c.Write(out.B); err != nil {
			s.logger.Warn("failed to write response", zap.Stringer("remote", c.RemoteAddr()), zap.Error(err))
			return gnet.Close
		}
	}
	return action
}

func (s *Server) handle(data []byte, serializer *resp.Serializer, c gnet.Conn) (gnet.Action, int) {
	consumed := 0
	for consumed < len(data) {
		rest := bytes.NewBuffer(data[consumed:])
		args, err := resp.NewParser(rest).ParseCommand()
		used := len(data) - consumed - rest.Len()

		if errors.Is(err, resp.ErrIncomplete) {
			break
		}
		if err != nil {
			s.logger.Debug("protocol error", zap.Stringer("remote", c.RemoteAddr()), zap.Error(err))
			_ = serializer.Serialize(resp.ErrorValue("ERR protocol error"))
			return gnet.Close, len(data)
		}

		consumed += used
		_ = serializer.Serialize(s.Execute(args))
	}
	return gnet.None, consumed
}

// Execute runs one command under the table lock.
func (s *Server) Execute(args []string) resp.Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands.Inc()
	result := s.registry.Execute(args)

	// SAVE only ever writes DBFile here
	if len(args) > 0 && strings.EqualFold(args[0], "SAVE") && result.Type != resp.Error {
		s.dirty.Store(0)
	}
	return result
}

// onChange counts table changes that have not reached DBFile yet.
func (s *Server) onChange(persisted bool) {
	if !persisted {
		s.dirty.Inc()
	}
}

func (s *Server) infoCommand(args []string) resp.Value {
	var b strings.Builder
	b.WriteString("# Server\r\n")
	fmt.Fprintf(&b, "minikv_version:%s\r\n", Version)
	fmt.Fprintf(&b, "multicore:%t\r\n", s.cfg.Multicore)
	b.WriteString("# Clients\r\n")
	fmt.Fprintf(&b, "connected_clients:%d\r\n", s.clients.Load())
	b.WriteString("# Stats\r\n")
	fmt.Fprintf(&b, "total_commands_processed:%d\r\n", s.commands.Load())
	b.WriteString("# Persistence\r\n")
	fmt.Fprintf(&b, "changes_since_last_save:%d\r\n", s.dirty.Load())
	fmt.Fprintf(&b, "autosave:%t\r\n", s.cfg.AutoSave)
	b.WriteString("# Keyspace\r\n")
	fmt.Fprintf(&b, "keys:%d\r\n", s.table.Count())
	fmt.Fprintf(&b, "buckets:%d\r\n", s.table.Capacity())
	return resp.BulkStringValue(b.String())
}
