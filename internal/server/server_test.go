package server

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojhan/minikv/internal/resp"
)

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()

	s, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not start")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return s
}

type client struct {
	conn   net.Conn
	parser *resp.Parser
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return &client{conn: conn, parser: resp.NewParser(bufio.NewReader(conn))}
}

func (c *client) do(t *testing.T, args ...string) resp.Value {
	t.Helper()
	_, err := c.conn.Write(resp.Command(args...))
	require.NoError(t, err)
	return c.read(t)
}

func (c *client) read(t *testing.T) resp.Value {
	t.Helper()
	v, err := c.parser.Parse()
	require.NoError(t, err)
	return v
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	assert.Error(t, cfg.Validate())

	cfg = Config{Addr: DefaultAddr, AutoSave: true}
	assert.Error(t, cfg.Validate())

	cfg = Config{Addr: DefaultAddr, DBFile: "data.kv", AutoSave: true}
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, "tcp://"+DefaultAddr, cfg.protoAddr())
	cfg.Addr = "tcp://0.0.0.0:7000"
	assert.Equal(t, "tcp://0.0.0.0:7000", cfg.protoAddr())
}

func TestNewLoadsDataFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.kv")
	require.NoError(t, os.WriteFile(path, []byte("# seed\na=1\nb = 2\n"), 0644))

	s, err := New(Config{Addr: DefaultAddr, DBFile: path})
	require.NoError(t, err)
	assert.Equal(t, 2, s.table.Count())

	s, err = New(Config{Addr: DefaultAddr, DBFile: filepath.Join(t.TempDir(), "missing.kv")})
	require.NoError(t, err)
	assert.Equal(t, 0, s.table.Count())
}

func TestExecuteTracksChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.kv")
	s, err := New(Config{Addr: DefaultAddr, DBFile: path})
	require.NoError(t, err)

	assert.Equal(t, resp.OKValue(), s.Execute([]string{"SET", "k", "v"}))
	assert.Equal(t, resp.IntegerValue(1), s.Execute([]string{"DEL", "k"}))
	assert.Equal(t, resp.Error, s.Execute([]string{"SET", "bad key", "v"}).Type)
	assert.Equal(t, int64(2), s.dirty.Load())
	assert.Equal(t, int64(3), s.commands.Load())

	assert.Equal(t, resp.OKValue(), s.Execute([]string{"SAVE"}))
	assert.Equal(t, int64(0), s.dirty.Load())

	s.Execute([]string{"SET", "k", "v"})
	assert.Equal(t, resp.Error, s.Execute([]string{"SAVE", filepath.Join(t.TempDir(), "copy.kv")}).Type)
	assert.Equal(t, int64(1), s.dirty.Load())
}

func TestExecuteTracksUnsavedChangesWithAutoSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.kv")
	require.NoError(t, os.WriteFile(path, []byte("a=1\n"), 0644))

	s, err := New(Config{Addr: DefaultAddr, DBFile: path, AutoSave: true})
	require.NoError(t, err)

	assert.Equal(t, resp.OKValue(), s.Execute([]string{"SET", "k", "v"}))
	assert.Equal(t, int64(0), s.dirty.Load())

	// LOAD never autosaves, so its entries are pending until the next save
	assert.Equal(t, resp.IntegerValue(2), s.Execute([]string{"LOAD", path}))
	assert.Equal(t, int64(1), s.dirty.Load())

	broken, err := New(Config{Addr: DefaultAddr, DBFile: filepath.Join(dir, "missing-dir", "data.kv"), AutoSave: true})
	require.NoError(t, err)
	reply := broken.Execute([]string{"SET", "k", "v"})
	assert.Equal(t, resp.Error, reply.Type)
	assert.Equal(t, int64(1), broken.dirty.Load())
}

func TestExecuteRejectsForeignPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.kv")
	victim := filepath.Join(dir, "victim.txt")
	require.NoError(t, os.WriteFile(victim, []byte("keep me\n"), 0644))

	s, err := New(Config{Addr: DefaultAddr, DBFile: path})
	require.NoError(t, err)
	s.Execute([]string{"SET", "k", "v"})

	assert.Equal(t, resp.ErrorValue("ERR save is limited to the data file"), s.Execute([]string{"SAVE", victim}))
	assert.Equal(t, resp.ErrorValue("ERR load is limited to the data file"), s.Execute([]string{"LOAD", victim}))

	data, err := os.ReadFile(victim)
	require.NoError(t, err)
	assert.Equal(t, "keep me\n", string(data))

	assert.Equal(t, resp.OKValue(), s.Execute([]string{"SAVE", path}))
}

func TestServerCommands(t *testing.T) {
	s := startServer(t, Config{Addr: "127.0.0.1:16480"})
	c := dial(t, s.Addr())

	assert.Equal(t, resp.PongValue(), c.do(t, "PING"))
	assert.Equal(t, resp.OKValue(), c.do(t, "SET", "name", "Tom Lee"))
	assert.Equal(t, resp.BulkStringValue("Tom Lee"), c.do(t, "GET", "name"))
	assert.Equal(t, resp.NullBulkStringValue(), c.do(t, "GET", "missing"))
	assert.Equal(t, resp.ErrorValue("ERR invalid key"), c.do(t, "SET", "bad key", "v"))
	assert.Equal(t, resp.IntegerValue(1), c.do(t, "COUNT"))
	assert.Equal(t, resp.BulkStringsValue("name=Tom Lee"), c.do(t, "LIST"))
	assert.Equal(t, resp.IntegerValue(1), c.do(t, "DEL", "name"))
	assert.Equal(t, resp.IntegerValue(0), c.do(t, "DEL", "name"))
	assert.Equal(t, resp.ErrorValue("ERR unknown command 'FLY'"), c.do(t, "FLY"))
	assert.Equal(t, resp.ErrorValue("ERR save is limited to the data file"),
		c.do(t, "SAVE", filepath.Join(t.TempDir(), "elsewhere.kv")))

	info := c.do(t, "INFO")
	require.Equal(t, resp.BulkString, info.Type)
	assert.Contains(t, info.Str, "connected_clients:1\r\n")
	assert.Contains(t, info.Str, "keys:0\r\n")
	assert.Contains(t, info.Str, "changes_since_last_save:2\r\n")
}

func TestServerPipelining(t *testing.T) {
	s := startServer(t, Config{Addr: "127.0.0.1:16481"})
	c := dial(t, s.Addr())

	var batch []byte
	batch = append(batch, resp.Command("SET", "a", "1")...)
	batch = append(batch, resp.Command("SET", "b", "2")...)
	batch = append(batch, resp.Command("GET", "a")...)
	_, err := c.conn.Write(batch)
	require.NoError(t, err)

	assert.Equal(t, resp.OKValue(), c.read(t))
	assert.Equal(t, resp.OKValue(), c.read(t))
	assert.Equal(t, resp.BulkStringValue("1"), c.read(t))
}

func TestServerPartialFrames(t *testing.T) {
	s := startServer(t, Config{Addr: "127.0.0.1:16482"})
	c := dial(t, s.Addr())

	frame := resp.Command("SET", "split", "value")
	_, err := c.conn.Write(frame[:7])
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = c.conn.Write(frame[7:])
	require.NoError(t, err)

	assert.Equal(t, resp.OKValue(), c.read(t))
	assert.Equal(t, resp.BulkStringValue("value"), c.do(t, "GET", "split"))
}

func TestServerProtocolError(t *testing.T) {
	s := startServer(t, Config{Addr: "127.0.0.1:16483"})
	c := dial(t, s.Addr())

	_, err := c.conn.Write([]byte("+PING\r\n"))
	require.NoError(t, err)
	assert.Equal(t, resp.ErrorValue("ERR protocol error"), c.read(t))

	_, err = c.parser.Parse()
	assert.Error(t, err)
}

func TestServerSharedTable(t *testing.T) {
	s := startServer(t, Config{Addr: "127.0.0.1:16484", Multicore: true})
	c1 := dial(t, s.Addr())
	c2 := dial(t, s.Addr())

	assert.Equal(t, resp.OKValue(), c1.do(t, "SET", "shared", "yes"))
	assert.Equal(t, resp.BulkStringValue("yes"), c2.do(t, "GET", "shared"))
}

func TestServerSavesOnShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.kv")

	s, err := New(Config{Addr: "127.0.0.1:16485", DBFile: path})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	<-s.Ready()

	c := dial(t, s.Addr())
	assert.Equal(t, resp.OKValue(), c.do(t, "SET", "k", "v"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "k=v\n", string(data))

	s2, err := New(Config{Addr: "127.0.0.1:16485", DBFile: path})
	require.NoError(t, err)
	value, ok := s2.table.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", value)
}
