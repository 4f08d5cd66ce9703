// Copyright © 2024 The ELPS authors

package dapserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/luthersystems/natvis/natvis"
	"github.com/luthersystems/natvis/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const programNatvis = "../natvis/testdata/program.natvis"

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
	seq  int
}

func startServer(t *testing.T, reg *natvis.Registry) *testClient {
	t.Helper()
	snap, err := snapshot.Open("../snapshot/testdata/program.yaml")
	require.NoError(t, err)
	srv := New(snap, reg)

	// Use a net.Pipe to simulate a DAP client/server connection.
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() }) //nolint:errcheck,gosec // test cleanup
	go func() {
		_ = srv.ServeConn(context.Background(), server)
	}()
	return &testClient{t: t, conn: client, r: bufio.NewReader(client)}
}

func loadedRegistry(t *testing.T) *natvis.Registry {
	t.Helper()
	reg := natvis.NewRegistry()
	require.True(t, reg.LoadFile(programNatvis))
	return reg
}

func (c *testClient) request(command string) dap.Request {
	c.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.seq, Type: "request"},
		Command:         command,
	}
}

func (c *testClient) send(msg dap.Message) {
	c.t.Helper()
	sendDAPRequest(c.t, c.conn, msg)
}

func expect[T dap.Message](c *testClient) T {
	c.t.Helper()
	msg := readDAPMessage(c.t, c.r)
	m, ok := msg.(T)
	require.True(c.t, ok, "expected %T, got %T", *new(T), msg)
	return m
}

func (c *testClient) initialize() {
	c.t.Helper()
	c.send(&dap.InitializeRequest{
		Request: c.request("initialize"),
		Arguments: dap.InitializeRequestArguments{
			AdapterID:     "natvis",
			LinesStartAt1: true,
		},
	})
	resp := expect[*dap.InitializeResponse](c)
	assert.True(c.t, resp.Success)
	assert.True(c.t, resp.Body.SupportsConfigurationDoneRequest)
	expect[*dap.InitializedEvent](c)
}

func (c *testClient) variables(ref int) []dap.Variable {
	c.t.Helper()
	c.send(&dap.VariablesRequest{
		Request:   c.request("variables"),
		Arguments: dap.VariablesArguments{VariablesReference: ref},
	})
	resp := expect[*dap.VariablesResponse](c)
	require.True(c.t, resp.Success)
	return resp.Body.Variables
}

func find(t *testing.T, vars []dap.Variable, name string) dap.Variable {
	t.Helper()
	for _, v := range vars {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("no variable %q", name)
	return dap.Variable{}
}

func values(vars []dap.Variable) map[string]string {
	m := make(map[string]string, len(vars))
	for _, v := range vars {
		m[v.Name] = v.Value
	}
	return m
}

func TestDAPServer_InitializeAndDisconnect(t *testing.T) {
	t.Parallel()
	c := startServer(t, natvis.NewRegistry())
	c.initialize()

	c.send(&dap.DisconnectRequest{Request: c.request("disconnect")})
	resp := expect[*dap.DisconnectResponse](c)
	assert.True(t, resp.Success)
	expect[*dap.TerminatedEvent](c)
}

func TestDAPServer_LaunchSession(t *testing.T) {
	t.Parallel()
	reg := natvis.NewRegistry()
	c := startServer(t, reg)
	c.initialize()

	args, err := json.Marshal(launchArguments{Visualizers: []string{programNatvis, "missing.natvis"}})
	require.NoError(t, err)
	c.send(&dap.LaunchRequest{Request: c.request("launch"), Arguments: args})
	loaded := expect[*dap.OutputEvent](c)
	assert.Equal(t, "console", loaded.Body.Category)
	assert.Equal(t, "loaded "+programNatvis+"\n", loaded.Body.Output)
	failed := expect[*dap.OutputEvent](c)
	assert.Equal(t, "stderr", failed.Body.Category)
	assert.Equal(t, "cannot load missing.natvis\n", failed.Body.Output)
	assert.True(t, expect[*dap.LaunchResponse](c).Success)
	assert.Equal(t, 4, reg.Len())

	c.send(&dap.ConfigurationDoneRequest{Request: c.request("configurationDone")})
	expect[*dap.ConfigurationDoneResponse](c)
	stopped := expect[*dap.StoppedEvent](c)
	assert.Equal(t, "entry", stopped.Body.Reason)
	assert.Equal(t, threadID, stopped.Body.ThreadId)

	c.send(&dap.ThreadsRequest{Request: c.request("threads")})
	threads := expect[*dap.ThreadsResponse](c)
	require.Len(t, threads.Body.Threads, 1)
	assert.Equal(t, threadID, threads.Body.Threads[0].Id)

	c.send(&dap.StackTraceRequest{
		Request:   c.request("stackTrace"),
		Arguments: dap.StackTraceArguments{ThreadId: threadID},
	})
	stack := expect[*dap.StackTraceResponse](c)
	require.Len(t, stack.Body.StackFrames, 1)
	assert.Equal(t, "<snapshot>", stack.Body.StackFrames[0].Name)
	assert.Equal(t, 1, stack.Body.TotalFrames)

	c.send(&dap.ScopesRequest{
		Request:   c.request("scopes"),
		Arguments: dap.ScopesArguments{FrameId: stack.Body.StackFrames[0].Id},
	})
	scopes := expect[*dap.ScopesResponse](c)
	require.Len(t, scopes.Body.Scopes, 1)
	assert.Equal(t, "Globals", scopes.Body.Scopes[0].Name)
	assert.Equal(t, 7, scopes.Body.Scopes[0].NamedVariables)

	globals := c.variables(scopes.Body.Scopes[0].VariablesReference)
	assert.Equal(t, map[string]string{
		"v":      "size=3",
		"p":      "(1, -2)",
		"color":  "Blue",
		"pp":     "(1, -2)",
		"handle": "(1, -2)",
		"head":   "node 0x1 {next}",
		"name":   "hello",
	}, values(globals))
	assert.Equal(t, "Point*", find(t, globals, "pp").Type)
	assert.Equal(t, "v", find(t, globals, "v").EvaluateName)
	assert.Zero(t, find(t, globals, "name").VariablesReference)
	assert.Zero(t, find(t, globals, "color").VariablesReference)

	v := find(t, globals, "v")
	require.NotZero(t, v.VariablesReference)
	children := c.variables(v.VariablesReference)
	assert.Equal(t, []string{"[size]", "[0]", "[1]", "[2]"}, names(children))
	assert.Equal(t, map[string]string{"[size]": "3", "[0]": "10", "[1]": "20", "[2]": "30"}, values(children))
	assert.Equal(t, "int", children[1].Type)

	p := find(t, globals, "p")
	require.NotZero(t, p.VariablesReference)
	assert.Equal(t, map[string]string{"x": "1", "Unnamed": "-1", "hex": "0xFFFFFFFE"}, values(c.variables(p.VariablesReference)))

	// Expanding twice renders the children again.
	assert.Len(t, c.variables(v.VariablesReference), 4)
}

func names(vars []dap.Variable) []string {
	s := make([]string, len(vars))
	for i, v := range vars {
		s[i] = v.Name
	}
	return s
}

func TestDAPServer_PlainVariables(t *testing.T) {
	t.Parallel()
	c := startServer(t, natvis.NewRegistry())
	c.initialize()

	globals := c.variables(globalsRef)
	p := find(t, globals, "p")
	assert.Equal(t, "{x = 1, y = -2}", p.Value)
	assert.Equal(t, 2, p.NamedVariables)
	assert.Equal(t, map[string]string{"x": "1", "y": "-2"}, values(c.variables(p.VariablesReference)))

	head := find(t, globals, "head")
	fields := c.variables(head.VariablesReference)
	assert.Equal(t, map[string]string{"value": "1", "next": "0x4010"}, values(fields))
	assert.Zero(t, find(t, fields, "next").VariablesReference)
}

func TestDAPServer_Paging(t *testing.T) {
	t.Parallel()
	c := startServer(t, loadedRegistry(t))
	c.initialize()

	v := find(t, c.variables(globalsRef), "v")
	c.send(&dap.VariablesRequest{
		Request: c.request("variables"),
		Arguments: dap.VariablesArguments{
			VariablesReference: v.VariablesReference,
			Start:              1,
			Count:              2,
		},
	})
	resp := expect[*dap.VariablesResponse](c)
	assert.Equal(t, []string{"[0]", "[1]"}, names(resp.Body.Variables))
}

func TestDAPServer_Evaluate(t *testing.T) {
	t.Parallel()
	c := startServer(t, loadedRegistry(t))
	c.initialize()

	c.send(&dap.EvaluateRequest{
		Request:   c.request("evaluate"),
		Arguments: dap.EvaluateArguments{Expression: "v.Data[1]", Context: "watch"},
	})
	resp := expect[*dap.EvaluateResponse](c)
	assert.Equal(t, "20", resp.Body.Result)
	assert.Equal(t, "int", resp.Body.Type)
	assert.Zero(t, resp.Body.VariablesReference)

	c.send(&dap.EvaluateRequest{
		Request:   c.request("evaluate"),
		Arguments: dap.EvaluateArguments{Expression: "*pp", Context: "hover"},
	})
	resp = expect[*dap.EvaluateResponse](c)
	assert.Equal(t, "(1, -2)", resp.Body.Result)
	require.NotZero(t, resp.Body.VariablesReference)
	assert.Contains(t, values(c.variables(resp.Body.VariablesReference)), "hex")

	c.send(&dap.EvaluateRequest{
		Request:   c.request("evaluate"),
		Arguments: dap.EvaluateArguments{Expression: "nosuch"},
	})
	failed := expect[*dap.ErrorResponse](c)
	assert.False(t, failed.Success)
	assert.Equal(t, "evaluate", failed.Command)
	assert.Contains(t, failed.Message, "nosuch")
}

func TestDAPServer_Errors(t *testing.T) {
	t.Parallel()
	c := startServer(t, natvis.NewRegistry())
	c.initialize()

	c.send(&dap.VariablesRequest{
		Request:   c.request("variables"),
		Arguments: dap.VariablesArguments{VariablesReference: 4242},
	})
	resp := expect[*dap.ErrorResponse](c)
	assert.Equal(t, "unknown variables reference 4242", resp.Message)

	c.send(&dap.SetBreakpointsRequest{
		Request: c.request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: "main.cpp"},
			Breakpoints: []dap.SourceBreakpoint{{Line: 5}},
		},
	})
	resp = expect[*dap.ErrorResponse](c)
	assert.Equal(t, `unsupported request "setBreakpoints"`, resp.Message)
	assert.Equal(t, c.seq, resp.RequestSeq)

	// Commands the protocol library does not know are answered too.
	body := `{"seq":99,"type":"request","command":"frobnicate"}`
	_, err := fmt.Fprintf(c.conn, "Content-Length: %d\r\n\r\n%s", len(body), body)
	require.NoError(t, err)
	resp = expect[*dap.ErrorResponse](c)
	assert.Equal(t, 99, resp.RequestSeq)
	assert.Equal(t, "frobnicate", resp.Command)

	// The session continues.
	c.send(&dap.ThreadsRequest{Request: c.request("threads")})
	expect[*dap.ThreadsResponse](c)
}

func TestDAPServer_ServeListener(t *testing.T) {
	t.Parallel()
	snap, err := snapshot.Open("../snapshot/testdata/program.yaml")
	require.NoError(t, err)
	srv := New(snap, natvis.NewRegistry())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close() //nolint:errcheck // test cleanup

	done := make(chan error, 1)
	go func() {
		done <- srv.ServeListener(context.Background(), ln)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck // test cleanup
	c := &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
	c.initialize()
	c.send(&dap.DisconnectRequest{Request: c.request("disconnect")})
	expect[*dap.DisconnectResponse](c)
	expect[*dap.TerminatedEvent](c)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after disconnect")
	}
}

func TestPage(t *testing.T) {
	vars := []dap.Variable{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	assert.Equal(t, []string{"a", "b", "c"}, names(page(vars, 0, 0)))
	assert.Equal(t, []string{"b"}, names(page(vars, 1, 1)))
	assert.Equal(t, []string{"c"}, names(page(vars, 2, 10)))
	assert.Empty(t, page(vars, 5, 1))
}

func sendDAPRequest(t *testing.T, w io.Writer, msg dap.Message) {
	t.Helper()
	err := dap.WriteProtocolMessage(w, msg)
	require.NoError(t, err)
}

func readDAPMessage(t *testing.T, r *bufio.Reader) dap.Message {
	t.Helper()
	done := make(chan dap.Message, 1)
	errCh := make(chan error, 1)
	go func() {
		msg, err := dap.ReadProtocolMessage(r)
		if err != nil {
			errCh <- err
			return
		}
		done <- msg
	}()
	select {
	case msg := <-done:
		return msg
	case err := <-errCh:
		t.Fatalf("error reading DAP message: %v", err)
		return nil
	case <-time.After(5 * time.Second):
		t.Fatal("timeout reading DAP message")
		return nil
	}
}
