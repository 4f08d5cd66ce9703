// Copyright © 2024 The ELPS authors

package dapserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/go-dap"
	"go.uber.org/zap"
)

const (
	// threadID is the only thread of a snapshot session.
	threadID = 1
	// frameID is the only stack frame of a snapshot session.
	frameID = 1
	// globalsRef is the variables reference of the Globals scope.
	// References for expandable values are allocated above refBase.
	globalsRef = 1
	refBase    = 1000
)

// launchArguments are the adapter specific fields of launch and attach
// requests.
type launchArguments struct {
	Visualizers []string `json:"visualizers"`
}

// handler dispatches incoming DAP messages to the appropriate method.
type handler struct {
	ctx    context.Context
	server *Server
	logger *zap.Logger

	mu          sync.Mutex
	initialized bool
	launched    bool
	vars        *varStore
}

func newHandler(ctx context.Context, s *Server) *handler {
	return &handler{
		ctx:    ctx,
		server: s,
		logger: s.logger,
		vars:   newVarStore(refBase),
	}
}

// send sends a DAP message and logs any write error.
func (h *handler) send(msg dap.Message) {
	if err := h.server.send(msg); err != nil {
		h.logger.Warn("cannot send DAP message", zap.Error(err))
	}
}

func (h *handler) handle(msg dap.Message) {
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		h.onInitialize(req)
	case *dap.LaunchRequest:
		h.onLaunch(req)
	case *dap.AttachRequest:
		h.onAttach(req)
	case *dap.ConfigurationDoneRequest:
		h.onConfigurationDone(req)
	case *dap.ThreadsRequest:
		h.onThreads(req)
	case *dap.StackTraceRequest:
		h.onStackTrace(req)
	case *dap.ScopesRequest:
		h.onScopes(req)
	case *dap.VariablesRequest:
		h.onVariables(req)
	case *dap.EvaluateRequest:
		h.onEvaluate(req)
	case *dap.DisconnectRequest:
		h.onDisconnect(req)
	case dap.RequestMessage:
		r := req.GetRequest()
		h.sendError(r.Seq, r.Command, fmt.Sprintf("unsupported request %q", r.Command))
	default:
		h.logger.Debug("unhandled DAP message", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (h *handler) onInitialize(req *dap.InitializeRequest) {
	h.mu.Lock()
	h.initialized = true
	h.mu.Unlock()

	resp := &dap.InitializeResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body = dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsEvaluateForHovers:        true,
	}
	h.send(resp)

	// Send initialized event to tell the client it can send configuration.
	h.send(&dap.InitializedEvent{
		Event: h.newEvent("initialized"),
	})
}

func (h *handler) onLaunch(req *dap.LaunchRequest) {
	h.loadVisualizers(req.Arguments)
	resp := &dap.LaunchResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)
}

func (h *handler) onAttach(req *dap.AttachRequest) {
	h.loadVisualizers(req.Arguments)
	resp := &dap.AttachResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)
}

// loadVisualizers loads the documents named in launch arguments. Failures
// are reported as output events and do not fail the request.
func (h *handler) loadVisualizers(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var args launchArguments
	if err := json.Unmarshal(raw, &args); err != nil {
		h.output("stderr", fmt.Sprintf("invalid launch arguments: %v\n", err))
		return
	}
	for _, r := range h.server.reg.LoadFiles(args.Visualizers...) {
		if r.OK {
			h.output("console", fmt.Sprintf("loaded %s\n", r.Path))
		} else {
			h.output("stderr", fmt.Sprintf("cannot load %s\n", r.Path))
		}
	}
}

func (h *handler) onConfigurationDone(req *dap.ConfigurationDoneRequest) {
	resp := &dap.ConfigurationDoneResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)

	h.mu.Lock()
	h.launched = true
	h.mu.Unlock()

	evt := &dap.StoppedEvent{
		Event: h.newEvent("stopped"),
	}
	evt.Body.Reason = "entry"
	evt.Body.Description = "snapshot"
	evt.Body.ThreadId = threadID
	evt.Body.AllThreadsStopped = true
	h.send(evt)
}

func (h *handler) onThreads(req *dap.ThreadsRequest) {
	resp := &dap.ThreadsResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Threads = []dap.Thread{
		{Id: threadID, Name: "snapshot"},
	}
	h.send(resp)
}

func (h *handler) onStackTrace(req *dap.StackTraceRequest) {
	resp := &dap.StackTraceResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.TotalFrames = 1
	if req.Arguments.StartFrame == 0 {
		resp.Body.StackFrames = []dap.StackFrame{
			{Id: frameID, Name: "<snapshot>"},
		}
	}
	h.send(resp)
}

func (h *handler) onScopes(req *dap.ScopesRequest) {
	resp := &dap.ScopesResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Scopes = []dap.Scope{
		{
			Name:               "Globals",
			PresentationHint:   "locals",
			VariablesReference: globalsRef,
			NamedVariables:     len(h.server.snap.Variables()),
		},
	}
	h.send(resp)
}

func (h *handler) onVariables(req *dap.VariablesRequest) {
	resp := &dap.VariablesResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)

	ref := req.Arguments.VariablesReference
	switch {
	case ref == globalsRef:
		resp.Body.Variables = h.globals()
	default:
		v, ok := h.vars.get(ref)
		if !ok {
			h.sendError(req.Seq, req.Command, fmt.Sprintf("unknown variables reference %d", ref))
			return
		}
		resp.Body.Variables = h.children(v)
	}
	resp.Body.Variables = page(resp.Body.Variables, req.Arguments.Start, req.Arguments.Count)
	h.send(resp)
}

func (h *handler) onEvaluate(req *dap.EvaluateRequest) {
	v, err := h.server.snap.Evaluate(req.Arguments.Expression)
	if err != nil {
		h.sendError(req.Seq, req.Command, err.Error())
		return
	}
	dv := h.variable(req.Arguments.Expression, v)

	resp := &dap.EvaluateResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Result = dv.Value
	resp.Body.Type = dv.Type
	resp.Body.VariablesReference = dv.VariablesReference
	resp.Body.IndexedVariables = dv.IndexedVariables
	resp.Body.NamedVariables = dv.NamedVariables
	h.send(resp)
}

func (h *handler) onDisconnect(req *dap.DisconnectRequest) {
	resp := &dap.DisconnectResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)

	// Send terminated event.
	h.send(&dap.TerminatedEvent{
		Event: h.newEvent("terminated"),
	})
	h.server.close()
}

// --- helpers ---

func (h *handler) output(category, text string) {
	evt := &dap.OutputEvent{
		Event: h.newEvent("output"),
	}
	evt.Body.Category = category
	evt.Body.Output = text
	h.send(evt)
}

func (h *handler) sendError(reqSeq int, command string, message string) {
	resp := &dap.ErrorResponse{}
	resp.Response = h.newResponse(reqSeq, command)
	resp.Success = false
	resp.Message = message
	h.send(resp)
}

func (h *handler) newResponse(reqSeq int, command string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: h.server.nextSeq(), Type: "response"},
		RequestSeq:      reqSeq,
		Success:         true,
		Command:         command,
	}
}

func (h *handler) newEvent(event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: h.server.nextSeq(), Type: "event"},
		Event:           event,
	}
}

// page applies the start and count arguments of a variables request.
func page(vars []dap.Variable, start, count int) []dap.Variable {
	if start > len(vars) {
		start = len(vars)
	}
	if start < 0 {
		start = 0
	}
	end := len(vars)
	if count > 0 && start+count < end {
		end = start + count
	}
	return vars[start:end]
}
