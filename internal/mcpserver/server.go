// Package mcpserver exposes an orchestrator as Model Context Protocol tools
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/feedlens/internal/model"
	"github.com/ppiankov/feedlens/internal/pipeline"
)

const (
	defaultWait = 30 * time.Second
	maxWait     = 5 * time.Minute
)

// Server wraps the MCP SDK server around one orchestrator
type Server struct {
	MCPServer *sdkmcp.Server

	orch *pipeline.Orchestrator
	log  *slog.Logger
}

// New creates a server with the feedlens tools registered
func New(orch *pipeline.Orchestrator, version string) *Server {
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: "feedlens", Version: version}, nil),
		orch:      orch,
		log:       slog.Default().With("component", "mcp"),
	}
	s.registerTools()
	return s
}

// Run serves over stdio until the client disconnects or ctx ends
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("serving MCP over stdio", "provider", s.orch.ProviderName())
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "submit_query",
		Description: "Ask a question about customer feedback. Starts a new analysis run, superseding any run in progress. Set wait=true to block until the run finishes.",
	}, s.handleSubmitQuery)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_state",
		Description: "Get the current run state, including evidence and insights once the run succeeded. Set wait=true to block until the active run finishes.",
	}, s.handleGetState)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "reset",
		Description: "Abandon any run in progress and return to idle.",
	}, s.handleReset)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_stages",
		Description: "List the five analysis stages in execution order.",
	}, s.handleListStages)
}

// --- Tool input/output types ---

type submitQueryInput struct {
	Text           string `json:"text" jsonschema:"natural-language question about the reviews"`
	TopK           int    `json:"top_k,omitempty" jsonschema:"number of evidence items, clamped to 3..10 (default 5)"`
	Wait           bool   `json:"wait,omitempty" jsonschema:"block until the run finishes"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"maximum seconds to wait (default 30)"`
}

type getStateInput struct {
	Wait           bool `json:"wait,omitempty" jsonschema:"block until the active run finishes"`
	TimeoutSeconds int  `json:"timeout_seconds,omitempty" jsonschema:"maximum seconds to wait (default 30)"`
}

type emptyInput struct{}

type stateOutput struct {
	Phase            string               `json:"phase"`
	Generation       uint64               `json:"generation"`
	StageIndex       int                  `json:"stage_index"`
	StageTitle       string               `json:"stage_title,omitempty"`
	Query            string               `json:"query,omitempty"`
	TopK             int                  `json:"top_k,omitempty"`
	Error            string               `json:"error,omitempty"`
	ElapsedMs        int64                `json:"elapsed_ms"`
	AverageRelevance float64              `json:"average_relevance,omitempty"`
	Evidence         []model.EvidenceItem `json:"evidence,omitempty"`
	Insight          *model.InsightReport `json:"insight,omitempty"`
}

type stageOutput struct {
	Index          int    `json:"index"`
	Name           string `json:"name"`
	Title          string `json:"title"`
	Detail         string `json:"detail"`
	NominalDelayMs int64  `json:"nominal_delay_ms"`
}

type listStagesOutput struct {
	Stages []stageOutput `json:"stages"`
}

func toStateOutput(st pipeline.RunState) stateOutput {
	out := stateOutput{
		Phase:      st.Phase.String(),
		Generation: st.Generation,
		StageIndex: st.StageIndex,
		Error:      st.Error,
		ElapsedMs:  st.Elapsed().Milliseconds(),
	}
	if stage, ok := st.Stage(); ok {
		out.StageTitle = stage.Title
	}
	if st.Query != nil {
		out.Query = st.Query.Text
		out.TopK = st.Query.TopK
	}
	if st.HasResults() {
		out.AverageRelevance = st.AverageRelevance()
		out.Evidence = st.Result.Evidence
		insight := st.Result.Insight
		out.Insight = &insight
	}
	return out
}

func waitTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultWait
	}
	return min(time.Duration(seconds)*time.Second, maxWait)
}

// --- Tool handlers ---

func (s *Server) handleSubmitQuery(ctx context.Context, _ *sdkmcp.CallToolRequest, input submitQueryInput) (*sdkmcp.CallToolResult, stateOutput, error) {
	topK := input.TopK
	if topK == 0 {
		topK = model.DefaultTopK
	}

	run, err := s.orch.Submit(input.Text, topK)
	if err != nil {
		return nil, stateOutput{}, fmt.Errorf("submit_query: %w", err)
	}
	s.log.Info("query submitted", "generation", run.Generation())

	if !input.Wait {
		return nil, toStateOutput(s.orch.State()), nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, waitTimeout(input.TimeoutSeconds))
	defer cancel()

	final, err := run.Wait(waitCtx)
	switch {
	case errors.Is(err, pipeline.ErrRunSuperseded):
		return nil, stateOutput{}, fmt.Errorf("submit_query: run %d was superseded", run.Generation())
	case errors.Is(err, context.DeadlineExceeded):
		// Still running; report progress so the caller can poll get_state
		return nil, toStateOutput(s.orch.State()), nil
	case err != nil:
		return nil, stateOutput{}, fmt.Errorf("submit_query: %w", err)
	}
	return nil, toStateOutput(final), nil
}

func (s *Server) handleGetState(ctx context.Context, _ *sdkmcp.CallToolRequest, input getStateInput) (*sdkmcp.CallToolResult, stateOutput, error) {
	if !input.Wait {
		return nil, toStateOutput(s.orch.State()), nil
	}
	return nil, toStateOutput(s.awaitSettled(ctx, waitTimeout(input.TimeoutSeconds))), nil
}

// awaitSettled blocks until the orchestrator leaves Staging or the timeout
// passes, returning the latest snapshot either way
func (s *Server) awaitSettled(ctx context.Context, timeout time.Duration) pipeline.RunState {
	sub := s.orch.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return s.orch.State()
		case st, ok := <-sub.C():
			if !ok {
				return s.orch.State()
			}
			if st.Phase != pipeline.PhaseStaging {
				return st
			}
		}
	}
}

func (s *Server) handleReset(_ context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, stateOutput, error) {
	s.orch.Reset()
	return nil, toStateOutput(s.orch.State()), nil
}

func (s *Server) handleListStages(_ context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, listStagesOutput, error) {
	stages := pipeline.Stages()
	out := listStagesOutput{Stages: make([]stageOutput, len(stages))}
	for i, st := range stages {
		out.Stages[i] = stageOutput{
			Index:          st.Index,
			Name:           st.Name,
			Title:          st.Title,
			Detail:         st.Detail,
			NominalDelayMs: st.NominalDelay.Milliseconds(),
		}
	}
	return nil, out, nil
}
