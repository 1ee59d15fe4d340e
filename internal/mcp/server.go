package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qforge/internal/audit"
	"qforge/internal/experience"
	"qforge/internal/gate"
	"qforge/internal/logging"
	"qforge/internal/report"
	"qforge/internal/schema"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	// DefaultAwaitTimeout bounds how long a tool call waits for the cycle
	// to reach its next suspension point. The gate itself is fast; this
	// only covers scheduling.
	DefaultAwaitTimeout = 10 * time.Second
	DefaultSessionTTL   = 5 * time.Minute
)

// Server wraps the MCP SDK server and manages audit sessions. One
// session is active at a time; the connected client is the secondary
// reviewer for it.
type Server struct {
	MCPServer *sdkmcp.Server
	Registry  *schema.Registry
	Store     experience.Store
	OutDir    string
	Options   audit.Options

	mu      sync.Mutex
	session *Session
}

// NewServer creates an MCP server exposing the audit tools.
func NewServer(reg *schema.Registry, store experience.Store, outDir string) *Server {
	s := &Server{Registry: reg, Store: store, OutDir: outDir}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "qforge", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "review_report",
		Description: "Run the deterministic gate on a corrective-action report. Returns the verdicts, and when the gate approves, the logic-audit prompt for the secondary review.",
	}, s.handleReviewReport)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "prepare_logic_audit_packet",
		Description: "Return the handoff packet for the current session's logic audit. Idempotent: repeated calls return the same packet.",
	}, s.handlePreparePacket)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "save_review_report",
		Description: "Submit the logic-audit narrative. Persists the review report and experience record, or requests another audit round.",
	}, s.handleSaveReviewReport)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_experience",
		Description: "Query prior audit outcomes, by report fingerprint or most recent first. Advisory context only; past outcomes never change a current verdict.",
	}, s.handleGetExperience)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "save_experience",
		Description: "Append a manual disposition record for a completed audit (e.g. the human reviewer's final call).",
	}, s.handleSaveExperience)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_audit_events",
		Description: "Read the session's audit event log. Returns all events, or events since a given index.",
	}, s.handleGetAuditEvents)
}

// --- Tool input/output types ---

type reviewReportInput struct {
	ReportPath string `json:"report_path,omitempty" jsonschema:"path to the structured report (JSON or YAML)"`
	ReportJSON string `json:"report_json,omitempty" jsonschema:"inline structured report, JSON"`
	Force      bool   `json:"force,omitempty" jsonschema:"cancel any active session and start fresh"`
}

type reviewReportOutput struct {
	SessionID        string                `json:"session_id"`
	Status           string                `json:"status"` // logic_audit_pending or a terminal reason
	Decision         gate.Decision         `json:"decision"`
	Summaries        []gate.SectionSummary `json:"summaries,omitempty"`
	Failing          []gate.Verdict        `json:"failing,omitempty"`
	Round            int                   `json:"round,omitempty"`
	LogicAuditPrompt string                `json:"logic_audit_prompt,omitempty"`
	ReportPath       string                `json:"report_path,omitempty"`
	PriorAudits      int                   `json:"prior_audits"`
}

type preparePacketInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from review_report"`
}

type preparePacketOutput struct {
	Packet *audit.HandoffPacket `json:"packet"`
	Prompt string               `json:"prompt"`
}

type saveReviewReportInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from review_report"`
	Narrative string `json:"narrative" jsonschema:"logic-audit narrative to attach to the review report"`
}

type saveReviewReportOutput struct {
	Status     string `json:"status"` // saved reason, or needs_logic_audit
	Round      int    `json:"round,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	ReportPath string `json:"report_path,omitempty"`
}

type getExperienceInput struct {
	Fingerprint string `json:"fingerprint,omitempty" jsonschema:"report fingerprint to query; empty returns most recent records"`
	Limit       int    `json:"limit,omitempty" jsonschema:"max records for the recent listing (default 10)"`
}

type getExperienceOutput struct {
	Records []*experience.Record `json:"records"`
}

type saveExperienceInput struct {
	Fingerprint string `json:"fingerprint" jsonschema:"report fingerprint"`
	ReportName  string `json:"report_name" jsonschema:"report name"`
	DocType     string `json:"doc_type,omitempty" jsonschema:"document type (default 8d)"`
	Decision    string `json:"decision" jsonschema:"gate decision recorded (PASS or REJECT)"`
	Outcome     string `json:"outcome" jsonschema:"final disposition"`
	Summary     string `json:"summary,omitempty" jsonschema:"per-section digest"`
	Narrative   string `json:"narrative,omitempty" jsonschema:"reviewer narrative"`
}

type saveExperienceOutput struct {
	ID int64 `json:"id"`
}

type getAuditEventsInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from review_report"`
	Since     int    `json:"since,omitempty" jsonschema:"return events from this index onward (0-based)"`
}

type getAuditEventsOutput struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
}

// --- Tool handlers ---

func (s *Server) handleReviewReport(ctx context.Context, _ *sdkmcp.CallToolRequest, input reviewReportInput) (*sdkmcp.CallToolResult, reviewReportOutput, error) {
	logger := logging.New("mcp-session")

	rep, err := s.loadReport(input)
	if err != nil {
		return nil, reviewReportOutput{}, err
	}
	sch, err := s.Registry.Load(rep.DocType, rep.SchemaVersion)
	if err != nil {
		return nil, reviewReportOutput{}, err
	}

	s.mu.Lock()
	if s.session != nil {
		select {
		case <-s.session.Done():
			logger.Info("replacing completed session", "old_id", s.session.ID)
			s.session.Cancel()
		default:
			if input.Force {
				logger.Warn("force-replacing active session", "old_id", s.session.ID)
				s.session.Cancel()
			} else {
				s.mu.Unlock()
				return nil, reviewReportOutput{}, fmt.Errorf("an audit session is already running (id=%s)", s.session.ID)
			}
		}
	}
	s.session = nil
	s.mu.Unlock()

	priors, err := s.Store.Query(rep.Fingerprint())
	if err != nil {
		return nil, reviewReportOutput{}, fmt.Errorf("query experience: %w", err)
	}

	sess, err := NewSession(SessionInput{
		Report:  rep,
		Schema:  sch,
		Store:   s.Store,
		OutDir:  s.OutDir,
		Options: s.Options,
	})
	if err != nil {
		return nil, reviewReportOutput{}, err
	}
	sess.SetTTL(DefaultSessionTTL)

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	pkt, round, done, err := sess.AwaitRound(ctx, DefaultAwaitTimeout)
	if err != nil {
		return nil, reviewReportOutput{}, fmt.Errorf("review_report: %w", err)
	}

	out := reviewReportOutput{SessionID: sess.ID, PriorAudits: len(priors)}
	if done {
		if sessErr := sess.Err(); sessErr != nil {
			return nil, reviewReportOutput{}, sessErr
		}
		o := sess.Outcome()
		out.Status = o.Reason
		out.Decision = o.Result.Decision
		out.Summaries = o.Result.Summaries
		out.Failing = o.Failing
		out.ReportPath = sess.ReportPath()
		return nil, out, nil
	}

	out.Status = "logic_audit_pending"
	out.Decision = pkt.Decision
	out.Summaries = pkt.Summaries
	out.Round = round
	out.LogicAuditPrompt = BuildLogicAuditPrompt(pkt, priors)
	return nil, out, nil
}

func (s *Server) handlePreparePacket(_ context.Context, _ *sdkmcp.CallToolRequest, input preparePacketInput) (*sdkmcp.CallToolResult, preparePacketOutput, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, preparePacketOutput{}, err
	}
	sess.Touch()

	pkt := sess.PacketSnapshot()
	if pkt == nil {
		return nil, preparePacketOutput{}, fmt.Errorf("no handoff packet: the gate has not approved this report")
	}
	priors, err := s.Store.Query(pkt.Fingerprint)
	if err != nil {
		return nil, preparePacketOutput{}, fmt.Errorf("query experience: %w", err)
	}
	return nil, preparePacketOutput{
		Packet: pkt,
		Prompt: BuildLogicAuditPrompt(pkt, priors),
	}, nil
}

func (s *Server) handleSaveReviewReport(ctx context.Context, _ *sdkmcp.CallToolRequest, input saveReviewReportInput) (*sdkmcp.CallToolResult, saveReviewReportOutput, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, saveReviewReportOutput{}, err
	}
	sess.Touch()

	nextRound, done, err := sess.SubmitNarrative(ctx, input.Narrative, DefaultAwaitTimeout)
	if err != nil {
		return nil, saveReviewReportOutput{}, fmt.Errorf("save_review_report: %w", err)
	}
	if !done {
		pkt := sess.PacketSnapshot()
		return nil, saveReviewReportOutput{
			Status: string(audit.SignalNeedsLogicAudit),
			Round:  nextRound,
			Prompt: BuildLogicAuditPrompt(pkt, nil),
		}, nil
	}
	if sessErr := sess.Err(); sessErr != nil {
		return nil, saveReviewReportOutput{}, sessErr
	}
	return nil, saveReviewReportOutput{
		Status:     sess.Outcome().Reason,
		ReportPath: sess.ReportPath(),
	}, nil
}

func (s *Server) handleGetExperience(_ context.Context, _ *sdkmcp.CallToolRequest, input getExperienceInput) (*sdkmcp.CallToolResult, getExperienceOutput, error) {
	var (
		records []*experience.Record
		err     error
	)
	if input.Fingerprint != "" {
		records, err = s.Store.Query(input.Fingerprint)
	} else {
		limit := input.Limit
		if limit <= 0 {
			limit = 10
		}
		records, err = s.Store.Recent(limit)
	}
	if err != nil {
		return nil, getExperienceOutput{}, fmt.Errorf("get_experience: %w", err)
	}
	return nil, getExperienceOutput{Records: records}, nil
}

func (s *Server) handleSaveExperience(_ context.Context, _ *sdkmcp.CallToolRequest, input saveExperienceInput) (*sdkmcp.CallToolResult, saveExperienceOutput, error) {
	if input.Fingerprint == "" {
		return nil, saveExperienceOutput{}, fmt.Errorf("fingerprint is required")
	}
	if input.Outcome == "" {
		return nil, saveExperienceOutput{}, fmt.Errorf("outcome is required")
	}
	docType := input.DocType
	if docType == "" {
		docType = "8d"
	}
	id, err := s.Store.Append(&experience.Record{
		Fingerprint: input.Fingerprint,
		ReportName:  input.ReportName,
		DocType:     docType,
		Decision:    input.Decision,
		Outcome:     input.Outcome,
		Summary:     input.Summary,
		Narrative:   input.Narrative,
	})
	if err != nil {
		return nil, saveExperienceOutput{}, fmt.Errorf("save_experience: %w", err)
	}
	return nil, saveExperienceOutput{ID: id}, nil
}

func (s *Server) handleGetAuditEvents(_ context.Context, _ *sdkmcp.CallToolRequest, input getAuditEventsInput) (*sdkmcp.CallToolResult, getAuditEventsOutput, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, getAuditEventsOutput{}, err
	}
	return nil, getAuditEventsOutput{
		Events: sess.Bus.Since(input.Since),
		Total:  sess.Bus.Len(),
	}, nil
}

func (s *Server) loadReport(input reviewReportInput) (*report.Report, error) {
	switch {
	case input.ReportPath != "":
		return report.LoadFromPath(input.ReportPath)
	case input.ReportJSON != "":
		return report.Load([]byte(input.ReportJSON), ".json")
	default:
		return nil, fmt.Errorf("one of report_path or report_json is required")
	}
}

// SessionID returns the current session's ID, or empty string if none.
func (s *Server) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session.ID
	}
	return ""
}

// Shutdown cancels any active session, releasing the cycle goroutine.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Cancel()
		s.session = nil
	}
}

func (s *Server) getSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, fmt.Errorf("no active session (call review_report first)")
	}
	if s.session.ID != id {
		return nil, fmt.Errorf("session_id mismatch: have %s, got %s", s.session.ID, id)
	}
	return s.session, nil
}
