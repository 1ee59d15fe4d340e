package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"qforge/internal/audit"
	"qforge/internal/experience"
	"qforge/internal/gate"
	"qforge/internal/logging"
	"qforge/internal/render"
	"qforge/internal/report"
	"qforge/internal/schema"
)

// SessionState tracks the lifecycle of an audit session.
type SessionState string

const (
	StateRunning SessionState = "running"
	StateDone    SessionState = "done"
	StateError   SessionState = "error"
)

// Session drives one audit cycle through MCP tool calls. The cycle runs
// in its own goroutine; the connected client plays the secondary
// reviewer, fed through a channel rendezvous.
type Session struct {
	ID         string
	ReportName string
	Bus        *EventBus

	roundCh     chan int
	narrativeCh chan string
	doneCh      chan struct{}
	cancel      context.CancelFunc

	mu         sync.Mutex
	state      SessionState
	outcome    *audit.Outcome
	err        error
	packet     *audit.HandoffPacket
	reportPath string
	ttlTimer   *time.Timer
	ttl        time.Duration
}

// SessionInput configures NewSession.
type SessionInput struct {
	Report *report.Report
	Schema *schema.Schema
	Store  experience.Store
	// OutDir receives the rendered review reports.
	OutDir  string
	Options audit.Options
}

// NewSession starts the audit cycle goroutine and returns immediately.
// The cycle suspends at each logic-audit round until the client submits
// a narrative (or the round times out).
func NewSession(input SessionInput) (*Session, error) {
	if err := os.MkdirAll(input.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:          "s-" + uuid.NewString()[:8],
		ReportName:  input.Report.Name,
		Bus:         &EventBus{},
		roundCh:     make(chan int, 1),
		narrativeCh: make(chan string),
		doneCh:      make(chan struct{}),
		cancel:      runCancel,
		state:       StateRunning,
	}

	persister := &audit.StorePersister{
		Experience: input.Store,
		SaveReport: func(res *gate.AuditResult, narrative string) (audit.PersistSignal, error) {
			if res.Decision == gate.Approved && strings.TrimSpace(narrative) == "" {
				return audit.SignalNeedsLogicAudit, nil
			}
			path := filepath.Join(input.OutDir, res.ReportName+".review.md")
			if err := os.WriteFile(path, []byte(render.Review(res, narrative)), 0644); err != nil {
				return "", fmt.Errorf("write review report: %w", err)
			}
			sess.setReportPath(path)
			return audit.SignalSaved, nil
		},
	}

	cycle := audit.NewCycle(input.Report, input.Schema, &sessionReviewer{sess: sess}, persister, input.Options)
	sess.Bus.Emit("session_started", "server", map[string]string{
		"report":   input.Report.Name,
		"doc_type": input.Report.DocType,
	})

	go sess.run(runCtx, cycle)
	return sess, nil
}

// sessionReviewer adapts the channel rendezvous to the cycle's reviewer
// interface. Each round announces itself and blocks for the narrative.
type sessionReviewer struct {
	sess  *Session
	round int
}

func (r *sessionReviewer) Review(ctx context.Context, pkt *audit.HandoffPacket) (string, error) {
	r.round++
	r.sess.setPacket(pkt)
	r.sess.Bus.Emit("logic_audit_pending", "server", map[string]string{
		"round": strconv.Itoa(r.round),
	})
	select {
	case r.sess.roundCh <- r.round:
	default:
	}
	select {
	case narrative := <-r.sess.narrativeCh:
		return narrative, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) run(ctx context.Context, cycle *audit.Cycle) {
	defer close(s.doneCh)
	defer s.cancel()
	logger := logging.New("mcp-session")

	out, err := cycle.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateError
		s.err = err
		s.Bus.Emit("session_error", "server", map[string]string{"error": err.Error()})
		logger.Error("audit cycle failed", "report", s.ReportName, "error", err)
		return
	}
	s.state = StateDone
	s.outcome = out
	s.Bus.Emit("session_done", "server", map[string]string{"outcome": out.Reason})
	logger.Info("audit cycle complete", "report", s.ReportName, "outcome", out.Reason)
}

// AwaitRound blocks until the cycle either suspends at a logic-audit
// round or terminates. done=true means the cycle finished without
// needing (further) review.
func (s *Session) AwaitRound(ctx context.Context, timeout time.Duration) (pkt *audit.HandoffPacket, round int, done bool, err error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case round = <-s.roundCh:
		return s.PacketSnapshot(), round, false, nil
	case <-s.doneCh:
		return nil, 0, true, nil
	case <-tctx.Done():
		return nil, 0, false, tctx.Err()
	}
}

// SubmitNarrative hands the client's narrative to the waiting round and
// reports how the cycle responded: another round, or a terminal outcome.
func (s *Session) SubmitNarrative(ctx context.Context, narrative string, timeout time.Duration) (nextRound int, done bool, err error) {
	select {
	case s.narrativeCh <- narrative:
	default:
		return 0, false, fmt.Errorf("no logic audit pending for session %s", s.ID)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case nextRound = <-s.roundCh:
		return nextRound, false, nil
	case <-s.doneCh:
		return 0, true, nil
	case <-tctx.Done():
		return 0, false, tctx.Err()
	}
}

func (s *Session) setPacket(pkt *audit.HandoffPacket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packet = pkt
}

// PacketSnapshot returns the handoff packet, nil before the gate has
// approved. Every call returns the same packet.
func (s *Session) PacketSnapshot() *audit.HandoffPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packet
}

func (s *Session) setReportPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportPath = path
}

// ReportPath returns where the review report was written, if it was.
func (s *Session) ReportPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportPath
}

// GetState returns the current session state.
func (s *Session) GetState() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outcome returns the terminal outcome, nil while running.
func (s *Session) Outcome() *audit.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Err returns any error from the cycle.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done returns a channel that closes when the cycle terminates.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// Cancel terminates the cycle goroutine and releases resources.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.ttlTimer != nil {
		s.ttlTimer.Stop()
	}
	s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// SetTTL arms (or re-arms) the inactivity watchdog: with no Touch within
// ttl the session cancels itself, so an abandoned client cannot leave a
// suspended cycle behind.
func (s *Session) SetTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
	if s.ttlTimer != nil {
		s.ttlTimer.Stop()
	}
	s.ttlTimer = time.AfterFunc(ttl, func() {
		logging.New("mcp-session").Warn("session TTL expired", "id", s.ID)
		s.cancel()
	})
}

// Touch resets the inactivity watchdog. Every tool call touches.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttlTimer != nil {
		s.ttlTimer.Reset(s.ttl)
	}
}
