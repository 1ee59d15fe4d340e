package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"qforge/internal/consistency"
	"qforge/internal/experience"
	"qforge/internal/gate"
	"qforge/internal/logging"
	"qforge/internal/report"
	"qforge/internal/schema"
)

// ErrNotEligible is returned by Packet before the gate has approved.
var ErrNotEligible = errors.New("handoff requires an approved gate decision")

// Cycle is one audit of one report. It is not safe for concurrent use;
// run concurrent audits as separate cycles.
type Cycle struct {
	log       *slog.Logger
	rep       *report.Report
	sch       *schema.Schema
	reviewer  Stage2Reviewer
	persister Persister
	opts      Options

	state       State
	result      *gate.AuditResult
	packet      *HandoffPacket
	narrative   string
	outcome     *Outcome
	logicAudits int
}

func NewCycle(rep *report.Report, sch *schema.Schema, reviewer Stage2Reviewer, persister Persister, opts Options) *Cycle {
	return &Cycle{
		log:       logging.New("audit"),
		rep:       rep,
		sch:       sch,
		reviewer:  reviewer,
		persister: persister,
		opts:      opts.withDefaults(),
		state:     StateReceived,
	}
}

// State returns the cycle's current position.
func (c *Cycle) State() State { return c.state }

// Result returns the gate result, nil before evaluation.
func (c *Cycle) Result() *gate.AuditResult { return c.result }

// Packet returns the handoff packet, creating it on first request. Every
// later request returns the same packet.
func (c *Cycle) Packet() (*HandoffPacket, error) {
	if c.packet != nil {
		return c.packet, nil
	}
	if c.result == nil || c.result.Decision != gate.Approved {
		return nil, ErrNotEligible
	}
	sums := make([]gate.SectionSummary, len(c.result.Summaries))
	copy(sums, c.result.Summaries)
	c.packet = &HandoffPacket{
		Fingerprint: c.result.Fingerprint,
		ReportName:  c.result.ReportName,
		DocType:     c.result.DocType,
		Decision:    c.result.Decision,
		Summaries:   sums,
		Questions:   append([]string(nil), c.opts.Questions...),
	}
	return c.packet, nil
}

// Run drives the cycle to a terminal outcome. Calling Run on a persisted
// cycle returns the recorded outcome without duplicating any write.
func (c *Cycle) Run(ctx context.Context) (*Outcome, error) {
	if c.state == StatePersisted {
		c.log.Debug("replay of persisted cycle", "report", c.rep.Name)
		return c.outcome, nil
	}

	res, err := gate.Evaluate(c.rep, c.sch)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}
	if err := consistency.Check(res, c.rep, c.sch); err != nil {
		// consistency failures abort the cycle; nothing is persisted
		return nil, err
	}
	c.result = res
	c.state = StateGateEvaluated
	c.log.Info("gate evaluated",
		"report", res.ReportName,
		"decision", string(res.Decision),
		"failing_critical", len(res.FailingCritical()))

	if res.Decision == gate.Rejected {
		c.state = StateRejected
		return c.finish(ctx, StateRejected, experience.OutcomeRejected, true)
	}

	c.state = StateStage2Pending
	narrative, timedOut, err := c.review(ctx)
	if err != nil {
		return nil, err
	}
	if timedOut {
		c.state = StateRejected
		return c.finish(ctx, StateRejected, experience.OutcomeTimeout, false)
	}
	c.narrative = narrative
	c.state = StateStage2Complete

	for {
		sig, err := c.saveReport(ctx)
		if err != nil {
			return nil, err
		}
		if sig != SignalNeedsLogicAudit {
			break
		}
		c.logicAudits++
		if c.logicAudits > c.opts.MaxLogicAudits {
			c.log.Warn("logic audit rounds exhausted", "report", c.rep.Name, "rounds", c.logicAudits)
			c.state = StateRejected
			return c.finish(ctx, StateRejected, experience.OutcomeExhausted, false)
		}
		c.log.Info("logic audit requested", "report", c.rep.Name, "round", c.logicAudits)
		c.state = StateStage2Pending
		narrative, timedOut, err = c.review(ctx)
		if err != nil {
			return nil, err
		}
		if timedOut {
			c.state = StateRejected
			return c.finish(ctx, StateRejected, experience.OutcomeTimeout, false)
		}
		c.narrative = narrative
		c.state = StateStage2Complete
	}

	return c.finish(ctx, StatePersisted, experience.OutcomeApproved, false)
}

// review runs one bounded secondary-review round. A deadline expiry is a
// timeout outcome, not an error; the sealed result is never touched.
func (c *Cycle) review(ctx context.Context) (narrative string, timedOut bool, err error) {
	pkt, err := c.Packet()
	if err != nil {
		return "", false, err
	}
	rctx, cancel := context.WithTimeout(ctx, c.opts.Stage2Timeout)
	defer cancel()
	narrative, err = c.reviewer.Review(rctx, pkt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.log.Warn("secondary review timed out", "report", c.rep.Name, "window", c.opts.Stage2Timeout)
			return "", true, nil
		}
		return "", false, fmt.Errorf("secondary review: %w", err)
	}
	return narrative, false, nil
}

func (c *Cycle) saveReport(ctx context.Context) (PersistSignal, error) {
	var sig PersistSignal
	err := c.withRetry(ctx, "save review report", func() error {
		var err error
		sig, err = c.persister.SaveReviewReport(ctx, c.result, c.narrative)
		return err
	})
	return sig, err
}

// finish records the terminal outcome: optional report write, one
// experience record, then the cycle is persisted and replayable.
func (c *Cycle) finish(ctx context.Context, terminal State, reason string, withReport bool) (*Outcome, error) {
	if withReport {
		if _, err := c.saveReport(ctx); err != nil {
			return nil, err
		}
	}

	rec := &experience.Record{
		Fingerprint: c.result.Fingerprint,
		ReportName:  c.result.ReportName,
		DocType:     c.result.DocType,
		Decision:    string(c.result.Decision),
		Outcome:     reason,
		Summary:     summaryDigest(c.result),
		Narrative:   c.narrative,
	}
	if err := c.withRetry(ctx, "save experience", func() error {
		return c.persister.SaveExperience(ctx, rec)
	}); err != nil {
		// losing an audit record is a correctness violation; surface it
		return nil, err
	}

	out := &Outcome{
		State:     terminal,
		Reason:    reason,
		Result:    c.result,
		Narrative: c.narrative,
	}
	if terminal == StateRejected {
		out.Failing = c.result.FailingCritical()
	}
	c.outcome = out
	c.state = StatePersisted
	c.log.Info("cycle persisted", "report", c.rep.Name, "outcome", reason)
	return out, nil
}

// withRetry runs fn with bounded, doubling backoff. Exhaustion returns
// the last error; it is never dropped.
func (c *Cycle) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := c.opts.RetryBackoff
	var err error
	for attempt := 1; attempt <= c.opts.PersistAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		c.log.Warn(op+" failed", "attempt", attempt, "error", err)
		if attempt == c.opts.PersistAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%s: %d attempts exhausted: %w", op, c.opts.PersistAttempts, err)
}

// summaryDigest renders the per-section counts as one line, e.g.
// "D3 4/5; D5 2/3".
func summaryDigest(res *gate.AuditResult) string {
	parts := make([]string, 0, len(res.Summaries))
	for _, s := range res.Summaries {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "; ")
}
