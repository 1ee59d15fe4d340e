// Package audit sequences one review cycle per report: gate evaluation,
// consistency check, the optional secondary narrative review, and
// persistence. Each Cycle owns its state; concurrent cycles share nothing
// but the experience store.
package audit

import (
	"context"
	"time"

	"qforge/internal/experience"
	"qforge/internal/gate"
)

// State is the cycle position. Transitions only move forward.
type State string

const (
	StateReceived       State = "RECEIVED"
	StateGateEvaluated  State = "GATE_EVALUATED"
	StateRejected       State = "REJECTED"
	StateStage2Pending  State = "STAGE2_PENDING"
	StateStage2Complete State = "STAGE2_COMPLETE"
	StatePersisted      State = "PERSISTED"
)

// HandoffPacket is the immutable snapshot handed to the secondary
// reviewer: result digest and bounded risk questions, never the raw
// document. Produced at most once per cycle.
type HandoffPacket struct {
	Fingerprint string                `json:"fingerprint"`
	ReportName  string                `json:"report_name"`
	DocType     string                `json:"doc_type"`
	Decision    gate.Decision         `json:"decision"`
	Summaries   []gate.SectionSummary `json:"summaries"`
	Questions   []string              `json:"questions"`
}

// DefaultQuestions is the bounded risk-flag request attached to every
// handoff unless Options override it.
var DefaultQuestions = []string{
	"Do the corrective actions address the occurrence mechanism, or only the symptom?",
	"Could any corrective action regress an adjacent process step?",
	"Is the validation sample size adequate for the claimed defect rate?",
	"Do the document revisions prevent recurrence on sister lines?",
}

// Stage2Reviewer is the external generative-reasoning collaborator. It
// receives the handoff packet and returns a narrative tagged to the same
// fingerprint. It may block; the cycle bounds it with a deadline.
type Stage2Reviewer interface {
	Review(ctx context.Context, packet *HandoffPacket) (narrative string, err error)
}

// PersistSignal is the saveReviewReport response.
type PersistSignal string

const (
	SignalSaved PersistSignal = "saved"
	// SignalNeedsLogicAudit re-enters the secondary review instead of
	// completing the cycle. It is a protocol response, not an error.
	SignalNeedsLogicAudit PersistSignal = "needs_logic_audit"
)

// Persister is the persistence collaborator. Both operations must
// succeed before a cycle is persisted.
type Persister interface {
	SaveReviewReport(ctx context.Context, res *gate.AuditResult, narrative string) (PersistSignal, error)
	SaveExperience(ctx context.Context, rec *experience.Record) error
}

// Options bound the cycle's external interactions.
type Options struct {
	// Stage2Timeout caps one secondary review round. Expiry rejects the
	// report with reason stage2_timeout; it never silently passes.
	Stage2Timeout time.Duration
	// MaxLogicAudits caps needs_logic_audit re-entries before the cycle
	// terminates as logic_audit_exhausted.
	MaxLogicAudits int
	// PersistAttempts and RetryBackoff bound persistence retries. Backoff
	// doubles per attempt.
	PersistAttempts int
	RetryBackoff    time.Duration
	Questions       []string
}

func (o Options) withDefaults() Options {
	if o.Stage2Timeout <= 0 {
		o.Stage2Timeout = 5 * time.Minute
	}
	if o.MaxLogicAudits <= 0 {
		o.MaxLogicAudits = 3
	}
	if o.PersistAttempts <= 0 {
		o.PersistAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 200 * time.Millisecond
	}
	if o.Questions == nil {
		o.Questions = DefaultQuestions
	}
	return o
}

// Outcome is the terminal record of one cycle.
type Outcome struct {
	State     State             `json:"state"`
	Reason    string            `json:"reason"` // approved, rejected, stage2_timeout, logic_audit_exhausted
	Result    *gate.AuditResult `json:"result"`
	Narrative string            `json:"narrative,omitempty"`
	// Failing enumerates every critical verdict that blocked approval,
	// with its citation or Not Found marker. Never a bare boolean.
	Failing []gate.Verdict `json:"failing,omitempty"`
}
