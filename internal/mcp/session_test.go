package mcp

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"qforge/internal/audit"
	"qforge/internal/experience"
	"qforge/internal/report"
	"qforge/internal/schema"
)

func ownerSchema() *schema.Schema {
	return &schema.Schema{
		DocType:          "8d",
		Version:          1,
		Sections:         []string{"D5"},
		CriticalSections: []string{"D5"},
		Criteria: []schema.Criterion{{
			ID:       "d5.owner",
			Section:  "D5",
			Critical: true,
			Rule:     schema.RulePresence,
			Evidence: schema.RequiresEvidence,
			Field:    "owner",
		}},
	}
}

func compliantReport() *report.Report {
	return &report.Report{
		Name:    "CAR-2026-0142",
		DocType: "8d",
		Sections: []report.Section{{
			Name:   "D5",
			Text:   "Owner: J. Chen.",
			Fields: map[string]string{"owner": "J. Chen"},
		}},
	}
}

func newTestSession(t *testing.T, rep *report.Report) *Session {
	t.Helper()
	sess, err := NewSession(SessionInput{
		Report: rep,
		Schema: ownerSchema(),
		Store:  experience.NewMemStore(),
		OutDir: t.TempDir(),
		Options: audit.Options{
			Stage2Timeout: 5 * time.Second,
			RetryBackoff:  time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(sess.Cancel)
	return sess
}

// BDD: Given an approved gate, When the client submits its narrative,
// Then the session completes and the review report lands on disk with
// the narrative attached.
func TestSession_ApprovedRoundTrip(t *testing.T) {
	sess := newTestSession(t, compliantReport())

	pkt, round, done, err := sess.AwaitRound(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("AwaitRound: %v", err)
	}
	if done {
		t.Fatal("cycle must suspend for the logic audit")
	}
	if round != 1 || pkt == nil {
		t.Fatalf("round %d packet %v", round, pkt)
	}

	_, complete, err := sess.SubmitNarrative(context.Background(), "No residual risk found.", 2*time.Second)
	if err != nil {
		t.Fatalf("SubmitNarrative: %v", err)
	}
	if !complete {
		t.Fatal("narrative submission must complete the cycle")
	}
	if out := sess.Outcome(); out == nil || out.Reason != experience.OutcomeApproved {
		t.Fatalf("outcome: %+v", out)
	}

	data, err := os.ReadFile(sess.ReportPath())
	if err != nil {
		t.Fatalf("read review report: %v", err)
	}
	if !strings.Contains(string(data), "No residual risk found.") {
		t.Errorf("review report must carry the narrative:\n%s", data)
	}
}

// BDD: Given a gate rejection, When awaited, Then the session terminates
// without consulting the client.
func TestSession_RejectedFinishesImmediately(t *testing.T) {
	rep := compliantReport()
	rep.Sections[0].Fields = nil
	sess := newTestSession(t, rep)

	_, _, done, err := sess.AwaitRound(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("AwaitRound: %v", err)
	}
	if !done {
		t.Fatal("rejected cycle must terminate without a logic audit round")
	}
	out := sess.Outcome()
	if out == nil || out.Reason != experience.OutcomeRejected {
		t.Fatalf("outcome: %+v", out)
	}
	if len(out.Failing) == 0 {
		t.Error("rejection must enumerate the failing criteria")
	}
}

// BDD: Given an empty narrative, When submitted, Then the cycle requests
// another logic-audit round.
func TestSession_EmptyNarrativeReentersRound(t *testing.T) {
	sess := newTestSession(t, compliantReport())

	if _, _, done, err := sess.AwaitRound(context.Background(), 2*time.Second); err != nil || done {
		t.Fatalf("AwaitRound: done=%v err=%v", done, err)
	}
	next, done, err := sess.SubmitNarrative(context.Background(), "   ", 2*time.Second)
	if err != nil {
		t.Fatalf("SubmitNarrative: %v", err)
	}
	if done || next != 2 {
		t.Fatalf("expected round 2, got done=%v round=%d", done, next)
	}

	if _, complete, err := sess.SubmitNarrative(context.Background(), "Real narrative.", 2*time.Second); err != nil || !complete {
		t.Fatalf("second submission: done=%v err=%v", complete, err)
	}
}

func TestSession_SubmitWithoutPendingRound(t *testing.T) {
	rep := compliantReport()
	rep.Sections[0].Fields = nil
	sess := newTestSession(t, rep)
	<-sess.Done()

	if _, _, err := sess.SubmitNarrative(context.Background(), "text", time.Second); err == nil {
		t.Error("submission without a pending round must error")
	}
}

// BDD: Given an abandoned client, When the TTL expires, Then the
// suspended cycle is canceled.
func TestSession_TTLCancelsAbandonedSession(t *testing.T) {
	sess := newTestSession(t, compliantReport())
	if _, _, done, err := sess.AwaitRound(context.Background(), 2*time.Second); err != nil || done {
		t.Fatalf("AwaitRound: done=%v err=%v", done, err)
	}

	sess.SetTTL(20 * time.Millisecond)
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("TTL expiry must cancel the session")
	}
}
