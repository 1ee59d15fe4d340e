package audit

import (
	"context"

	"qforge/internal/experience"
	"qforge/internal/gate"
)

// StorePersister is the default Persister: experience records go to a
// Store, review reports to a caller-supplied sink (a file writer in the
// CLI, the client session in the MCP server).
type StorePersister struct {
	Experience experience.Store
	// SaveReport persists the rendered review report. nil means reports
	// are not persisted and every save answers SignalSaved.
	SaveReport func(res *gate.AuditResult, narrative string) (PersistSignal, error)
}

func (p *StorePersister) SaveReviewReport(_ context.Context, res *gate.AuditResult, narrative string) (PersistSignal, error) {
	if p.SaveReport == nil {
		return SignalSaved, nil
	}
	return p.SaveReport(res, narrative)
}

func (p *StorePersister) SaveExperience(_ context.Context, rec *experience.Record) error {
	_, err := p.Experience.Append(rec)
	return err
}
