package audit

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"qforge/internal/report"
	"qforge/internal/schema"
)

// RunAll audits each report in its own cycle, at most parallelism at a
// time. Outcomes come back in input order. The first error cancels the
// remaining cycles.
func RunAll(ctx context.Context, reg *schema.Registry, reps []*report.Report,
	reviewer Stage2Reviewer, persister Persister, opts Options, parallelism int) ([]*Outcome, error) {

	if parallelism <= 0 {
		parallelism = 4
	}
	outcomes := make([]*Outcome, len(reps))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, rep := range reps {
		i, rep := i, rep
		g.Go(func() error {
			sch, err := reg.Load(rep.DocType, rep.SchemaVersion)
			if err != nil {
				return fmt.Errorf("report %s: %w", rep.Name, err)
			}
			out, err := NewCycle(rep, sch, reviewer, persister, opts).Run(ctx)
			if err != nil {
				return fmt.Errorf("report %s: %w", rep.Name, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
