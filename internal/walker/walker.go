package walker

import (
	"context"
	"log/slog"
)

// Walker runs observe → decide → act cycles.
type Walker struct {
	Client *Client
	Prompt string // used when seeding
}

// Cycle runs one cycle and returns the plan it executed.
func (w *Walker) Cycle(ctx context.Context) (Plan, error) {
	v, err := w.Client.Observe(ctx)
	if err != nil {
		return Plan{}, err
	}
	slog.Info("observation complete",
		"generated", len(v.Generated),
		"expandable", len(v.Expandable),
		"loading", len(v.Loading),
	)

	plan := Decide(*v)
	switch plan.Action {
	case ActionSeed:
		slog.Info("seeding mosaic")
		return plan, w.Client.Seed(ctx, w.Prompt)
	case ActionExtend:
		if plan.Select != nil {
			slog.Info("moving selection", "to", *plan.Select)
			if err := w.Client.Select(ctx, *plan.Select); err != nil {
				return plan, err
			}
		}
		slog.Info("extending", "target", plan.Target)
		return plan, w.Client.Extend(ctx, plan.Target)
	}
	slog.Info("nothing to do, waiting")
	return plan, nil
}
