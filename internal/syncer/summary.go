package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// summarize produces a prose digest of the run's changes and appends it to
// the summary document. Both steps are best effort: a run whose records
// synced cleanly never fails because the digest did not post.
func (s *Syncer) summarize(ctx context.Context, report *Report) {
	if s.opts.Summarizer == nil {
		return
	}

	changes := changeLines(report.Results)
	if len(changes) == 0 {
		return
	}

	summary, err := s.opts.Summarizer.Summarize(ctx, changes)
	if err != nil {
		slog.Warn("change summary generation failed",
			"component", "syncer",
			"run_id", report.RunID,
			"error", err,
		)
		return
	}
	report.Summary = summary

	title := fmt.Sprintf("Competitor Intelligence Update - %s", s.now().UTC().Format("2006-01-02"))
	err = s.storeCall(ctx, func(ctx context.Context) error {
		return s.docs.AppendSummary(ctx, title, summary)
	})
	if err != nil {
		slog.Warn("change summary post failed",
			"component", "syncer",
			"run_id", report.RunID,
			"error", err,
		)
		return
	}
	report.SummaryPosted = true
}

// changeLines renders one line per created or updated competitor, e.g.
// "Acme Inc. (created): pricing, features".
func changeLines(results []Result) []string {
	var lines []string
	for _, res := range results {
		switch res.Outcome {
		case OutcomeCreated, OutcomeUpdated:
			lines = append(lines, fmt.Sprintf("%s (%s): %s",
				res.DisplayName, res.Outcome, strings.Join(res.Changed, ", ")))
		}
	}
	return lines
}

// discover asks the research backend for competitors not yet tracked and
// records the proposals on the report. Nothing is synced for them; the
// proposals are informational until a human adds the names to the input.
func (s *Syncer) discover(ctx context.Context, report *Report, entries []entry) {
	if s.opts.Discoverer == nil {
		return
	}

	known := make(map[string]bool, len(entries))
	var existing []string
	for _, e := range entries {
		if !known[string(e.key)] {
			known[string(e.key)] = true
			existing = append(existing, e.displayName)
		}
	}
	if snaps, err := s.store.All(ctx); err == nil {
		for _, snap := range snaps {
			if !known[string(snap.Key)] {
				known[string(snap.Key)] = true
				existing = append(existing, snap.DisplayName)
			}
		}
	}

	proposed, err := s.opts.Discoverer.Discover(ctx, existing, s.opts.DiscoveryLookback)
	if err != nil {
		slog.Warn("competitor discovery failed",
			"component", "syncer",
			"run_id", report.RunID,
			"error", err,
		)
		return
	}

	var fresh []string
	for _, name := range proposed {
		key := string(s.resolver.Resolve(name))
		if key == "" || known[key] {
			continue
		}
		known[key] = true
		fresh = append(fresh, name)
	}
	sort.Strings(fresh)
	report.Discovered = fresh

	if len(fresh) > 0 {
		slog.Info("untracked competitors discovered",
			"component", "syncer",
			"run_id", report.RunID,
			"count", len(fresh),
		)
	}
}
