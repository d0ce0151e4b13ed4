// Package syncer drives one synchronization run end to end: research each
// requested competitor, normalize the extraction, diff it against the stored
// snapshot, apply the minimal write to the external document store, and
// commit the snapshot only after the store has acknowledged. Runs are
// idempotent: re-running with unchanged inputs performs no external writes.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/brightline/vantage/internal/diff"
	"github.com/brightline/vantage/internal/docstore"
	"github.com/brightline/vantage/internal/identity"
	"github.com/brightline/vantage/internal/ratelimit"
	"github.com/brightline/vantage/internal/record"
	"github.com/brightline/vantage/internal/research"
	"github.com/brightline/vantage/internal/retry"
	"github.com/brightline/vantage/internal/schema"
	"github.com/brightline/vantage/internal/snapshot"
)

// DefaultDiscoveryLookback bounds how far back discovery prompts reach.
const DefaultDiscoveryLookback = 30 * 24 * time.Hour

// Options tunes a Syncer. The zero value selects sensible defaults.
type Options struct {
	// Workers bounds competitor-level concurrency. Defaults to 4.
	Workers int

	// RunTimeout caps a whole run. Competitors still pending when it
	// expires fail with reason cancelled. Zero means no cap.
	RunTimeout time.Duration

	ResearchPolicy retry.Policy
	StorePolicy    retry.Policy

	// Limiters are shared across workers so the aggregate call rate to
	// each collaborator stays bounded regardless of pool size. Nil
	// disables limiting for that collaborator.
	ResearchLimiter *ratelimit.Limiter
	StoreLimiter    *ratelimit.Limiter

	// Summarizer, when set, turns the run's changes into a prose digest
	// appended to the summary document. Optional and non-fatal.
	Summarizer research.Summarizer

	// Discoverer, when set, proposes untracked competitors after the
	// sync completes. Optional and non-fatal.
	Discoverer research.Discoverer

	// DiscoveryLookback bounds the discovery window. Defaults to 30 days.
	DiscoveryLookback time.Duration
}

// Syncer coordinates one run of the synchronization pipeline.
type Syncer struct {
	schema     *schema.Schema
	resolver   *identity.Resolver
	store      snapshot.Store
	docs       docstore.DocStore
	researcher research.Researcher
	opts       Options

	now func() time.Time
}

// New creates a Syncer over the given collaborators.
func New(s *schema.Schema, resolver *identity.Resolver, store snapshot.Store, docs docstore.DocStore, researcher research.Researcher, opts Options) *Syncer {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.DiscoveryLookback <= 0 {
		opts.DiscoveryLookback = DefaultDiscoveryLookback
	}
	return &Syncer{
		schema:     s,
		resolver:   resolver,
		store:      store,
		docs:       docs,
		researcher: researcher,
		opts:       opts,
		now:        time.Now,
	}
}

// entry is one deduplicated competitor to sync.
type entry struct {
	key         identity.Key
	displayName string
}

// Run synchronizes the given competitor display names. Names resolving to
// the same identity key are deduplicated before work starts, so each key has
// exactly one writer for the whole run; the latest-supplied display name
// wins. Run never returns an error for per-competitor failures, only for a
// cancelled context; the report accounts for every input either way.
func (s *Syncer) Run(ctx context.Context, names []string) (*Report, error) {
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	report := &Report{
		RunID:     ulid.Make().String(),
		StartedAt: s.now().UTC(),
	}

	entries, invalid := s.dedupe(names)
	slog.Info("sync run started",
		"component", "syncer",
		"run_id", report.RunID,
		"requested", len(names),
		"deduplicated", len(entries),
		"invalid", len(invalid),
		"workers", s.opts.Workers,
	)

	results := make([]Result, len(entries))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < s.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = s.syncOne(ctx, report.RunID, entries[idx])
			}
		}()
	}
	for i := range entries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	report.Results = results
	report.Results = append(report.Results, invalid...)
	report.Results = append(report.Results, s.staleSnapshots(ctx, entries)...)

	s.summarize(ctx, report)
	s.discover(ctx, report, entries)

	report.FinishedAt = s.now().UTC()
	counts := report.Counts()
	slog.Info("sync run finished",
		"component", "syncer",
		"run_id", report.RunID,
		"created", counts[OutcomeCreated],
		"updated", counts[OutcomeUpdated],
		"unchanged", counts[OutcomeUnchanged],
		"stale", counts[OutcomeStale],
		"failed", counts[OutcomeFailed],
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)
	return report, ctx.Err()
}

// dedupe resolves names to identity keys and collapses duplicates, keeping
// first-appearance order. The display name supplied last for a key wins.
// Names that resolve to no key at all (punctuation-only, whitespace-only)
// come back as failed results so every input is accounted for in the report.
func (s *Syncer) dedupe(names []string) ([]entry, []Result) {
	index := make(map[identity.Key]int, len(names))
	var entries []entry
	var invalid []Result
	for _, name := range names {
		key := s.resolver.Resolve(name)
		if key == "" {
			invalid = append(invalid, s.fail(
				Result{DisplayName: name},
				ReasonInvalidName,
				fmt.Errorf("display name %q resolves to no identity key", name),
			))
			continue
		}
		if i, seen := index[key]; seen {
			entries[i].displayName = name
			continue
		}
		index[key] = len(entries)
		entries = append(entries, entry{key: key, displayName: name})
	}
	return entries, invalid
}

// syncOne runs the full pipeline for a single competitor and always returns
// a terminal Result.
func (s *Syncer) syncOne(ctx context.Context, runID string, e entry) Result {
	res := Result{Key: e.key, DisplayName: e.displayName}

	if ctx.Err() != nil {
		return s.fail(res, ReasonCancelled, ctx.Err())
	}

	raw, err := s.research(ctx, e.displayName)
	if err != nil {
		if ctx.Err() != nil {
			return s.fail(res, ReasonCancelled, err)
		}
		return s.fail(res, ReasonResearchUnavailable, err)
	}

	rec, err := record.Normalize(e.key, e.displayName, s.now().UTC(), raw, s.schema)
	if err != nil {
		return s.fail(res, ReasonInvalidExtraction, err)
	}

	prior, err := s.store.Get(ctx, e.key)
	if err != nil && !errors.Is(err, snapshot.ErrNotFound) {
		return s.fail(res, ReasonStoreUnavailable, err)
	}

	cs := diff.Compute(rec, prior, s.schema)
	res.Changed = cs.Changed

	switch cs.Kind {
	case diff.KindUnchanged:
		// Refresh the timestamp so staleness reflects the last time the
		// record was confirmed current, not the last time it changed.
		if err := s.store.TouchSyncedAt(ctx, e.key, s.now().UTC()); err != nil {
			slog.Warn("failed to refresh sync timestamp",
				"component", "syncer",
				"run_id", runID,
				"identity_key", string(e.key),
				"error", err,
			)
		}
		res.Outcome = OutcomeUnchanged
		return res

	case diff.KindNew:
		ref, err := s.place(ctx, runID, rec, cs.Changed)
		if err != nil {
			return s.classifyStoreFailure(ctx, res, err)
		}
		if err := s.commit(ctx, rec, ref); err != nil {
			return s.fail(res, ReasonStoreUnavailable, err)
		}
		res.Outcome = OutcomeCreated
		return res

	default: // diff.KindUpdated
		ref, err := s.applyUpdate(ctx, runID, rec, docstore.ExternalRef(prior.ExternalRef), cs.Changed)
		if err != nil {
			return s.classifyStoreFailure(ctx, res, err)
		}
		if err := s.commit(ctx, rec, ref); err != nil {
			return s.fail(res, ReasonStoreUnavailable, err)
		}
		res.Outcome = OutcomeUpdated
		return res
	}
}

// place finds or creates the external row for a competitor with no prior
// snapshot. The lookup first covers the crash window where a previous run
// created the row but never committed the snapshot: adopting the existing
// row keeps creates at most-once per identity.
func (s *Syncer) place(ctx context.Context, runID string, rec *record.Record, changed []string) (docstore.ExternalRef, error) {
	var ref docstore.ExternalRef
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		ref, err = s.docs.Find(ctx, rec.Key)
		return err
	})
	switch {
	case err == nil:
		slog.Info("adopted existing external row",
			"component", "syncer",
			"run_id", runID,
			"identity_key", string(rec.Key),
			"external_ref", string(ref),
		)
		// Bring the adopted row up to date before committing.
		return ref, s.storeCall(ctx, func(ctx context.Context) error {
			return s.docs.Update(ctx, ref, rec.Fields.Subset(changed))
		})
	case docstore.IsNotFound(err):
		return ref, s.storeCall(ctx, func(ctx context.Context) error {
			var err error
			ref, err = s.docs.Create(ctx, rec)
			return err
		})
	default:
		return ref, err
	}
}

// applyUpdate writes the changed fields to the existing row. A not-found
// response means the row was deleted out-of-band; the competitor is
// recreated and the new reference replaces the stale one.
func (s *Syncer) applyUpdate(ctx context.Context, runID string, rec *record.Record, ref docstore.ExternalRef, changed []string) (docstore.ExternalRef, error) {
	if ref != "" {
		err := s.storeCall(ctx, func(ctx context.Context) error {
			return s.docs.Update(ctx, ref, rec.Fields.Subset(changed))
		})
		if err == nil {
			return ref, nil
		}
		if !docstore.IsNotFound(err) {
			return ref, err
		}
		slog.Warn("external row missing for tracked competitor",
			"component", "syncer",
			"run_id", runID,
			"action", "reconciled",
			"identity_key", string(rec.Key),
			"stale_ref", string(ref),
		)
	}
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		ref, err = s.docs.Create(ctx, rec)
		return err
	})
	return ref, err
}

// commit replaces the snapshot after the external store acknowledged the
// write. This ordering is the crux of crash safety: an uncommitted snapshot
// only ever means redundant work next run, never lost changes.
func (s *Syncer) commit(ctx context.Context, rec *record.Record, ref docstore.ExternalRef) error {
	return s.store.Put(ctx, &snapshot.Snapshot{
		Key:         rec.Key,
		DisplayName: rec.DisplayName,
		Fields:      rec.Fields,
		ExternalRef: string(ref),
		SyncedAt:    s.now().UTC(),
	})
}

// staleSnapshots reports tracked competitors absent from this run's input.
// They are never deleted here; removal is a human decision.
func (s *Syncer) staleSnapshots(ctx context.Context, entries []entry) []Result {
	inRun := make(map[identity.Key]bool, len(entries))
	for _, e := range entries {
		inRun[e.key] = true
	}

	snaps, err := s.store.All(ctx)
	if err != nil {
		slog.Warn("stale detection skipped",
			"component", "syncer",
			"error", err,
		)
		return nil
	}

	var stale []Result
	for _, snap := range snaps {
		if inRun[snap.Key] {
			continue
		}
		stale = append(stale, Result{
			Key:         snap.Key,
			DisplayName: snap.DisplayName,
			Outcome:     OutcomeStale,
		})
	}
	return stale
}

// research calls the research backend under the shared limiter and retry
// policy. Only transient failures are retried; a malformed extraction would
// fail identically on every attempt.
func (s *Syncer) research(ctx context.Context, displayName string) (research.RawExtraction, error) {
	var raw research.RawExtraction
	err := s.opts.ResearchPolicy.Do(ctx, research.IsTransient, func(ctx context.Context) error {
		if s.opts.ResearchLimiter != nil {
			if err := s.opts.ResearchLimiter.Wait(ctx); err != nil {
				return err
			}
		}
		var err error
		raw, err = s.researcher.Research(ctx, displayName)
		return err
	})
	return raw, err
}

// storeCall runs one document store operation under the shared limiter and
// retry policy. Not-found is a semantic outcome, not a failure, so it is
// never retried.
func (s *Syncer) storeCall(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.opts.StorePolicy.Do(ctx, docstore.IsTransient, func(ctx context.Context) error {
		if s.opts.StoreLimiter != nil {
			if err := s.opts.StoreLimiter.Wait(ctx); err != nil {
				return err
			}
		}
		return fn(ctx)
	})
}

// classifyStoreFailure distinguishes cancellation from store unavailability
// when an external write gives up.
func (s *Syncer) classifyStoreFailure(ctx context.Context, res Result, err error) Result {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return s.fail(res, ReasonCancelled, err)
	}
	return s.fail(res, ReasonStoreUnavailable, err)
}

func (s *Syncer) fail(res Result, reason FailureReason, err error) Result {
	res.Outcome = OutcomeFailed
	res.Reason = reason
	if err != nil {
		res.Error = err.Error()
	}
	slog.Error("competitor sync failed",
		"component", "syncer",
		"identity_key", string(res.Key),
		"display_name", res.DisplayName,
		"reason", string(reason),
		"error", res.Error,
	)
	return res
}
