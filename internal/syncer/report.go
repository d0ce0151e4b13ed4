package syncer

import (
	"time"

	"github.com/brightline/vantage/internal/identity"
)

// Outcome is the terminal state of one competitor within a run.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeStale     Outcome = "stale"
	OutcomeFailed    Outcome = "failed"
)

// FailureReason classifies why a competitor's sync failed. Empty for
// successful outcomes.
type FailureReason string

const (
	// ReasonResearchUnavailable: the research backend kept failing past
	// the retry budget.
	ReasonResearchUnavailable FailureReason = "research_unavailable"

	// ReasonInvalidExtraction: the extraction failed schema validation.
	// Retrying within the run would re-run the same model call, so this
	// is terminal for the competitor.
	ReasonInvalidExtraction FailureReason = "invalid_extraction"

	// ReasonStoreUnavailable: the document store kept failing past the
	// retry budget.
	ReasonStoreUnavailable FailureReason = "store_unavailable"

	// ReasonCancelled: the run was cancelled or timed out before this
	// competitor completed.
	ReasonCancelled FailureReason = "cancelled"

	// ReasonInvalidName: the display name yields no identity key, so no
	// research or write can be attributed to it.
	ReasonInvalidName FailureReason = "invalid_name"
)

// Result is the per-competitor line item of a run report.
type Result struct {
	Key         identity.Key  `json:"identity_key"`
	DisplayName string        `json:"display_name"`
	Outcome     Outcome       `json:"outcome"`
	Reason      FailureReason `json:"reason,omitempty"`

	// Changed lists the attribute names that differed from the prior
	// snapshot. Populated for created and updated outcomes.
	Changed []string `json:"changed_fields,omitempty"`

	// Error carries the failure detail for OutcomeFailed.
	Error string `json:"error,omitempty"`
}

// Report is the full account of one synchronization run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Results []Result `json:"results"`

	// Discovered lists competitor names the research backend proposed
	// that are not yet tracked. Informational only; nothing is synced
	// for them.
	Discovered []string `json:"discovered,omitempty"`

	// Summary is the prose change digest, when one was generated.
	Summary       string `json:"summary,omitempty"`
	SummaryPosted bool   `json:"summary_posted,omitempty"`
}

// Counts tallies results by outcome.
func (r *Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, res := range r.Results {
		counts[res.Outcome]++
	}
	return counts
}

// Failed reports whether any competitor in the run failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}
