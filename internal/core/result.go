package core

import (
	"fmt"
	"time"
)

// ResultKind is the closed set of per-test outcomes. Wire payloads carry the
// lowercase string form; everything past the boundary works with the variant.
type ResultKind string

const (
	// ResultPass reports a test that ran and succeeded.
	ResultPass ResultKind = "pass"
	// ResultFail reports an assertion failure, a deterministic outcome of the
	// code under test. Failed tests are never retried.
	ResultFail ResultKind = "fail"
	// ResultError reports that the test (or the suite itself) could not run.
	ResultError ResultKind = "error"
)

// ParseResultKind maps a wire string onto the closed variant. It is the only
// place a free-form kind string is accepted.
func ParseResultKind(s string) (ResultKind, error) {
	switch ResultKind(s) {
	case ResultPass, ResultFail, ResultError:
		return ResultKind(s), nil
	default:
		return "", fmt.Errorf("unknown result kind %q", s)
	}
}

// Result is the outcome of a single named test. Reasons is an ordered
// diagnostic trail (outermost cause first), preserved verbatim for display;
// it is empty for a pass.
type Result struct {
	TestName string     `json:"test_name"`
	Kind     ResultKind `json:"kind"`
	Reasons  []string   `json:"reasons,omitempty"`
}

// ResultSet is the full list of results produced by one execution of a
// commit's test suite. A commit's set is overwritten, never merged, when the
// commit is rebuilt.
type ResultSet struct {
	CommitID   string    `json:"commit_id"`
	Sequence   uint64    `json:"sequence"`
	Results    []Result  `json:"results"`
	ProducedAt time.Time `json:"produced_at"`
}

// SyntheticErrorSet builds the result set recorded when a job exhausts its
// retry budget, so the failure stays visible instead of silently vanishing.
func SyntheticErrorSet(commit Commit, reasons ...string) *ResultSet {
	return &ResultSet{
		CommitID: commit.ID,
		Sequence: commit.Sequence,
		Results: []Result{{
			TestName: "testherd",
			Kind:     ResultError,
			Reasons:  reasons,
		}},
		ProducedAt: time.Now().UTC(),
	}
}

// Counts tallies the set by kind.
func (rs *ResultSet) Counts() (passed, failed, errored int) {
	for _, r := range rs.Results {
		switch r.Kind {
		case ResultPass:
			passed++
		case ResultFail:
			failed++
		case ResultError:
			errored++
		}
	}
	return passed, failed, errored
}

// Headline renders the one-line summary shown by status consumers.
func (rs *ResultSet) Headline() string {
	passed, failed, errored := rs.Counts()
	switch {
	case errored > 0:
		return fmt.Sprintf("%d errored, %d failed, %d passed", errored, failed, passed)
	case failed > 0:
		return fmt.Sprintf("%d failed, %d passed", failed, passed)
	default:
		return fmt.Sprintf("all %d passed", passed)
	}
}
