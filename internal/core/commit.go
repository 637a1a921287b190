// Package core defines the essential interfaces and data structures that form the
// backbone of the pipeline. These components are designed to be abstract, allowing
// for flexible and decoupled implementations of the application's logic.
package core

import (
	"fmt"
	"strings"
)

// Commit identifies one observed snapshot of the monitored repository.
// Sequence is assigned by the job queue at enqueue time and is the sole
// ordering key for display; commit ids carry no ordering of their own.
type Commit struct {
	ID       string `json:"id"`
	Sequence uint64 `json:"sequence"`
	RepoURL  string `json:"repo_url"`
}

// CommitNotification is the contract between a commit source and the
// pipeline: deliver a commit id plus the repository it belongs to,
// at-least-once. Redelivery of a commit with a live job is a no-op.
type CommitNotification struct {
	CommitID string `json:"commit_id"`
	RepoURL  string `json:"repo_url"`
}

// Validate checks that a notification is complete enough to act on.
func (n CommitNotification) Validate() error {
	if strings.TrimSpace(n.CommitID) == "" {
		return fmt.Errorf("commit notification is missing a commit id")
	}
	if strings.TrimSpace(n.RepoURL) == "" {
		return fmt.Errorf("commit notification for %s is missing a repository URL", n.CommitID)
	}
	return nil
}
