package core

import (
	"fmt"

	"github.com/google/go-github/v73/github"
)

// NotificationFromPush transforms a raw GitHub push event into the pipeline's
// internal commit notification. It acts as an anti-corruption layer: the
// payload is validated here, once, so nothing past the boundary has to deal
// with partial webhook data. Branch deletions and empty pushes are rejected.
func NotificationFromPush(event *github.PushEvent) (*CommitNotification, error) {
	if event.GetDeleted() {
		return nil, fmt.Errorf("push deletes ref %s", event.GetRef())
	}

	headSHA := event.GetHeadCommit().GetID()
	if headSHA == "" {
		headSHA = event.GetAfter()
	}
	if headSHA == "" {
		return nil, fmt.Errorf("push event carries no head commit")
	}

	repo := event.GetRepo()
	if repo == nil || repo.GetCloneURL() == "" {
		return nil, fmt.Errorf("push event is missing repository information")
	}

	return &CommitNotification{
		CommitID: headSHA,
		RepoURL:  repo.GetCloneURL(),
	}, nil
}
