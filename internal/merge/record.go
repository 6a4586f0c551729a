package merge

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v43/github"
	"go.uber.org/zap"

	"github.com/jburel/snoopycrimecop/internal/logfields"
)

// PullRequestRecord is a snapshot of the pull request information that is
// relevant for merging. It is not refreshed after creation.
type PullRequestRecord struct {
	Number     int
	HeadSHA    string
	BaseBranch string
	// Author is the login of the owner of the head repository, the fork
	// the changes are fetched from.
	Author string
	Title  string
	URL    string
	Labels []string
	// Comments are the bodies of the issue comments, they are only
	// retrieved for merge candidates.
	Comments []string

	LogFields []zap.Field
}

func newPullRequestRecord(pr *github.PullRequest) (*PullRequestRecord, error) {
	if pr.GetNumber() <= 0 {
		return nil, fmt.Errorf("pull request number is %d, must be >0", pr.GetNumber())
	}

	author := pr.GetHead().GetUser().GetLogin()
	if author == "" {
		// the head repository was deleted
		author = pr.GetUser().GetLogin()
	}

	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	return &PullRequestRecord{
		Number:     pr.GetNumber(),
		HeadSHA:    pr.GetHead().GetSHA(),
		BaseBranch: pr.GetBase().GetRef(),
		Author:     author,
		Title:      pr.GetTitle(),
		URL:        pr.GetHTMLURL(),
		Labels:     labels,
		LogFields: []zap.Field{
			logfields.PullRequest(pr.GetNumber()),
			logfields.Commit(pr.GetHead().GetSHA()),
			logfields.Author(author),
			logfields.BaseBranch(pr.GetBase().GetRef()),
		},
	}, nil
}

// HasAnyLabel returns true if the pull request has one of labels.
// Labels are compared case-insensitive.
func (p *PullRequestRecord) HasAnyLabel(labels []string) bool {
	for _, want := range labels {
		for _, have := range p.Labels {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}

	return false
}

func (p *PullRequestRecord) String() string {
	return fmt.Sprintf("# %s %s '%s' (Labels: %s)", p.HeadSHA, p.Author, p.Title, strings.Join(p.Labels, ","))
}
