package merge

import (
	"context"
	"errors"
	"strings"
)

// MergeContext describes which pull requests of a repository are merged.
type MergeContext struct {
	// Organization is the GitHub organization owning the repository.
	// Pull requests of public members of the organization are merged
	// without requiring an include label.
	Organization string
	Repository   string
	// Base is the name of the branch the pull requests must be based on.
	Base string
	// Reset causes local changes to be discarded before merging.
	Reset   bool
	Include []string
	Exclude []string
}

func (c *MergeContext) validate() error {
	if c.Organization == "" {
		return errors.New("organization is empty")
	}

	if c.Repository == "" {
		return errors.New("repository is empty")
	}

	if c.Base == "" {
		return errors.New("base branch is empty")
	}

	return nil
}

// ForSubmodule returns a copy of c for the submodule repository owner/repo.
func (c *MergeContext) ForSubmodule(owner, repo string) *MergeContext {
	return &MergeContext{
		Organization: owner,
		Repository:   repo,
		Base:         c.Base,
		Reset:        c.Reset,
		Include:      append([]string(nil), c.Include...),
		Exclude:      append([]string(nil), c.Exclude...),
	}
}

// CommitMessage returns the message prefix for commits that are created by
// the merge operations.
// It has the format merge_into_<base>[+<include>...][-<exclude>...].
func (c *MergeContext) CommitMessage() string {
	var sb strings.Builder

	sb.WriteString("merge_into_")
	sb.WriteString(c.Base)

	if len(c.Include) > 0 {
		sb.WriteString("+")
		sb.WriteString(strings.Join(c.Include, "+"))
	}

	if len(c.Exclude) > 0 {
		sb.WriteString("-")
		sb.WriteString(strings.Join(c.Exclude, "-"))
	}

	return sb.String()
}

// Match evaluates if the pull request is a merge candidate.
// isPublicMember is only called when the base branch of the pull request
// matches.
func (c *MergeContext) Match(
	ctx context.Context,
	pr *PullRequestRecord,
	isPublicMember func(ctx context.Context, login string) (bool, error),
) (MatchResult, error) {
	if pr.BaseBranch != c.Base {
		return BaseBranchMismatch, nil
	}

	isMember, err := isPublicMember(ctx, pr.Author)
	if err != nil {
		return MatchResultUndefined, err
	}

	if !isMember && !pr.HasAnyLabel(c.Include) {
		return NotIncluded, nil
	}

	if pr.HasAnyLabel(c.Exclude) {
		return Excluded, nil
	}

	return Match, nil
}
