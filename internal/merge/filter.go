package merge

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/google/go-github/v43/github"
	"go.uber.org/zap"

	"github.com/jburel/snoopycrimecop/internal/logfields"
)

func (m *Merger) isPublicMember(ctx context.Context, login string) (bool, error) {
	if isMember, exists := m.memberCache[login]; exists {
		return isMember, nil
	}

	var isMember bool
	err := m.cfg.Retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		isMember, err = m.cfg.GithubClient.IsPublicMember(ctx, m.mctx.Organization, login)
		return err
	}, []zap.Field{logfields.Author(login)})
	if err != nil {
		return false, fmt.Errorf("checking if %s is a public member of %s failed: %w", login, m.mctx.Organization, err)
	}

	m.memberCache[login] = isMember

	return isMember, nil
}

func (m *Merger) match(ctx context.Context, ghPR *github.PullRequest, pr *PullRequestRecord) (MatchResult, error) {
	result, err := m.mctx.Match(ctx, pr, m.isPublicMember)
	if err != nil || result != Match {
		return result, err
	}

	if m.cfg.FilterQuery == nil {
		return result, nil
	}

	queryMatches, err := m.cfg.FilterQuery.Match(ctx, ghPR)
	if err != nil {
		return MatchResultUndefined, fmt.Errorf("evaluating filter query failed: %w", err)
	}

	if !queryMatches {
		return FilterQueryMismatch, nil
	}

	return Match, nil
}

// findCandidates lists all open pull requests of the repository and stores
// the ones that should be merged, sorted by ascending pull request number.
// The "--test" directives of the candidates are written to the test
// directories file.
func (m *Merger) findCandidates(ctx context.Context) error {
	var testDirs []string

	m.logger.Debug("retrieving open pull requests", logfields.Event("pull_request_sync_started"))

	it := m.cfg.GithubClient.ListPullRequests(ctx, m.mctx.Organization, m.mctx.Repository, "open", "created", "asc")
	for {
		var ghPR *github.PullRequest

		err := m.cfg.Retryer.Run(ctx, func(context.Context) error {
			var err error
			ghPR, err = it.Next()
			return err
		}, nil)
		if err != nil {
			return fmt.Errorf("listing pull requests of %s/%s failed: %w", m.mctx.Organization, m.mctx.Repository, err)
		}

		if ghPR == nil { // iteration finished, no more results
			break
		}

		pr, err := newPullRequestRecord(ghPR)
		if err != nil {
			m.logger.Warn(
				"ignoring invalid pull request",
				logfields.Event("github_pull_request_invalid"),
				zap.Error(err),
			)

			continue
		}

		logger := m.logger.With(pr.LogFields...)
		logger.Debug("pull request found", zap.Strings("github.labels", pr.Labels))

		result, err := m.match(ctx, ghPR, pr)
		if err != nil {
			return fmt.Errorf("evaluating pull request #%d failed: %w", pr.Number, err)
		}

		if result != Match {
			metrics.SkippedInc(m.mctx, result)
			logger.Debug(
				"pull request skipped",
				logfields.Event("pull_request_skipped"),
				zap.Stringer("reason", result),
			)

			continue
		}

		if err := m.loadComments(ctx, pr); err != nil {
			return err
		}

		logger.Debug("pull request is a merge candidate", logfields.Event("pull_request_merge_candidate"))

		m.candidates = append(m.candidates, pr)
		m.logins[pr.Author] = struct{}{}
		testDirs = append(testDirs, ExtractTestDirectories(pr.Comments)...)
	}

	sort.SliceStable(m.candidates, func(i, j int) bool {
		return m.candidates[i].Number < m.candidates[j].Number
	})

	m.logger.Info(
		"merge candidates found",
		logfields.Event("merge_candidates_found"),
		zap.Int("candidate_count", len(m.candidates)),
	)

	return m.storeTestDirectories(testDirs)
}

func (m *Merger) loadComments(ctx context.Context, pr *PullRequestRecord) error {
	err := m.cfg.Retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		pr.Comments, err = m.cfg.GithubClient.IssueComments(ctx, m.mctx.Organization, m.mctx.Repository, pr.Number)
		return err
	}, pr.LogFields)
	if err != nil {
		return fmt.Errorf("retrieving comments of pull request #%d failed: %w", pr.Number, err)
	}

	return nil
}

func (m *Merger) storeTestDirectories(dirs []string) error {
	if len(dirs) == 0 {
		return nil
	}

	path := m.cfg.TestDirectoriesFile
	if path == "" {
		path = DefaultTestDirectoriesFile
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(m.dir, path)
	}

	if err := writeTestDirectories(path, dirs); err != nil {
		return fmt.Errorf("writing test directories to %s failed: %w", path, err)
	}

	m.logger.Info(
		"test directories written",
		logfields.Event("test_directories_written"),
		zap.String("path", path),
		zap.Strings("test_directories", dirs),
	)

	return nil
}
