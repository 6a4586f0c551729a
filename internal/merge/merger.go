package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/google/go-github/v43/github"
	"go.uber.org/zap"

	"github.com/jburel/snoopycrimecop/internal/git"
	"github.com/jburel/snoopycrimecop/internal/githubclt"
	"github.com/jburel/snoopycrimecop/internal/logfields"
)

const loggerName = "merger"

// DefaultForkURLTemplate is the template for the URL of the fork a pull request
// is fetched from.
const DefaultForkURLTemplate = "https://github.com/{{.Login}}/{{.Repository}}.git"

const remotePrefix = "merge_"

//go:generate mockgen -package mocks -destination mocks/githubclient.go . GithubClient

type GithubClient interface {
	ListPullRequests(ctx context.Context, owner, repo, state, sort, sortDirection string) githubclt.PRIterator
	IssueComments(ctx context.Context, owner, repo string, issueOrPRNr int) ([]string, error)
	IsPublicMember(ctx context.Context, org, user string) (bool, error)
	Repository(ctx context.Context, owner, repo string) (*github.Repository, error)
	RateLimit(ctx context.Context) (*githubclt.RateLimit, error)
}

// Git runs git operations in a repository directory.
type Git interface {
	Log(ctx context.Context, dir string) error
	ResetHard(ctx context.Context, dir string) error
	SubmoduleStatus(ctx context.Context, dir string) error
	RemoteAdd(ctx context.Context, dir, name, url string) error
	RemoteRemove(ctx context.Context, dir, name string) error
	Fetch(ctx context.Context, dir, remote string) error
	MergeNoFF(ctx context.Context, dir, msg, commit string) error
	SubmoduleUpdate(ctx context.Context, dir string) error
	CommitAllowEmpty(ctx context.Context, dir, msg string) error
	Submodules(ctx context.Context, dir string) ([]*git.Submodule, error)
}

// Retryer is an interface used for running GithubClient methods repeatedly if
// they fail with a temporary error.
type Retryer interface {
	Run(context.Context, func(context.Context) error, []zap.Field) error
}

// Config contains the dependencies and settings that are shared by the
// Mergers of a repository and all its submodules.
type Config struct {
	GithubClient GithubClient
	Git          Git
	Retryer      Retryer

	// FilterQuery is optional, when it is set pull requests must
	// additionally match it to become merge candidates.
	FilterQuery *FilterQuery
	// ForkURLTemplate is executed with a forkURLData value.
	// If it is nil, DefaultForkURLTemplate is used.
	ForkURLTemplate *template.Template
	// TestDirectoriesFile is the file the directories of "--test"
	// directives are written to. Relative paths are relative to the
	// repository directory.
	// If it is empty, DefaultTestDirectoriesFile is used.
	TestDirectoriesFile string
	// InfoOutput is where Info() writes to, defaults to os.Stdout.
	InfoOutput io.Writer
}

type forkURLData struct {
	Login      string
	Repository string
}

// ParseForkURLTemplate parses a fork url template.
// The template can refer to the fields .Login and .Repository.
func ParseForkURLTemplate(tmpl string) (*template.Template, error) {
	t, err := template.New("fork_url").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, err
	}

	if _, err := renderForkURL(t, "login", "repo"); err != nil {
		return nil, err
	}

	return t, nil
}

func renderForkURL(t *template.Template, login, repo string) (string, error) {
	var sb strings.Builder

	if err := t.Execute(&sb, &forkURLData{Login: login, Repository: repo}); err != nil {
		return "", err
	}

	return sb.String(), nil
}

// Merger merges the merge candidates of one repository into the checked out
// branch of its local clone.
type Merger struct {
	cfg  *Config
	mctx *MergeContext
	dir  string

	logger    *zap.Logger
	commitMsg string

	candidates    []*PullRequestRecord
	logins        map[string]struct{}
	memberCache   map[string]bool
	modifications int

	remotes map[string]string
}

// New creates a Merger for the repository in dir and determines its merge
// candidates.
// When mctx.Reset is true, local changes in dir are discarded first.
// If the repository can not be found at GitHub an error is returned.
func New(ctx context.Context, cfg *Config, mctx *MergeContext, dir string) (*Merger, error) {
	if err := mctx.validate(); err != nil {
		return nil, err
	}

	if cfg.GithubClient == nil || cfg.Git == nil || cfg.Retryer == nil {
		return nil, errors.New("github client, git or retryer is nil")
	}

	m := Merger{
		cfg:         cfg,
		mctx:        mctx,
		dir:         dir,
		commitMsg:   mctx.CommitMessage(),
		logins:      map[string]struct{}{},
		memberCache: map[string]bool{},
		remotes:     map[string]string{},
		logger: zap.L().Named(loggerName).With(
			logfields.RepositoryOwner(mctx.Organization),
			logfields.Repository(mctx.Repository),
			logfields.Directory(dir),
		),
	}

	if mctx.Reset {
		m.logger.Debug("resetting", logfields.Event("git_reset"))
		if err := cfg.Git.ResetHard(ctx, dir); err != nil {
			return nil, fmt.Errorf("resetting %s failed: %w", dir, err)
		}
	}

	m.logger.Debug("checking current status", logfields.Event("git_status"))
	if err := cfg.Git.Log(ctx, dir); err != nil {
		return nil, fmt.Errorf("showing HEAD commit of %s failed: %w", dir, err)
	}

	if err := cfg.Git.SubmoduleStatus(ctx, dir); err != nil {
		return nil, fmt.Errorf("showing submodule status of %s failed: %w", dir, err)
	}

	m.logRateLimit(ctx)

	if err := m.checkRepository(ctx); err != nil {
		return nil, err
	}

	if err := m.findCandidates(ctx); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *Merger) logRateLimit(ctx context.Context) {
	rl, err := m.cfg.GithubClient.RateLimit(ctx)
	if err != nil {
		m.logger.Info(
			"retrieving github api rate limit failed",
			logfields.Event("github_rate_limit_retrieval_failed"),
			zap.Error(err),
		)

		return
	}

	m.logger.Debug("remaining github api requests", rl.LogFields()...)
}

func (m *Merger) checkRepository(ctx context.Context) error {
	err := m.cfg.Retryer.Run(ctx, func(ctx context.Context) error {
		_, err := m.cfg.GithubClient.Repository(ctx, m.mctx.Organization, m.mctx.Repository)
		return err
	}, nil)
	if err != nil {
		m.logger.Error(
			"repository not found",
			logfields.Event("github_repository_lookup_failed"),
			zap.Error(err),
		)

		return fmt.Errorf("looking up repository %s/%s failed: %w", m.mctx.Organization, m.mctx.Repository, err)
	}

	return nil
}

// Candidates returns the pull requests that are merged, in merge order.
func (m *Merger) Candidates() []*PullRequestRecord {
	return m.candidates
}

// Modifications returns the number of merges done by m and the Mergers of
// its submodules.
func (m *Merger) Modifications() int {
	return m.modifications
}

// Logins returns the sorted unique logins of the authors of the merge
// candidates.
func (m *Merger) Logins() []string {
	result := make([]string, 0, len(m.logins))
	for login := range m.logins {
		result = append(result, login)
	}

	sort.Strings(result)

	return result
}

// Merge fetches the forks of all candidate authors and merges the candidates
// in ascending pull request number order into the current branch.
// Afterwards the submodules are updated.
// Temporary remotes that are created are not removed, Cleanup must be called
// for it.
func (m *Merger) Merge(ctx context.Context) error {
	logins := m.Logins()

	m.logger.Debug("fetching forks of candidate authors", zap.Strings("github.authors", logins))

	for _, login := range logins {
		if err := m.fetchFork(ctx, login); err != nil {
			return err
		}
	}

	for _, pr := range m.candidates {
		msg := fmt.Sprintf("%s: PR %d (%s)", m.commitMsg, pr.Number, pr.Title)
		if err := m.cfg.Git.MergeNoFF(ctx, m.dir, msg, pr.HeadSHA); err != nil {
			metrics.MergeFailedInc(m.mctx)
			return fmt.Errorf("merging pull request #%d (%s) failed: %w", pr.Number, pr.HeadSHA, err)
		}

		m.modifications++
		metrics.MergedInc(m.mctx)

		m.logger.Info(
			"pull request merged",
			append([]zap.Field{logfields.Event("pull_request_merged")}, pr.LogFields...)...,
		)
	}

	if err := m.cfg.Git.SubmoduleUpdate(ctx, m.dir); err != nil {
		return fmt.Errorf("updating submodules of %s failed: %w", m.dir, err)
	}

	return nil
}

func (m *Merger) fetchFork(ctx context.Context, login string) error {
	tmpl := m.cfg.ForkURLTemplate
	if tmpl == nil {
		tmpl = template.Must(ParseForkURLTemplate(DefaultForkURLTemplate))
	}

	url, err := renderForkURL(tmpl, login, m.mctx.Repository)
	if err != nil {
		return fmt.Errorf("rendering fork url for %s failed: %w", login, err)
	}

	name := remotePrefix + login

	if err := m.cfg.Git.RemoteAdd(ctx, m.dir, name, url); err != nil {
		return fmt.Errorf("adding remote %s (%s) failed: %w", name, url, err)
	}

	m.remotes[name] = url

	if err := m.cfg.Git.Fetch(ctx, m.dir, name); err != nil {
		return fmt.Errorf("fetching remote %s (%s) failed: %w", name, url, err)
	}

	return nil
}

// Info writes the merge candidates to Config.InfoOutput.
func (m *Merger) Info() error {
	out := m.cfg.InfoOutput
	if out == nil {
		out = os.Stdout
	}

	for _, pr := range m.candidates {
		_, err := fmt.Fprintf(out, "# %s\n%s %s by %s\n\n",
			strings.Join(pr.Labels, " "), pr.URL, pr.Title, pr.Author,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// Cleanup removes all temporary remotes that were added by Merge.
// Failing to remove a remote does not abort the cleanup, all errors are
// returned joined.
func (m *Merger) Cleanup(ctx context.Context) error {
	// cleanup must also happen when the operation was cancelled
	ctx = context.WithoutCancel(ctx)

	names := make([]string, 0, len(m.remotes))
	for name := range m.remotes {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := m.cfg.Git.RemoteRemove(ctx, m.dir, name); err != nil {
			m.logger.Error(
				"removing remote failed",
				logfields.Event("git_remote_removal_failed"),
				logfields.Remote(name),
				zap.Error(err),
			)

			errs = append(errs, fmt.Errorf("removing remote %s failed: %w", name, err))
			continue
		}

		delete(m.remotes, name)
	}

	return errors.Join(errs...)
}
