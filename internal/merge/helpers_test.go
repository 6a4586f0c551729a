package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-github/v43/github"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/jburel/snoopycrimecop/internal/git"
	"github.com/jburel/snoopycrimecop/internal/githubclt"
	"github.com/jburel/snoopycrimecop/internal/merge/mocks"
	"github.com/jburel/snoopycrimecop/internal/retry"
)

const (
	testOrg  = "openmicroscopy"
	testRepo = "openmicroscopy"
	testBase = "develop"
)

// fakeGit records the executed git operations instead of running git.
type fakeGit struct {
	lock sync.Mutex
	cmds []string

	// submodules maps a directory to its submodules
	submodules map[string][]*git.Submodule
	// failures maps a command string, as recorded in cmds, to the error
	// that is returned for it
	failures map[string]error
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		submodules: map[string][]*git.Submodule{},
		failures:   map[string]error{},
	}
}

func (g *fakeGit) record(dir string, args ...string) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	cmd := dir + ": " + strings.Join(args, " ")
	g.cmds = append(g.cmds, cmd)

	return g.failures[cmd]
}

// commands returns the recorded commands that were run in dir.
func (g *fakeGit) commands(dir string) []string {
	g.lock.Lock()
	defer g.lock.Unlock()

	var result []string
	for _, c := range g.cmds {
		if strings.HasPrefix(c, dir+": ") {
			result = append(result, strings.TrimPrefix(c, dir+": "))
		}
	}

	return result
}

func (g *fakeGit) Log(_ context.Context, dir string) error {
	return g.record(dir, "log")
}

func (g *fakeGit) ResetHard(_ context.Context, dir string) error {
	return g.record(dir, "reset", "--hard", "HEAD")
}

func (g *fakeGit) SubmoduleStatus(_ context.Context, dir string) error {
	return g.record(dir, "submodule", "status")
}

func (g *fakeGit) RemoteAdd(_ context.Context, dir, name, url string) error {
	return g.record(dir, "remote", "add", name, url)
}

func (g *fakeGit) RemoteRemove(_ context.Context, dir, name string) error {
	return g.record(dir, "remote", "rm", name)
}

func (g *fakeGit) Fetch(_ context.Context, dir, remote string) error {
	return g.record(dir, "fetch", remote)
}

func (g *fakeGit) MergeNoFF(_ context.Context, dir, msg, commit string) error {
	return g.record(dir, "merge", "--no-ff", "-m", msg, commit)
}

func (g *fakeGit) SubmoduleUpdate(_ context.Context, dir string) error {
	return g.record(dir, "submodule", "update")
}

func (g *fakeGit) CommitAllowEmpty(_ context.Context, dir, msg string) error {
	return g.record(dir, "commit", "--allow-empty", "-a", "-n", "-m", msg)
}

func (g *fakeGit) Submodules(_ context.Context, dir string) ([]*git.Submodule, error) {
	if err := g.record(dir, "submodule", "foreach"); err != nil {
		return nil, err
	}

	return g.submodules[dir], nil
}

type sliceIter struct {
	prs []*github.PullRequest
}

func (it *sliceIter) Next() (*github.PullRequest, error) {
	if len(it.prs) == 0 {
		return nil, nil
	}

	pr := it.prs[0]
	it.prs = it.prs[1:]

	return pr, nil
}

func newPR(nr int, base, login string, labels ...string) *github.PullRequest {
	pr := github.PullRequest{
		Number:  github.Int(nr),
		Title:   github.String(fmt.Sprintf("change %d", nr)),
		HTMLURL: github.String(fmt.Sprintf("https://github.com/%s/%s/pull/%d", testOrg, testRepo, nr)),
		Head: &github.PullRequestBranch{
			SHA:  github.String(fmt.Sprintf("sha%d", nr)),
			User: &github.User{Login: github.String(login)},
		},
		Base: &github.PullRequestBranch{Ref: github.String(base)},
	}

	for _, l := range labels {
		pr.Labels = append(pr.Labels, &github.Label{Name: github.String(l)})
	}

	return &pr
}

// testGithub is the state returned by the mocked github client.
type testGithub struct {
	// pullRequests maps "owner/repo" to its open pull requests
	pullRequests map[string][]*github.PullRequest
	members      map[string]bool
	// comments maps "owner/repo#nr" to the comments of the pull request
	comments map[string][]string
	// missingRepos contains "owner/repo" entries that do not exist
	missingRepos map[string]bool
}

func newTestGithub() *testGithub {
	return &testGithub{
		pullRequests: map[string][]*github.PullRequest{},
		members:      map[string]bool{},
		comments:     map[string][]string{},
		missingRepos: map[string]bool{},
	}
}

func (tg *testGithub) mock(t *testing.T) *mocks.MockGithubClient {
	t.Helper()

	clt := mocks.NewMockGithubClient(gomock.NewController(t))

	clt.EXPECT().
		RateLimit(gomock.Any()).
		Return(&githubclt.RateLimit{Limit: 5000, Remaining: 4000, API: "graphql"}, nil).
		AnyTimes()

	clt.EXPECT().
		Repository(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, owner, repo string) (*github.Repository, error) {
			if tg.missingRepos[owner+"/"+repo] {
				return nil, errors.New("404 Not Found")
			}

			return &github.Repository{Name: github.String(repo)}, nil
		}).
		AnyTimes()

	clt.EXPECT().
		ListPullRequests(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("open"), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, owner, repo, _, _, _ string) githubclt.PRIterator {
			return &sliceIter{prs: append([]*github.PullRequest(nil), tg.pullRequests[owner+"/"+repo]...)}
		}).
		AnyTimes()

	clt.EXPECT().
		IsPublicMember(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, user string) (bool, error) {
			return tg.members[user], nil
		}).
		AnyTimes()

	clt.EXPECT().
		IssueComments(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, owner, repo string, nr int) ([]string, error) {
			return tg.comments[fmt.Sprintf("%s/%s#%d", owner, repo, nr)], nil
		}).
		AnyTimes()

	return clt
}

func newTestConfig(t *testing.T, clt GithubClient, g Git) *Config {
	t.Helper()

	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	retryer := retry.NewRetryer(time.Minute)
	t.Cleanup(retryer.Stop)

	return &Config{
		GithubClient: clt,
		Git:          g,
		Retryer:      retryer,
	}
}

func testMergeContext() *MergeContext {
	return &MergeContext{
		Organization: testOrg,
		Repository:   testRepo,
		Base:         testBase,
		Include:      []string{"include"},
		Exclude:      []string{"exclude"},
	}
}
