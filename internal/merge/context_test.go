package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memberFn(members ...string) func(context.Context, string) (bool, error) {
	return func(_ context.Context, login string) (bool, error) {
		for _, m := range members {
			if m == login {
				return true, nil
			}
		}

		return false, nil
	}
}

func TestMatch(t *testing.T) {
	mctx := testMergeContext()

	tcs := []struct {
		name   string
		pr     *PullRequestRecord
		result MatchResult
	}{
		{
			name:   "base mismatch with include label",
			pr:     &PullRequestRecord{BaseBranch: "master", Author: "outsider", Labels: []string{"include"}},
			result: BaseBranchMismatch,
		},
		{
			name:   "base mismatch of member",
			pr:     &PullRequestRecord{BaseBranch: "master", Author: "member"},
			result: BaseBranchMismatch,
		},
		{
			name:   "member without labels",
			pr:     &PullRequestRecord{BaseBranch: testBase, Author: "member"},
			result: Match,
		},
		{
			name:   "non-member without include label",
			pr:     &PullRequestRecord{BaseBranch: testBase, Author: "outsider", Labels: []string{"bug"}},
			result: NotIncluded,
		},
		{
			name:   "non-member with include label",
			pr:     &PullRequestRecord{BaseBranch: testBase, Author: "outsider", Labels: []string{"bug", "include"}},
			result: Match,
		},
		{
			name:   "include labels are case-insensitive",
			pr:     &PullRequestRecord{BaseBranch: testBase, Author: "outsider", Labels: []string{"INCLUDE"}},
			result: Match,
		},
		{
			name:   "include and exclude label",
			pr:     &PullRequestRecord{BaseBranch: testBase, Author: "outsider", Labels: []string{"include", "exclude"}},
			result: Excluded,
		},
		{
			name:   "member with exclude label",
			pr:     &PullRequestRecord{BaseBranch: testBase, Author: "member", Labels: []string{"Exclude"}},
			result: Excluded,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			result, err := mctx.Match(context.Background(), tc.pr, memberFn("member"))
			require.NoError(t, err)
			assert.Equal(t, tc.result, result, "got: %s, expected: %s", result, tc.result)
		})
	}
}

func TestMatchSkipsMembershipCheckOnBaseMismatch(t *testing.T) {
	mctx := testMergeContext()

	result, err := mctx.Match(
		context.Background(),
		&PullRequestRecord{BaseBranch: "master", Author: "member"},
		func(context.Context, string) (bool, error) {
			t.Error("membership was checked for a pull request with a different base branch")
			return true, nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, BaseBranchMismatch, result)
}

func TestCommitMessage(t *testing.T) {
	tcs := []struct {
		mctx MergeContext
		msg  string
	}{
		{mctx: MergeContext{Base: "develop"}, msg: "merge_into_develop"},
		{mctx: MergeContext{Base: "develop", Include: []string{"a", "b"}}, msg: "merge_into_develop+a+b"},
		{mctx: MergeContext{Base: "develop", Exclude: []string{"c"}}, msg: "merge_into_develop-c"},
		{mctx: MergeContext{Base: "dev_4_4", Include: []string{"a"}, Exclude: []string{"c", "d"}}, msg: "merge_into_dev_4_4+a-c-d"},
	}

	for _, tc := range tcs {
		t.Run(tc.msg, func(t *testing.T) {
			assert.Equal(t, tc.msg, tc.mctx.CommitMessage())
		})
	}
}

func TestForSubmoduleKeepsFilterSettings(t *testing.T) {
	mctx := testMergeContext()
	mctx.Reset = true

	sub := mctx.ForSubmodule("ome", "bioformats")

	assert.Equal(t, &MergeContext{
		Organization: "ome",
		Repository:   "bioformats",
		Base:         testBase,
		Reset:        true,
		Include:      []string{"include"},
		Exclude:      []string{"exclude"},
	}, sub)
}

func TestMatchResultString(t *testing.T) {
	assert.Equal(t, "exclude label is set", Excluded.String())
	assert.Equal(t, "unsupported MatchResult value: 200", MatchResult(200).String())
}
