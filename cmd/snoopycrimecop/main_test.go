package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryNameFromURL(t *testing.T) {
	tcs := []struct {
		url  string
		repo string
	}{
		{url: "git@github.com:openmicroscopy/openmicroscopy.git", repo: "openmicroscopy"},
		{url: "https://github.com/ome/bioformats", repo: "bioformats"},
		{url: "https://github.com/ome/ome-common.git", repo: "ome-common"},
		{url: "git://github.com/ome/scripts.git", repo: "scripts"},
	}

	for _, tc := range tcs {
		t.Run(tc.url, func(t *testing.T) {
			repo, err := repositoryNameFromURL(tc.url)
			require.NoError(t, err)
			assert.Equal(t, tc.repo, repo)
		})
	}
}

func TestRepositoryNameFromURLRequiresGithub(t *testing.T) {
	for _, url := range []string{
		"https://gitlab.example.com/org/github-mirror.git",
		"git@gitlab.com:org/repo.git",
		"repo.git",
	} {
		t.Run(url, func(t *testing.T) {
			_, err := repositoryNameFromURL(url)
			assert.Error(t, err)
		})
	}
}

func TestPushRefspec(t *testing.T) {
	refspec, push := pushRefspec("develop", 42)
	assert.True(t, push)
	assert.Equal(t, "HEAD:develop/42", refspec)

	_, push = pushRefspec("develop", 0)
	assert.False(t, push)

	_, push = pushRefspec("develop", -1)
	assert.False(t, push)
}

func TestLabelFlagUsage(t *testing.T) {
	usage := labelFlagUsage("include", "merge labelled pull requests")

	assert.Contains(t, usage, "merge labelled pull requests")
	assert.Contains(t, usage, "comma separated")
	assert.Contains(t, usage, "--include a,b")
	assert.Contains(t, usage, "--include a --include b")
}
