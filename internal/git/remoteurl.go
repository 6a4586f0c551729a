package git

import (
	"fmt"
	"strings"
)

// ParseRepositoryURL extracts the owner and repository name from a remote URL.
// It supports URLs where owner and repository are separated from the host by
// a slash (https://github.com/org/repo) or by a colon
// (git@github.com:org/repo.git). A trailing ".git" suffix is removed.
func ParseRepositoryURL(url string) (owner, repo string, err error) {
	url = strings.TrimSuffix(strings.TrimSpace(url), "/")

	elems := strings.Split(url, "/")
	if len(elems) < 2 {
		return "", "", fmt.Errorf("can not parse remote url %q, expected it to contain <owner>/<repository>", url)
	}

	owner = elems[len(elems)-2]
	repo = elems[len(elems)-1]

	if idx := strings.LastIndex(owner, ":"); idx != -1 {
		owner = owner[idx+1:]
	}

	repo = strings.TrimSuffix(repo, ".git")

	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("can not parse remote url %q, owner or repository is empty", url)
	}

	return owner, repo, nil
}
