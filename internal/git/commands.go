package git

import (
	"context"
	"fmt"
	"strings"
)

// submoduleOriginURLCmd is executed by "git submodule foreach" in every
// submodule.
const submoduleOriginURLCmd = "git config --get remote.origin.url"

// Submodule is a direct submodule of a repository.
type Submodule struct {
	// Path is the path of the submodule, relative to the parent
	// repository.
	Path string
	// URL is the configured remote.origin.url of the submodule.
	URL string
}

func (r *Runner) Log(ctx context.Context, dir string) error {
	return r.Run(ctx, dir, "log", "--oneline", "-n", "1", "HEAD")
}

func (r *Runner) ResetHard(ctx context.Context, dir string) error {
	return r.Run(ctx, dir, "reset", "--hard", "HEAD")
}

func (r *Runner) SubmoduleStatus(ctx context.Context, dir string) error {
	return r.Run(ctx, dir, "submodule", "status")
}

func (r *Runner) RemoteAdd(ctx context.Context, dir, name, url string) error {
	return r.Run(ctx, dir, "remote", "add", name, url)
}

func (r *Runner) RemoteRemove(ctx context.Context, dir, name string) error {
	return r.Run(ctx, dir, "remote", "rm", name)
}

func (r *Runner) Fetch(ctx context.Context, dir, remote string) error {
	return r.Run(ctx, dir, "fetch", remote)
}

// MergeNoFF merges commit into the current branch, always creating a merge
// commit.
func (r *Runner) MergeNoFF(ctx context.Context, dir, msg, commit string) error {
	return r.Run(ctx, dir, "merge", "--no-ff", "-m", msg, commit)
}

func (r *Runner) SubmoduleUpdate(ctx context.Context, dir string) error {
	return r.Run(ctx, dir, "submodule", "update")
}

// CommitAllowEmpty commits all changes of tracked files without running
// the pre-commit hooks. The commit is also created when nothing changed.
func (r *Runner) CommitAllowEmpty(ctx context.Context, dir, msg string) error {
	return r.Run(ctx, dir, "commit", "--allow-empty", "-a", "-n", "-m", msg)
}

// OriginURL returns the configured remote.origin.url.
func (r *Runner) OriginURL(ctx context.Context, dir string) (string, error) {
	out, err := r.Output(ctx, dir, "config", "--get", "remote.origin.url")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

func (r *Runner) Push(ctx context.Context, dir, remote, refspec string) error {
	return r.Run(ctx, dir, "push", remote, refspec)
}

// Submodules returns the direct submodules of the repository in dir.
func (r *Runner) Submodules(ctx context.Context, dir string) ([]*Submodule, error) {
	out, err := r.Output(ctx, dir, "submodule", "foreach", submoduleOriginURLCmd)
	if err != nil {
		return nil, err
	}

	return ParseSubmoduleForeachOutput(out)
}

// ParseSubmoduleForeachOutput parses the output of
// "git submodule foreach 'git config --get remote.origin.url'".
// The output consists of line pairs, an "Entering '<path>'" line followed by
// the URL.
func ParseSubmoduleForeachOutput(out string) ([]*Submodule, error) {
	var result []*Submodule
	var lines []string

	for _, l := range strings.Split(out, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}

		lines = append(lines, l)
	}

	if len(lines)%2 != 0 {
		return nil, fmt.Errorf("unexpected submodule foreach output, got %d non-empty lines, expected an even number: %q", len(lines), out)
	}

	for i := 0; i < len(lines); i += 2 {
		path, err := parseEnteringLine(lines[i])
		if err != nil {
			return nil, err
		}

		result = append(result, &Submodule{
			Path: path,
			URL:  lines[i+1],
		})
	}

	return result, nil
}

func parseEnteringLine(line string) (string, error) {
	const prefix = "Entering "

	if !strings.HasPrefix(line, prefix) {
		return "", fmt.Errorf("unexpected submodule foreach output line %q, expected it to start with %q", line, prefix)
	}

	path := strings.TrimPrefix(line, prefix)
	path = strings.TrimSuffix(strings.TrimPrefix(path, "'"), "'")
	if path == "" {
		return "", fmt.Errorf("submodule foreach output line %q contains an empty path", line)
	}

	return path, nil
}
