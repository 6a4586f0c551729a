package merge

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jburel/snoopycrimecop/internal/git"
	"github.com/jburel/snoopycrimecop/internal/logfields"
)

// Submodules runs the merge operation recursively for all submodules of the
// repository.
// For every submodule a Merger scoped to the submodule repository is created.
// If info is true, the candidates of the submodules are only written to the
// info output, otherwise they are merged.
// When merges happened in the submodules, a commit is created that records
// the updated submodule pointers.
func (m *Merger) Submodules(ctx context.Context, info bool) error {
	subs, err := m.cfg.Git.Submodules(ctx, m.dir)
	if err != nil {
		return fmt.Errorf("listing submodules of %s failed: %w", m.dir, err)
	}

	for _, sub := range subs {
		if err := m.processSubmodule(ctx, sub, info); err != nil {
			return err
		}
	}

	if m.modifications == 0 {
		return nil
	}

	msg := m.commitMsg + ": Update all modules w/o hooks"
	if err := m.cfg.Git.CommitAllowEmpty(ctx, m.dir, msg); err != nil {
		return fmt.Errorf("committing submodule updates in %s failed: %w", m.dir, err)
	}

	m.logger.Info(
		"submodule updates committed",
		logfields.Event("submodule_updates_committed"),
		zap.Int("modifications", m.modifications),
	)

	return nil
}

func (m *Merger) processSubmodule(ctx context.Context, sub *git.Submodule, info bool) error {
	owner, repo, err := git.ParseRepositoryURL(sub.URL)
	if err != nil {
		return fmt.Errorf("submodule %s: %w", sub.Path, err)
	}

	dir := filepath.Join(m.dir, sub.Path)

	m.logger.Debug(
		"processing submodule",
		logfields.Event("submodule_processing"),
		zap.String("submodule.path", sub.Path),
		zap.String("submodule.owner", owner),
		zap.String("submodule.repository", repo),
	)

	child, err := New(ctx, m.cfg, m.mctx.ForSubmodule(owner, repo), dir)
	if err != nil {
		return fmt.Errorf("submodule %s: %w", sub.Path, err)
	}

	// failures are logged by Cleanup
	defer func() { _ = child.Cleanup(ctx) }()

	if info {
		err = child.Info()
	} else {
		err = child.Merge(ctx)
	}
	if err != nil {
		return fmt.Errorf("submodule %s: %w", sub.Path, err)
	}

	if err = child.Submodules(ctx, info); err != nil {
		return err
	}

	m.modifications += child.Modifications()

	return nil
}
