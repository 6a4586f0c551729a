// Package merge merges GitHub pull requests into a local git repository and
// its submodules.
//
// A Merger is created per repository. On creation it lists the open pull
// requests of the repository and selects the ones that are based on the
// configured base branch and either are authored by a public member of the
// organization or carry one of the include labels. Pull requests carrying an
// exclude label are never selected, the exclude labels win over the include
// labels and the organization membership.
//
// Merger.Merge fetches the forks of the authors of the selected pull requests
// via temporary git remotes and merges the head commits of the pull requests
// in ascending pull request number order. Merger.Submodules repeats the same
// for every submodule, recursively, and creates a final commit that records
// the changed submodule pointers. Merger.Cleanup removes the temporary
// remotes again.
//
// Lines in pull request comments that start with "--test" are written to a
// file in the repository directory, they are consumed by the CI test
// selection.
package merge
