// Package npm resolves the full, de-duplicated dependency graph of a
// JavaScript/TypeScript project or yarn workspace.
//
// The package reconciles what a package manager reports (or what is
// installed under node_modules) into exact, cycle-free package identities
// and their transitive relationships. It deliberately never decides what
// to install: the input is an existing install or the manager's own tree
// listing, and the output is a normalized graph suitable for license and
// vulnerability analysis.
//
// Two acquisition strategies produce a raw module tree:
//
//   - a filesystem walker that resolves declared dependency names against
//     installed module directories using ancestor-path search, and
//   - a parser for `yarn list --json` output, whose deduplicated and
//     version-truncated trees are reconciled back into fully expanded
//     forests.
//
// A bounded-concurrency, cache-backed resolver fills in metadata the
// local tree cannot provide via `yarn info --json`.
package npm
