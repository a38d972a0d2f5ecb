// Package state persists the session log: one directory per session holding
// numbered per-turn markdown files, a cumulative stats.md and a consolidated
// session.md.
package state

import "github.com/user/thinkstream/internal/types"

// Compile-time interface compliance check.
var _ types.EventSink = (*Logger)(nil)
