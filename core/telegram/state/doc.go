// Package state provides a lightweight per-user session store for Telegram bots.
// It is intentionally domain-agnostic: the session payload is a type parameter,
// and every committed change is guarded by a per-user version number.
package state
