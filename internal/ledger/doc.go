// Package ledger keeps a local, append-only transcript of every exchange
// with the agent in SQLite (modernc.org/sqlite, no cgo).
//
// Entries are recorded by the session manager: the user's outbound text,
// the agent's reply, and error replies. Deleting a session purges its
// entries. The database runs in WAL mode and defaults to
// $XDG_DATA_HOME/pitstop/transcript.db.
package ledger
