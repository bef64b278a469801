// Package session owns the client side of a conversation with the agent.
//
// # Overview
//
// The Manager holds the user's session list, the active session, and the
// messages displayed for it. It sits between a front end (the pitstop REPL)
// and the remote agent service, which it reaches through small interfaces:
//
//	mgr := session.NewManager(session.Config{
//		Directory:  client,  // list, create, get, delete sessions
//		Runner:     client,  // send one message, collect the reply
//		Uploader:   router,  // tabular files to extracted text
//		Encoder:    encoder, // generic files to inline data
//		Transcript: ledger,  // optional local record
//	})
//
// # Session Lifecycle
//
//   - Start: list sessions and open the first one
//   - CreateSession: new session goes first in the list and becomes active
//   - SelectSession: clear the history, then load the stored events
//   - DeleteSession: remote first, then local; the first remaining session
//     becomes active when the active one is deleted
//
// Every change of active session bumps an internal epoch. Loads and replies
// remember the epoch they started under and are dropped if it has moved,
// so a slow response never lands in the wrong conversation.
//
// # Sending
//
// SendUserInput routes an attached file by its kind:
//
//  1. Tabular (csv, xls, xlsx): extracted remotely, and the synthesized
//     text is sent and shown in place of the file
//  2. Generic: shown at once as an attachment chip, then encoded inline
//
// Once the user's message is shown exactly one reply follows it, either the
// agent's answer or an error reply.
//
// # Observing State
//
// Snapshot returns a copy of the current state. Subscribe delivers a new
// snapshot after every change; slow subscribers skip intermediate ones.
package session
