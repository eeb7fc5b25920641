// Package cli provides the interactive roomchat terminal client.
//
// It drives a session.Machine from typed commands: log in with a local
// identity, claim a username, list, create, join and leave rooms, chat,
// attach files and relay call signaling. A background watcher prints
// messages that arrive through the change feed and reports when the session
// ends because authentication expired.
//
// Key commands:
//   - login / register / logout / reset-identity
//   - rooms / create / join / leave / delete
//   - say (or a bare "/send 5 ICP to bob" transfer intent), attach, signal
//   - messages / members / search / whois / refresh
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
