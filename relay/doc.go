// Package relay implements a multi-server chat relay network using an
// IRC-style text protocol with a DCC overlay for client-to-client chat
// and file transfer.
//
// # Registration
//
//   - PASS, NICK, USER drive the pre-registration state machine
//   - reconnection with a matching stored password re-binds the existing
//     client record instead of creating a new one
//
// # Channels
//
//   - JOIN, PART, KICK, TOPIC, NAMES, LIST, INVITE
//   - channel modes: p (private), s (secret), i (invite-only),
//     t (topic settable by ops only), n (no external messages),
//     m (moderated), l (user limit), k (key), b (ban), o (operator),
//     v (voice)
//
// # Messaging
//
//   - PRIVMSG to users and channels, AWAY status
//
// # Federation
//
//   - SERVER / SQUIT form and tear down a spanning tree of servers;
//     all other commands with network-wide effect are forwarded along
//     the tree, never back toward the neighbor a frame arrived from
//
// # DCC
//
//   - CHAT, SEND, ACCEPT, RESUME, STOP, CLOSE negotiate and control an
//     out-of-band stream directly between two clients; the relay only
//     carries the negotiation frames
//
// See the server/rsc persisted file formats in package persistence and
// the command dispatch table in dispatcher.go for the full protocol
// surface.
package relay
