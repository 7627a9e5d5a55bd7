// Package chat contains the long-lived Twitch IRC session and its subscriber fan-out.
//
// A Session owns exactly one TCP transport at a time and moves through three states:
//   - Disconnected: no transport. Initial state, and the state after any transport fault.
//   - Connected: transport open and the PASS/NICK/JOIN handshake written (no ack is awaited).
//   - Streaming: the read loop is consuming lines.
//
// Start drives the loop: it reads one line at a time, answers PING with PONG, turns PRIVMSG
// lines into Messages and hands each one to every registered Subscriber, awaiting each in
// turn. A read failure tears the transport down and runs the reconnect procedure, which
// retries Connect at a fixed interval (one second by default) until it succeeds. Lines that
// arrive during an outage are lost.
//
// Stop is cooperative: the loop observes it between lines and then disconnects gracefully.
// Cancelling the context passed to Start closes the transport instead, which unblocks a
// pending read.
//
// Credentials come from a TokenProvider resolved on every connect, so a token refreshed in
// the oauth_tokens table is picked up by the next reconnect.
package chat
