// Package irc implements the Twitch IRC connection used by the bot: the
// websocket transport with authentication and unbounded jittered reconnect,
// the inbound line parser, the sliding-window outbound rate limiter, and the
// bounded FIFO send queue drained by a single sender per connection.
//
// Liveness: inbound PING probes are answered immediately on the socket,
// bypassing the send queue and its rate budget. A read deadline treats a
// silent connection as dead and forces a reconnect.
//
// Authentication failure is fatal and surfaced via ErrAuthFailed; every other
// connection error is treated as transient.
package irc
