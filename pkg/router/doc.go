// Package router decides what happens to each inbound chat message.
//
// Invariants:
// - Messages from bots, including this one, never reach a backend.
// - A prefixed message is a command and is never answered as conversation.
// - Only channels with a live Session get replies; replies in one channel
//   are sent in message order, other channels proceed concurrently.
// - A reply is split into parts of at most the platform limit and sent in order.
// - A response that arrives after its Session closed is dropped.
package router
