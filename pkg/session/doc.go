// Package session tracks ephemeral AI channels and their conversation history.
//
// Invariants:
// - At most one Session exists per channel; it exists only between the open
//   command and the close command (or expiry, or out-of-band channel removal).
// - Registry mutations are serialized; reads return snapshots of one entry.
// - Deleting a session cancels its lifetime context so in-flight backend calls
//   stop and late responses are dropped.
// - Transcript writes for the same conversation are serialized.
//
// Usage:
//
//	reg := session.NewRegistry()
//	sess := reg.Create("guild", "channel", "user", session.Metadata{ConversationID: "c1"})
//	_, ok := reg.Get(sess.GuildID, sess.ChannelID)
//	_ = ok
//	reg.Delete(sess.GuildID, sess.ChannelID)
package session
