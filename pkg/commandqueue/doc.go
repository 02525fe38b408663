// Package commandqueue runs tasks in named lanes: one task at a time per lane,
// in arrival order, with different lanes running concurrently.
//
// Invariants:
// - Tasks in the same lane execute in FIFO order, never two at once.
// - A request id is executed at most once within the dedup window.
// - Resetting a lane rejects its queued tasks; a running task finishes.
//
// Usage:
//
//	queue := commandqueue.New()
//	defer queue.Close()
//	err := queue.Enqueue(ctx, "channel:123", func(ctx context.Context) error {
//		return reply(ctx)
//	}, &commandqueue.TaskOptions{RequestID: "message-id"})
package commandqueue
