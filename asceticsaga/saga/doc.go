// Package saga runs an ordered list of compensable activities in-process.
//
// Activities run sequentially in ascending order. When one of them fails,
// every activity that already completed is compensated in reverse order
// (or concurrently, when the executor is configured for parallel
// compensation) and the original failure is returned to the caller.
// A failing compensation is logged and recorded on the Run; it never stops
// the remaining compensations.
//
// Retries are a property of individual activities (see RetryPolicy) and
// apply only to transient failures. Business rejections (see Reject) fail
// the activity immediately.
package saga
