package saga

// WorkResult contains results from an activity's work execution.
// Stores key-value pairs representing the outcome of the forward step,
// such as generated order ids or reservation numbers.
type WorkResult map[string]any
