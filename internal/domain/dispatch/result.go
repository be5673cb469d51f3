// Package dispatch defines the normalized outcome of one execution attempt
// and the tolerant parsing of the external command's output.
package dispatch

import "time"

// Result is the normalized outcome of one execution attempt. It is never
// stored directly; it is absorbed into the Task record and the owning
// agent's rolling metrics.
type Result struct {
	Success    bool          `json:"success"`
	Reply      string        `json:"reply,omitempty"`
	Error      string        `json:"error,omitempty"`
	Model      string        `json:"model,omitempty"`
	TokensUsed int64         `json:"tokens_used"`
	Duration   time.Duration `json:"duration"`
}

// Failure returns a failed Result with the given reason.
func Failure(reason string) Result {
	return Result{Success: false, Error: reason}
}
