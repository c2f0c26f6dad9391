package dispatch

import (
	"fmt"
	"time"
)

// ExhaustedError reports that the retry budget ran out. LastErr is the
// classified error from the final attempt.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("dispatch: retry budget exhausted after %d attempt(s) in %s: %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// ToolRoundsError reports that the model kept requesting tools past the
// configured round limit.
type ToolRoundsError struct {
	Rounds int
}

func (e *ToolRoundsError) Error() string {
	return fmt.Sprintf("dispatch: tool call rounds exceeded limit of %d", e.Rounds)
}

// FatalToolError aborts the whole call instead of being reported back to the
// model. Tool handlers return one (or wrap one) when continuing makes no
// sense, e.g. the tool hit an auth failure that retrying cannot fix.
type FatalToolError struct {
	Tool string
	Err  error
}

func (e *FatalToolError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("dispatch: tool %q failed fatally: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("dispatch: tool failed fatally: %v", e.Err)
}

func (e *FatalToolError) Unwrap() error { return e.Err }
