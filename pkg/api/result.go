package api

import (
	"encoding/json"
	"fmt"
)

// TimeoutMessage is the error text reported when an execution exceeds its
// wall-clock limit.
const TimeoutMessage = "Execution timed out"

// MissingReturnCode is the exit code assumed when a completed result does
// not carry one.
const MissingReturnCode = -1

// Outcome tags an ExecutionResult.
type Outcome int

const (
	// OutcomeCompleted means the process ran to exit, whatever its code.
	OutcomeCompleted Outcome = iota

	// OutcomeTimedOut means the process was killed at the deadline.
	OutcomeTimedOut

	// OutcomeFailed means the process could not be spawned or run.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ExecutionResult is the outcome of one execution. A completed result
// carries Stdout, Stderr and ExitCode; a timed-out or failed result carries
// only Error. The JSON form has exactly one of the two shapes.
type ExecutionResult struct {
	Outcome  Outcome
	Stdout   string
	Stderr   string
	ExitCode int
	Error    string
}

// Completed returns the result of a process that exited.
func Completed(stdout, stderr string, exitCode int) ExecutionResult {
	return ExecutionResult{
		Outcome:  OutcomeCompleted,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
	}
}

// TimedOut returns the result of a process killed at its deadline.
// Output produced before the kill is not carried.
func TimedOut() ExecutionResult {
	return ExecutionResult{Outcome: OutcomeTimedOut, Error: TimeoutMessage}
}

// Failed returns the result of an execution that could not run.
func Failed(err error) ExecutionResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ExecutionResult{Outcome: OutcomeFailed, Error: msg}
}

// IsCompleted reports whether the process ran to exit.
func (r ExecutionResult) IsCompleted() bool {
	return r.Outcome == OutcomeCompleted
}

type completedJSON struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"return_code"`
}

type failedJSON struct {
	Error string `json:"error"`
}

// MarshalJSON encodes the result as {"stdout","stderr","return_code"} or
// {"error"} depending on the outcome.
func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	if r.Outcome == OutcomeCompleted {
		return json.Marshal(completedJSON{
			Stdout:     r.Stdout,
			Stderr:     r.Stderr,
			ReturnCode: r.ExitCode,
		})
	}
	return json.Marshal(failedJSON{Error: r.Error})
}

// UnmarshalJSON decodes either shape. An "error" key makes the result a
// failure regardless of other fields; the timeout text maps to
// OutcomeTimedOut. Missing completion fields take their defaults.
func (r *ExecutionResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Stdout     *string `json:"stdout"`
		Stderr     *string `json:"stderr"`
		ReturnCode *int    `json:"return_code"`
		Error      *string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Error != nil {
		if *raw.Error == TimeoutMessage {
			*r = TimedOut()
			return nil
		}
		*r = ExecutionResult{Outcome: OutcomeFailed, Error: *raw.Error}
		return nil
	}

	res := Completed("", "", MissingReturnCode)
	if raw.Stdout != nil {
		res.Stdout = *raw.Stdout
	}
	if raw.Stderr != nil {
		res.Stderr = *raw.Stderr
	}
	if raw.ReturnCode != nil {
		res.ExitCode = *raw.ReturnCode
	}
	*r = res
	return nil
}
