package state

import (
	"encoding/json"
	"os"
)

// ExitSignal is the result of probing the state file for an operator-requested
// stop. The exit flag is the only externally triggered graceful-stop
// mechanism; the loop checks it once per iteration, never mid-turn.
type ExitSignal struct {
	Requested bool
	Reason    string
}

// CheckExitSignal reads the state file at path best-effort and reports whether
// its "exit" field is set. A missing file or malformed JSON is treated as no
// signal; the loop must keep running through transient corruption.
func CheckExitSignal(path string) ExitSignal {
	data, err := os.ReadFile(path)
	if err != nil {
		return ExitSignal{}
	}

	var probe struct {
		Exit       bool   `json:"exit"`
		ExitReason string `json:"exit_reason"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ExitSignal{}
	}
	if !probe.Exit {
		return ExitSignal{}
	}

	reason := probe.ExitReason
	if reason == "" {
		reason = "exit flag set"
	}
	return ExitSignal{Requested: true, Reason: reason}
}
