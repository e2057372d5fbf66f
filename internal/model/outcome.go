package model

// Outcome is the final record of a run, created exactly once when the
// analysis ends and delivered to the host agent. It is the only state
// crossing the guest boundary back to the host.
type Outcome struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"` // empty on success
	ResultsPath string `json:"path"`
}

// Failure builds a failed Outcome from err, keeping the results path so
// the host can still fetch whatever was collected before the fault.
func Failure(err error, resultsPath string) Outcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{
		Success:     false,
		Error:       msg,
		ResultsPath: resultsPath,
	}
}
