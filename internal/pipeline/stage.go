package pipeline

import "fmt"

// Stage identifies one step of the deployment pipeline. Stages run in
// declaration order; the first failure aborts the run.
type Stage int

const (
	StageValidate Stage = iota
	StageConnect
	StageLock
	StageProvision
	StageFetch
	StageDetect
	StageDeploy
	StageProxy
	StageVerify
)

func (s Stage) String() string {
	switch s {
	case StageValidate:
		return "validate"
	case StageConnect:
		return "connect"
	case StageLock:
		return "lock"
	case StageProvision:
		return "provision"
	case StageFetch:
		return "fetch"
	case StageDetect:
		return "detect"
	case StageDeploy:
		return "deploy"
	case StageProxy:
		return "proxy"
	case StageVerify:
		return "verify"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// StageError wraps a fatal failure with the stage it happened in and any
// diagnostic output captured from the remote host. Output is already
// redacted when the error is built.
type StageError struct {
	Stage  Stage
	Err    error
	Output string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
