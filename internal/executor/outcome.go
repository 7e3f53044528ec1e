package executor

import "fmt"

// Kind tags the variant of an Outcome.
type Kind string

const (
	KindSuccess        Kind = "success"
	KindRuntimeError   Kind = "runtime_error"
	KindTimeout        Kind = "timeout"
	KindLaunchFailure  Kind = "launch_failure"
	KindStorageFailure Kind = "storage_failure"
	KindCanceled       Kind = "canceled"
)

// Fixed messages surfaced to the caller in place of program output.
const (
	TimeoutMessage        = "⏰ Execution timed out (possible infinite loop)"
	LaunchFailureMessage  = "Failed to start the execution sandbox"
	StorageFailureMessage = "Failed to prepare the execution workspace"
	CanceledMessage       = "Execution cancelled"
)

// Outcome is the single terminal result of supervising one sandbox.
// It is a value type and never changes once produced.
type Outcome struct {
	Kind     Kind
	Output   string
	ExitCode int
	// Err is the internal cause for launch/storage failures. It is logged, never
	// shown to the caller.
	Err error
}

func Success(stdout string) Outcome {
	return Outcome{Kind: KindSuccess, Output: stdout}
}

// RuntimeError reports a program that exited non-zero. If it wrote nothing to its
// error stream a generic message is used instead.
func RuntimeError(stderr string, exitCode int) Outcome {
	if stderr == "" {
		stderr = fmt.Sprintf("Process exited with status %d", exitCode)
	}
	return Outcome{Kind: KindRuntimeError, Output: stderr, ExitCode: exitCode}
}

func Timeout() Outcome {
	return Outcome{Kind: KindTimeout, Output: TimeoutMessage, ExitCode: -1}
}

func LaunchFailure(err error) Outcome {
	return Outcome{Kind: KindLaunchFailure, Output: LaunchFailureMessage, ExitCode: -1, Err: err}
}

func StorageFailure(err error) Outcome {
	return Outcome{Kind: KindStorageFailure, Output: StorageFailureMessage, ExitCode: -1, Err: err}
}

func Canceled() Outcome {
	return Outcome{Kind: KindCanceled, Output: CanceledMessage, ExitCode: -1}
}
