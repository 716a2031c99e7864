package protocol

// Exit codes a tracker terminates with. The host uses them to tell a bad
// rectangle or a missing OS permission (do not retry) from an intentional
// kill (expected).
const (
	ExitOK      = 0
	ExitUsage   = 2
	ExitHook    = 3
	ExitRuntime = 4
)

// ExitKind classifies a tracker exit status.
type ExitKind int

const (
	ExitKindClean ExitKind = iota
	ExitKindUsage
	ExitKindHook
	ExitKindRuntime
	ExitKindCrash
)

func (k ExitKind) String() string {
	switch k {
	case ExitKindClean:
		return "clean"
	case ExitKindUsage:
		return "usage"
	case ExitKindHook:
		return "hook"
	case ExitKindRuntime:
		return "runtime"
	case ExitKindCrash:
		return "crash"
	default:
		return "unknown"
	}
}

// Retryable reports whether respawning with the same rectangle could help.
func (k ExitKind) Retryable() bool {
	return k == ExitKindRuntime || k == ExitKindCrash
}

// ClassifyExit maps a process exit code to its kind. Negative codes (killed
// by a signal on unix) count as crashes.
func ClassifyExit(code int) ExitKind {
	switch code {
	case ExitOK:
		return ExitKindClean
	case ExitUsage:
		return ExitKindUsage
	case ExitHook:
		return ExitKindHook
	case ExitRuntime:
		return ExitKindRuntime
	default:
		return ExitKindCrash
	}
}
