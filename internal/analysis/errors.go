package analysis

import "errors"

var (
	// ErrStrategyConstruction means the primary strategy could not be built.
	ErrStrategyConstruction = errors.New("strategy construction failed")

	// ErrStrategyInvocation means a strategy call failed.
	ErrStrategyInvocation = errors.New("strategy invocation failed")

	// ErrOutputParsing means the agent produced output it could not act on.
	ErrOutputParsing = errors.New("output parsing error")

	// ErrTerminal tags diagnostics of analyses that ended in TerminalFailure.
	ErrTerminal = errors.New("analysis failed")
)
