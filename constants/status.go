package constants

// AttemptStatus is the canonical outcome of one backend attempt.
type AttemptStatus string

// Stable values (these exact strings appear in logs and metadata).
const (
	AttemptStatusOK       AttemptStatus = "OK"       // backend returned a usable result
	AttemptStatusFailed   AttemptStatus = "FAILED"   // protocol or validation failure
	AttemptStatusTimedOut AttemptStatus = "TIMEOUT"  // deadline exceeded
	AttemptStatusSkipped  AttemptStatus = "SKIPPED"  // stage not reached
)

// OrchestratorState is one state of the extraction state machine.
type OrchestratorState string

const (
	StateInit             OrchestratorState = "INIT"
	StatePrimaryPending   OrchestratorState = "PRIMARY_PENDING"
	StateSecondaryPending OrchestratorState = "SECONDARY_PENDING"
	StateDone             OrchestratorState = "DONE"
)

// Backend roles as recorded in attempts and logs.
const (
	BackendRolePrimary   = "primary"
	BackendRoleSecondary = "secondary"
)
