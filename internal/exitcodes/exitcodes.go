package exitcodes

// Exit codes for the releng tools.
// These codes form the operational contract with CI pipelines.
const (
	Success         = 0 // Successful execution
	NoRules         = 1 // clean invoked without any preserve or remove rule
	InvalidConfig   = 2 // Invalid flags, configuration or input paths
	SafetyViolation = 3 // Safety guard blocked an operation
	RuntimeError    = 4 // Runtime error during execution
)
