package gassapi

// Debug switches of the gass backend live in one place so that turning on the output of a
// pass does not start with a search for where it prints.

// ----- Debug logging -----
// These consts must be disabled by default. Enable them only when debugging.

const (
	BarrierLoggingEnabled = false
	StallLoggingEnabled   = false
	SchedLoggingEnabled   = false
)

// ----- Validations -----
// These consts must be enabled by default until we reach the point where we can disable them.

const (
	BarrierValidationEnabled = true
	SchedValidationEnabled   = true
)
