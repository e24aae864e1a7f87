//go:build !bicos_debug

package bicos

// debugChecks is compiled out entirely unless built with -tags bicos_debug:
// release builds assume the bit schedule is correct by construction and pay
// nothing for the cursor overflow check.
const debugChecks = false
