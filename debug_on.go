//go:build bicos_debug

package bicos

// debugChecks enables the bit-cursor overflow assertion; build with
// -tags bicos_debug to turn it on.
const debugChecks = true
