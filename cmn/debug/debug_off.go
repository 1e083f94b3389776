//go:build !debug

package debug

const Enabled = false

// Assert is a no-op in release builds.
func Assert(cond bool, args ...interface{}) {}

// Assertf is a no-op in release builds.
func Assertf(cond bool, format string, args ...interface{}) {}

// AssertNoErr is a no-op in release builds.
func AssertNoErr(err error) {}
