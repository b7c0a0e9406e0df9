// Package runharness runs separately built programs under test and checks
// their exit status. See the harness package for the Go API.
package runharness

// Version is the runharness release version.
const Version = "0.3.0"
