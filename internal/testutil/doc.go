// Package testutil contains fluent builders for events and sessions used
// across package tests. Not intended for production use.
package testutil
