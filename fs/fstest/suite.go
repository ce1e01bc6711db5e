// Package fstest provides a conformance suite for Filesystem implementations
// used as a batch working directory.
//
// Example usage:
//
//	func TestMyProvider(t *testing.T) {
//	    fstest.TestSuite(t, func(t *testing.T) (fs.Filesystem, string) {
//	        return myprovider.New(), "/"
//	    })
//	}
package fstest

import (
	"testing"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/fs"
)

// Factory returns a fresh, empty filesystem and the root directory the
// tests may write under.
type Factory func(t *testing.T) (fs.Filesystem, string)

// TestSuite runs all conformance tests against a filesystem.
func TestSuite(t *testing.T, newFS Factory) {
	TestSuiteWithSkip(t, newFS, nil)
}

// TestSuiteWithSkip runs conformance tests, skipping the named ones.
// Providers with known behavioral differences list them in skipTests.
func TestSuiteWithSkip(t *testing.T, newFS Factory, skipTests []string) {
	shouldSkip := func(testName string) bool {
		for _, skip := range skipTests {
			if skip == testName {
				return true
			}
		}
		return false
	}

	tests := []struct {
		name string
		fn   func(t *testing.T, filesystem fs.Filesystem, root string)
	}{
		{"WriteRead", testWriteRead},
		{"OpenSeek", testOpenSeek},
		{"MkdirAllStat", testMkdirAllStat},
		{"Exists", testExists},
		{"RemoveAll", testRemoveAll},
		{"TempDirWalk", testTempDirWalk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if shouldSkip(tt.name) {
				t.Skip("Skipped by provider configuration")
				return
			}
			filesystem, root := newFS(t)
			tt.fn(t, filesystem, root)
		})
	}
}
