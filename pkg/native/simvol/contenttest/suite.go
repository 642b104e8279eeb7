// Package contenttest is a conformance suite for simvol.ContentStore
// implementations.
package contenttest

import (
	"context"
	"testing"

	"github.com/marmos91/gfapi/pkg/native/simvol"
)

// StoreTestSuite tests the ContentStore contract, not implementation
// details, so the same suite runs against memory and S3.
//
// Usage:
//
//	func TestMyContentStore(t *testing.T) {
//	    suite := &contenttest.StoreTestSuite{
//	        NewStore: func() simvol.ContentStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh store for each test.
	NewStore func() simvol.ContentStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("ReadOperations", suite.RunReadTests)
	t.Run("WriteOperations", suite.RunWriteTests)
}

func testContext() context.Context {
	return context.Background()
}
