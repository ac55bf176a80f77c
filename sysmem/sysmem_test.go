package sysmem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckHostMemoryAvailableFailsOnHugeRequest(t *testing.T) {
	// No real host has an exabyte free; this must fail without touching
	// any device.
	err := CheckHostMemoryAvailable(1 << 62)
	require.Error(t, err)
}

func TestCheckHostMemoryAvailableAllowsTinyRequest(t *testing.T) {
	err := CheckHostMemoryAvailable(1024)
	require.NoError(t, err)
}
