//go:build unix

package eventfd

import (
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocationError_Matching(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &AllocationError{Syscall: `eventfd`, Errno: syscall.EMFILE})

	assert.ErrorIs(t, err, ErrAllocation)
	assert.ErrorIs(t, err, syscall.EMFILE)
	assert.NotErrorIs(t, err, syscall.ENFILE)
	assert.NotErrorIs(t, err, ErrClosed)

	var allocErr *AllocationError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, `eventfd`, allocErr.Syscall)

	var errno syscall.Errno
	require.ErrorAs(t, err, &errno)
	assert.Equal(t, syscall.EMFILE, errno)
}

func TestAllocationError_Error(t *testing.T) {
	err := &AllocationError{Syscall: `pipe`, Errno: syscall.ENFILE}
	assert.Equal(t, "pipe: "+syscall.ENFILE.Error(), err.Error())
}

func TestNewAllocationError(t *testing.T) {
	err := newAllocationError(`eventfd`, syscall.ENOMEM)
	var allocErr *AllocationError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, syscall.ENOMEM, allocErr.Errno)

	// non-errno errors pass through
	assert.Same(t, io.EOF, newAllocationError(`eventfd`, io.EOF))
}
