package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrUnavailable))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrTimeout)))
	assert.False(t, IsRetryable(ErrNotFound))
	assert.False(t, IsRetryable(context.Canceled))
}

func TestNewStoreError_ClassifiesBusy(t *testing.T) {
	err := NewStoreError("put", "C1", errors.New("database is locked (5) (SQLITE_BUSY)"))
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "store put C1")

	err = NewStoreError("get", "", errors.New("no such table: sessions"))
	assert.False(t, IsRetryable(err))

	var se *StoreError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "get", se.Op)
}

func TestNewStoreError_Nil(t *testing.T) {
	assert.Nil(t, NewStoreError("get", "C1", nil))
}
