package rpc

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("ContextCanceledIsTransient", func(t *testing.T) {
		assert.Equal(t, KindTransient, Classify(context.Canceled))
	})

	t.Run("ConnectionResetIsNetwork", func(t *testing.T) {
		assert.Equal(t, KindNetwork, Classify(syscall.ECONNRESET))
	})

	t.Run("WouldBlockIsTransient", func(t *testing.T) {
		assert.Equal(t, KindTransient, Classify(syscall.EWOULDBLOCK))
	})

	t.Run("UnknownErrorIsOther", func(t *testing.T) {
		assert.Equal(t, KindOther, Classify(errors.New("weird")))
	})

	t.Run("NilIsSuccess", func(t *testing.T) {
		assert.Equal(t, KindSuccess, Classify(nil))
	})
}

func TestWorseOf(t *testing.T) {
	t.Run("NetworkBeatsTransient", func(t *testing.T) {
		worse := WorseOf(context.DeadlineExceeded, syscall.ECONNRESET)
		require.Error(t, worse)
		assert.Equal(t, KindNetwork, Classify(worse))
	})

	t.Run("TieKeepsCandidate", func(t *testing.T) {
		first := syscall.ECONNRESET
		second := syscall.ENETUNREACH
		worse := WorseOf(first, second)
		assert.Equal(t, second, worse)
	})

	t.Run("NilCurrentReturnsCandidate", func(t *testing.T) {
		assert.Equal(t, syscall.ECONNRESET, WorseOf(nil, syscall.ECONNRESET))
	})
}

func TestToUserStatus(t *testing.T) {
	t.Run("DeadMountCollapsesToIo", func(t *testing.T) {
		assert.Equal(t, StatusIo, ToUserStatus(syscall.ECONNRESET, true))
	})

	t.Run("CanceledIsInterrupted", func(t *testing.T) {
		assert.Equal(t, StatusInterrupted, ToUserStatus(context.Canceled, false))
	})

	t.Run("TimeoutClassMapsToTimeout", func(t *testing.T) {
		assert.Equal(t, StatusTimeout, ToUserStatus(context.DeadlineExceeded, false))
	})

	t.Run("NilIsSuccess", func(t *testing.T) {
		assert.Equal(t, StatusSuccess, ToUserStatus(nil, false))
	})
}
