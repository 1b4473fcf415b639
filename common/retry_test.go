package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: 500 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, b.Delay(0))
	assert.Equal(t, 200*time.Millisecond, b.Delay(1))
	assert.Equal(t, 400*time.Millisecond, b.Delay(2))
	assert.Equal(t, 500*time.Millisecond, b.Delay(3))
	assert.Equal(t, 500*time.Millisecond, b.Delay(10))
	assert.Equal(t, time.Duration(0), Backoff{}.Delay(4))
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, Backoff{}, func(attempt int) error {
		calls++
		if attempt < 2 {
			return fmt.Errorf("dial: %w", ErrUnavailable)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnTerminalError(t *testing.T) {
	terminal := &RemoteError{Exception: ExceptionFileNotFound, Message: "/a"}
	calls := 0
	err := Retry(context.Background(), 5, Backoff{}, func(int) error {
		calls++
		return terminal
	})
	assert.Equal(t, 1, calls)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
}

func TestRetryTreatsStandbyAsUnavailable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, Backoff{}, func(int) error {
		calls++
		return &RemoteError{Exception: ExceptionStandby}
	})
	assert.Equal(t, 3, calls)
	assert.True(t, IsStandby(err))
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, Backoff{Base: time.Minute}, func(int) error {
		return ErrUnavailable
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFailoverWalksCandidatesOnce(t *testing.T) {
	f := NewFailover([]string{"a:1", "b:2"})
	require.Equal(t, 2, f.Remaining())
	assert.Equal(t, "a:1", f.Next())
	f.RecordFailure(ErrConnect)
	assert.Equal(t, "b:2", f.Next())
	assert.Equal(t, 0, f.Remaining())
	assert.ErrorIs(t, f.LastError(), ErrConnect)
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	cfg := Config{Addresses: []string{"nn1:8020"}}.WithDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, AuthSimple, cfg.Auth)
	assert.Equal(t, DefaultMinReplication, cfg.MinReplication)
	assert.Equal(t, DefaultLeaseThreshold, cfg.LeaseThreshold)

	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Addresses: []string{"no-port"}}.Validate())
	assert.Error(t, Config{Addresses: []string{"nn1:8020"}, Auth: AuthKerberos}.Validate())
}
