package future

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFuture_CompleteOnce(t *testing.T) {
	f := New[int]()
	require.False(t, f.IsDone())
	require.True(t, f.Complete(1))
	require.False(t, f.Complete(2))
	require.False(t, f.Fail(errors.New("late")))
	require.True(t, f.IsDone())

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestFuture_Fail(t *testing.T) {
	expErr := errors.New("boom")
	f := Failed[string](expErr)
	v, err := f.Wait()
	require.ErrorIs(t, err, expErr)
	require.Empty(t, v)

	require.True(t, New[int]().Fail(nil))
}

func TestFuture_GetHonorsContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Get(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = f.Get(WithGetTimeout(context.Background(), 10*time.Millisecond))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFuture_GetFromOtherGoroutine(t *testing.T) {
	f := New[int]()
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Complete(42)
	}()
	v, err := f.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestThen(t *testing.T) {
	s, err := Then(Completed(7), func(v int) (string, error) { return strconv.Itoa(v), nil }).Wait()
	require.NoError(t, err)
	require.Equal(t, "7", s)

	expErr := errors.New("source failed")
	called := false
	_, err = Then(Failed[int](expErr), func(v int) (string, error) {
		called = true
		return "", nil
	}).Wait()
	require.ErrorIs(t, err, expErr)
	require.False(t, called)

	_, err = Then(Completed(1), func(v int) (int, error) { return 0, expErr }).Wait()
	require.ErrorIs(t, err, expErr)
}
