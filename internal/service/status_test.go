package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	s := NewStatus()
	require.True(t, s.IsRunning())
	require.Nil(t, s.LatestAckedBlock())
	require.Empty(t, s.StopReason())

	hash := []byte{1, 2, 3}
	s.SetLatestAckedBlock(5, hash)
	hash[0] = 9
	require.Equal(t, &AckedBlock{Number: 5, Hash: []byte{1, 2, 3}}, s.LatestAckedBlock())

	s.StopRunning("first")
	s.StopRunning("second")
	require.False(t, s.IsRunning())
	require.Equal(t, "first", s.StopReason())
}
