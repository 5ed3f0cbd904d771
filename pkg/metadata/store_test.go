package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncStore_UpdateAndDelete(t *testing.T) {
	s := NewAsyncStore(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.TriggerUpdate(1, VolumeInfo{ProjectID: 1, VolumeID: "kA", Path: "/vfroot/kA"})
	require.Eventually(t, func() bool {
		_, ok := s.Get(1)
		return ok
	}, time.Second, 10*time.Millisecond)

	info, _ := s.Get(1)
	assert.Equal(t, "kA", info.VolumeID)

	s.TriggerDelete(1)
	require.Eventually(t, func() bool {
		_, ok := s.Get(1)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestAsyncStore_FullChannelDropsEvent(t *testing.T) {
	s := NewAsyncStore(1)

	s.TriggerUpdate(1, VolumeInfo{ProjectID: 1, VolumeID: "kA"})
	s.TriggerUpdate(2, VolumeInfo{ProjectID: 2, VolumeID: "kB"})

	assert.Len(t, s.updateCh, 1)
}

func TestAsyncStore_Restore(t *testing.T) {
	s := NewAsyncStore(1)
	s.Restore([]VolumeRecord{
		{VolumeID: "v1", ProjectID: 1, Path: "/vfroot/v1"},
		{VolumeID: "v2", ProjectID: 3, Path: "/vfroot/v2"},
	})

	assert.Equal(t, 2, s.Len())
	info, ok := s.Get(3)
	require.True(t, ok)
	assert.Equal(t, "v2", info.VolumeID)
}
