package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetOrCreate_New(t *testing.T) {
	store := NewStore()

	s := store.GetOrCreate("conn-1")

	assert.Equal(t, "conn-1", s.ID)
	assert.Equal(t, StatusActive, s.Status)
	assert.Empty(t, s.Transcripts)
	assert.False(t, s.StartTime.IsZero())
}

func TestStore_GetOrCreate_ReturnsSameSession(t *testing.T) {
	store := NewStore()

	a := store.GetOrCreate("conn-1")
	b := store.GetOrCreate("conn-1")

	assert.Same(t, a, b)
}

func TestStore_GetOrCreate_ResumesFinishedSession(t *testing.T) {
	store := NewStore()

	s := store.GetOrCreate("conn-1")
	s.AppendTranscript("item-1", "hello")
	s.AddAudio(1.5)
	s.Complete()
	require.Equal(t, StatusCompleted, s.Status)

	resumed := store.GetOrCreate("conn-1")

	assert.Same(t, s, resumed)
	snap := resumed.Snapshot()
	assert.Equal(t, StatusActive, snap.Status)
	assert.Nil(t, snap.EndTime)
	assert.Zero(t, snap.AudioDuration)
	// Historical transcripts survive a resume.
	require.Len(t, snap.Transcripts, 1)
	assert.Equal(t, "hello", snap.Transcripts[0].Text)
}

func TestStore_GetOrCreate_ResumesErroredSession(t *testing.T) {
	store := NewStore()

	s := store.GetOrCreate("conn-1")
	s.Fail("upstream exploded")

	resumed := store.GetOrCreate("conn-1")
	snap := resumed.Snapshot()

	assert.Equal(t, StatusActive, snap.Status)
	assert.Empty(t, snap.ErrorMessage)
}

func TestStore_Get(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("conn-1")

	_, ok := store.Get("conn-1")
	assert.True(t, ok)

	_, ok = store.Get("nope")
	assert.False(t, ok)
}

func TestSession_CompleteIsIdempotentAndKeepsError(t *testing.T) {
	s := &Session{ID: "x", Status: StatusActive}

	s.Fail("boom")
	s.Complete() // must not override the error status

	snap := s.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, "boom", snap.ErrorMessage)
	require.NotNil(t, snap.EndTime)
}

func TestSession_AddAudioAccumulates(t *testing.T) {
	s := &Session{ID: "x", Status: StatusActive}

	s.AddAudio(0.25)
	s.AddAudio(0.75)

	assert.InDelta(t, 1.0, s.Snapshot().AudioDuration, 1e-9)
}

func TestSession_SnapshotIsACopy(t *testing.T) {
	s := &Session{ID: "x", Status: StatusActive}
	s.AppendTranscript("item-1", "one")

	snap := s.Snapshot()
	s.AppendTranscript("item-2", "two")

	assert.Len(t, snap.Transcripts, 1)
	assert.Len(t, s.Snapshot().Transcripts, 2)
}
