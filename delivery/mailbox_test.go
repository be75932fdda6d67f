package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/voxflow/pipeline"
)

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestMailbox_PollTakesOnce(t *testing.T) {
	m := NewMailbox()
	a := pipeline.NewMemoryArtifact("hi", []byte("hi"), "mp3")

	_, _, changed := m.Poll()
	m.Offer(a)
	assert.True(t, isClosed(changed), "offer should wake pollers")

	got, end, _ := m.Poll()
	require.Same(t, a, got)
	assert.False(t, end)

	got, end, _ = m.Poll()
	assert.Nil(t, got)
	assert.False(t, end)
}

func TestMailbox_PendingClearedByPoll(t *testing.T) {
	m := NewMailbox()
	m.Offer(pipeline.NewMemoryArtifact("x", nil, "mp3"))

	pending, changed := m.Pending()
	require.True(t, pending)

	m.Poll()
	assert.True(t, isClosed(changed))
	pending, _ = m.Pending()
	assert.False(t, pending)
}

func TestMailbox_EndAfterItem(t *testing.T) {
	m := NewMailbox()
	a := pipeline.NewMemoryArtifact("x", nil, "mp3")
	m.Offer(a)
	m.SetEnd()

	got, end, _ := m.Poll()
	assert.Same(t, a, got)
	assert.False(t, end, "current audio is served before END")

	got, end, _ = m.Poll()
	assert.Nil(t, got)
	assert.True(t, end)
}

func TestMailbox_Clear(t *testing.T) {
	m := NewMailbox()
	assert.Nil(t, m.Clear())

	a := pipeline.NewMemoryArtifact("x", nil, "mp3")
	m.Offer(a)
	assert.Same(t, a, m.Clear())
	pending, _ := m.Pending()
	assert.False(t, pending)
}

func TestMailbox_MarkFinalSentIdempotent(t *testing.T) {
	m := NewMailbox()
	assert.False(t, isClosed(m.FinalSent()))
	m.MarkFinalSent()
	m.MarkFinalSent()
	assert.True(t, isClosed(m.FinalSent()))
}
