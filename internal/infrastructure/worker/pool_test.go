package worker

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunsEveryTask(t *testing.T) {
	p := NewPool("test", 4, 8)
	var n atomic.Int64
	for i := 0; i < 100; i++ {
		p.Submit(func() { n.Add(1) })
	}
	p.Close()
	assert.Equal(t, int64(100), n.Load())
}

func TestPoolSurvivesPanic(t *testing.T) {
	p := NewPool("test", 1, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	p.Submit(func() { panic("boom") })
	p.Submit(func() { wg.Done() })
	wg.Wait()
	p.Close()
}

func TestSubmitAfterCloseRunsInline(t *testing.T) {
	p := NewPool("test", 1, 0)
	p.Close()
	ran := false
	p.Submit(func() { ran = true })
	assert.True(t, ran)
}

func TestTrySubmitRejectsWhenFullOrClosed(t *testing.T) {
	p := NewPool("test", 1, 1)
	started := make(chan struct{})
	release := make(chan struct{})
	assert.True(t, p.TrySubmit(func() {
		close(started)
		<-release
	}))
	<-started
	assert.True(t, p.TrySubmit(func() {}))

	ran := false
	assert.False(t, p.TrySubmit(func() { ran = true }))
	assert.False(t, ran)

	close(release)
	p.Close()
	assert.False(t, p.TrySubmit(func() { ran = true }))
	assert.False(t, ran)
}
