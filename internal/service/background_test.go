package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackground_RunsDetachedFromParent(t *testing.T) {
	bg := NewBackground(time.Second)
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	bg.Go(parent, "detached", func(ctx context.Context) error {
		ran.Store(ctx.Err() == nil)
		return nil
	})
	bg.Wait()
	assert.True(t, ran.Load())

	// Wait 之后仍可继续提交
	bg.Go(context.Background(), "failing", func(context.Context) error { return errors.New("boom") })
	bg.Wait()
}

func TestBackground_ShutdownWaitsAndRejectsNewTasks(t *testing.T) {
	bg := NewBackground(time.Second)

	release := make(chan struct{})
	var finished atomic.Bool
	bg.Go(context.Background(), "slow", func(context.Context) error {
		<-release
		finished.Store(true)
		return nil
	})

	done := make(chan struct{})
	go func() {
		bg.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shutdown returned before the running task finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done
	assert.True(t, finished.Load())

	var late atomic.Bool
	bg.Go(context.Background(), "late", func(context.Context) error {
		late.Store(true)
		return nil
	})
	bg.Wait()
	assert.False(t, late.Load())
}
