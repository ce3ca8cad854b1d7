package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHolderUpdateReplacesSnapshot(t *testing.T) {
	first := DefaultConfig()
	h := NewHolder(first, "/tmp/config.toml")

	assert.Same(t, first, h.Config())
	assert.Equal(t, "/tmp/config.toml", h.Path())

	second := DefaultConfig()
	second.Sync.IntervalMinutes = 5
	h.Update(second)

	assert.Same(t, second, h.Config())
}

func TestHolderConcurrentAccess(t *testing.T) {
	h := NewHolder(DefaultConfig(), "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				h.Update(DefaultConfig())
			}
		}()

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				_ = h.Config().Sync.IntervalMinutes
			}
		}()
	}

	wg.Wait()
}
