package provider

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldown_TakeTheMax(t *testing.T) {
	c := NewCooldown()
	base := time.Now()

	c.Extend(base.Add(10 * time.Second))
	c.Extend(base.Add(3 * time.Second)) // earlier, must not shrink the window

	got := c.Remaining(base)
	assert.Equal(t, 10*time.Second, got)
}

func TestCooldown_ExpiredWindow(t *testing.T) {
	c := NewCooldown()
	base := time.Now()

	assert.Zero(t, c.Remaining(base), "fresh cooldown must be expired")

	c.Extend(base.Add(-time.Second))
	assert.Zero(t, c.Remaining(base))
}

func TestCooldown_ConcurrentExtends(t *testing.T) {
	c := NewCooldown()
	base := time.Now()

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Extend(base.Add(time.Duration(n) * time.Millisecond))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100*time.Millisecond, c.Remaining(base))
}
