package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPtr(t *testing.T) {
	p := Ptr("hello")
	assert.Equal(t, "hello", *p)
	assert.Equal(t, 42, *Ptr(42))
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, Epoch, c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, Epoch.Add(time.Minute), c.Now())

	later := Epoch.Add(time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}
