package terminal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpCache_Eviction(t *testing.T) {
	c := newOpCache(DefaultOperationCacheSize)

	for i := 0; i <= DefaultOperationCacheSize; i++ {
		c.Put(fmt.Sprintf("op-%d", i), Result{Success: true, Revision: int64(i)})
	}

	assert.Equal(t, DefaultOperationCacheSize, c.Len())

	_, ok := c.Get("op-0")
	assert.False(t, ok, "2049th id evicts the first")

	r, ok := c.Get("op-1")
	assert.True(t, ok)
	assert.Equal(t, int64(1), r.Revision)

	r, ok = c.Get(fmt.Sprintf("op-%d", DefaultOperationCacheSize))
	assert.True(t, ok)
	assert.Equal(t, int64(DefaultOperationCacheSize), r.Revision)
}

func TestOpCache_EmptyIDIgnored(t *testing.T) {
	c := newOpCache(4)
	c.Put("", Result{Success: true})

	_, ok := c.Get("")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestOpCache_DropsSnapshot(t *testing.T) {
	c := newOpCache(4)
	c.Put("op", Result{Success: true, Snapshot: &Snapshot{Revision: 9}})

	r, ok := c.Get("op")
	assert.True(t, ok)
	assert.Nil(t, r.Snapshot)
}

func TestOpCache_OverwriteKeepsPosition(t *testing.T) {
	c := newOpCache(2)
	c.Put("a", Result{Revision: 1})
	c.Put("a", Result{Revision: 2})
	c.Put("b", Result{Revision: 3})

	assert.Equal(t, 2, c.Len())
	r, _ := c.Get("a")
	assert.Equal(t, int64(2), r.Revision)

	c.Put("c", Result{Revision: 4})
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTerminalState(t *testing.T) {
	st := newTerminalState("t", "s", 0)
	assert.Equal(t, int64(1), st.revision)
	assert.True(t, st.empty())
	assert.Equal(t, int64(2), st.bump())

	st.subscribers["p"] = struct{}{}
	assert.False(t, st.empty())
}
