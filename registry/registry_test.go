package registry

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterGetAndHas(t *testing.T) {
	r := New()
	proxy := &struct{ n int }{n: 1}

	h := r.Register("p1", proxy, nil)
	require.NotNil(t, h)

	assert.True(t, r.Has("p1"))
	v, ok := r.Get("p1")
	require.True(t, ok)
	assert.Same(t, proxy, v)
	assert.Equal(t, proxy, h.Value())
}

func TestDisposeIsIdempotent(t *testing.T) {
	r := New()
	proxy := &struct{ n int }{n: 1}
	calls := 0
	h := r.Register("p1", proxy, func() { calls++ })

	h.Dispose()
	h.Dispose()
	h.Dispose()

	assert.Equal(t, 1, calls)
	assert.True(t, h.Disposed())
	assert.False(t, r.Has("p1"))
}

func TestGetMissingID(t *testing.T) {
	r := New()
	_, ok := r.Get("nope")
	assert.False(t, ok)
	assert.Nil(t, r.GetHandle("nope"))
}

func TestGCDrivenFinalizationFiresOnce(t *testing.T) {
	r := New()
	disposed := make(chan struct{}, 1)

	func() {
		proxy := &struct{ n int }{n: 42}
		r.Register("gc1", proxy, func() {
			select {
			case disposed <- struct{}{}:
			default:
			}
		})
		// proxy becomes unreachable once this closure returns; the handle
		// itself is not retained by the test either.
	}()

	for i := 0; i < 10; i++ {
		runtime.GC()
		select {
		case <-disposed:
			assert.False(t, r.Has("gc1"))
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatal("cleanup did not fire after repeated GC cycles")
}

func TestLen(t *testing.T) {
	r := New()
	assert.Equal(t, 0, r.Len())
	r.Register("a", 1, nil)
	r.Register("b", 2, nil)
	assert.Equal(t, 2, r.Len())
}
