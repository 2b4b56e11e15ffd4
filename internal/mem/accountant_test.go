package mem

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountant_Balance(t *testing.T) {
	a := NewAccountant()

	a.Grab(100)
	a.Grab(50)
	assert.Equal(t, uint64(150), a.Balance())

	a.Release(50)
	assert.Equal(t, uint64(100), a.Balance())

	leaked, over := a.Leaked()
	assert.Equal(t, uint64(100), leaked)
	assert.False(t, over)

	a.Release(100)
	leaked, over = a.Leaked()
	assert.Equal(t, uint64(0), leaked)
	assert.False(t, over)
}

func TestAccountant_OverRelease(t *testing.T) {
	a := NewAccountant()

	a.Grab(10)
	a.Release(25)

	assert.Equal(t, uint64(0), a.Balance())

	leaked, over := a.Leaked()
	assert.Equal(t, uint64(15), leaked)
	assert.True(t, over)
}

func TestAccountant_Concurrent(t *testing.T) {
	a := NewAccountant()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				a.Grab(7)
				a.Release(7)
			}
		}()
	}
	wg.Wait()

	grabbed, released := a.Totals()
	assert.Equal(t, uint64(8*1000*7), grabbed)
	assert.Equal(t, grabbed, released)
	assert.Equal(t, uint64(0), a.Balance())
}

func TestAccountant_NilSafe(t *testing.T) {
	var a *Accountant
	a.Grab(10)   // must not panic
	a.Release(5) // must not panic
}

func TestByteSize_Add(t *testing.T) {
	total := ByteSize{Allocated: 10, Used: 5}.Add(ByteSize{Allocated: 30, Used: 20})
	assert.Equal(t, ByteSize{Allocated: 40, Used: 25}, total)
}
