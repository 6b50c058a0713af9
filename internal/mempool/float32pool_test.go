package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeClass(t *testing.T) {
	assert.Equal(t, step, sizeClass(1))
	assert.Equal(t, step, sizeClass(step))
	assert.Equal(t, 2*step, sizeClass(step+1))
	assert.Equal(t, 3*step, sizeClass(2*step+5))
}

func TestGetPutroundTrip(t *testing.T) {
	buf := GetFloat32(100)
	assert.Len(t, buf, 100)
	assert.GreaterOrEqual(t, cap(buf), step)

	for i := range buf {
		buf[i] = float32(i)
	}
	PutFloat32(buf)

	again := GetFloat32(200)
	assert.Len(t, again, 200)
	PutFloat32(again)
}

func TestPutNilIsSafe(t *testing.T) {
	PutFloat32(nil)
}

func TestPutForeignBufferIgnored(t *testing.T) {
	// A buffer whose capacity is not a pool bucket is dropped, not pooled.
	PutFloat32(make([]float32, 100))
}
