// nolint:testpackage // we intentionally don't use a separate test package to inspect the ring layout
package registry

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestOutputBufferWrapsAround(t *testing.T) {
	buffer := NewOutputBuffer(3)

	assert.Empty(t, buffer.Chunks())

	for _, chunk := range []string{"a", "b", "c", "d", "e"} {
		buffer.Append(chunk)
	}

	assert.Equal(t, []string{"c", "d", "e"}, buffer.Chunks())
	assert.Equal(t, 3, buffer.Len())
	assert.Equal(t, 2, buffer.start)
}

func TestOutputBufferDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultBufferCapacity, NewOutputBuffer(0).Cap())
}
