package registry

const DefaultBufferCapacity = 1000

// OutputBuffer is a fixed-capacity FIFO of output chunks: once full,
// appending drops the oldest chunk.
type OutputBuffer struct {
	chunks []string
	start  int
	size   int
}

func NewOutputBuffer(capacity int) *OutputBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}

	return &OutputBuffer{
		chunks: make([]string, capacity),
	}
}

func (buffer *OutputBuffer) Append(chunk string) {
	capacity := len(buffer.chunks)

	if buffer.size < capacity {
		buffer.chunks[(buffer.start+buffer.size)%capacity] = chunk
		buffer.size++

		return
	}

	// Full, overwrite the oldest
	buffer.chunks[buffer.start] = chunk
	buffer.start = (buffer.start + 1) % capacity
}

func (buffer *OutputBuffer) Chunks() []string {
	result := make([]string, 0, buffer.size)

	for i := 0; i < buffer.size; i++ {
		result = append(result, buffer.chunks[(buffer.start+i)%len(buffer.chunks)])
	}

	return result
}

func (buffer *OutputBuffer) Len() int {
	return buffer.size
}

func (buffer *OutputBuffer) Cap() int {
	return len(buffer.chunks)
}
