package process

const maxLogBytes = 1 << 20

// tailBuffer is an io.Writer that keeps only the last limit bytes written.
// Assistant runs can be chatty and only the tail is ever reported.
type tailBuffer struct {
	limit     int
	buf       []byte
	truncated bool
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
		b.truncated = true
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	if b.truncated {
		return "... (output truncated)\n" + string(b.buf)
	}
	return string(b.buf)
}
