package supervisor

import (
	"bufio"
	"io"
	"sync"
)

// teeChunkSize is the read granularity for output capture. Agent CLIs emit
// interactive progress, so chunks are small enough to keep the console mirror
// responsive.
const teeChunkSize = 8 * 1024

// logSink is the capture's view of the task log file. *os.File satisfies it.
type logSink interface {
	io.Writer
	Sync() error
	Close() error
}

// capture tees child output into one shared log file. Stdout and stderr are
// drained by separate goroutines; the file writer is the only shared state
// and is guarded here.
type capture struct {
	mu sync.Mutex
	f  logSink
	w  *bufio.Writer
}

func newCapture(f logSink) *capture {
	return &capture{f: f, w: bufio.NewWriterSize(f, teeChunkSize)}
}

// drain copies src to the log file and mirrors it to console until EOF.
// Read errors end the drain silently: a closing pipe is the normal way a
// child's exit is observed here.
func (c *capture) drain(console io.Writer, src io.Reader) {
	buf := make([]byte, teeChunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			c.mu.Lock()
			_, _ = c.w.Write(buf[:n])
			c.mu.Unlock()
			if console != nil {
				_, _ = console.Write(buf[:n])
			}
		}
		if err != nil {
			return
		}
	}
}

// close flushes buffered output, syncs it to stable storage and closes the
// log file. The first error wins; a completed record must never point at a
// silently truncated log.
func (c *capture) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.w.Flush()
	if serr := c.f.Sync(); err == nil {
		err = serr
	}
	if cerr := c.f.Close(); err == nil {
		err = cerr
	}
	return err
}
