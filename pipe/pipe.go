// Package pipe implements the bounded circular-buffer IPC pipe of
// spec.md §4.6.
//
// Grounded directly on biscuit/src/circbuf/circbuf.go's Circbuf_t (head/
// tail indices mod capacity) extended with the readers_waiting/
// writers_waiting FIFO queues spec.md §3 adds. Unlike the teacher's
// buffer, the byte buffer here is allocated up front by New.
// Like ksync, Pipe never transitions thread state itself: Read/Write
// report whether the caller must block, and the kernel package performs
// the actual state transition and yield, re-checking the condition on
// wake per §5 ("wake-ups are not edge-triggered").
package pipe

import (
	"nanokern/defs"
	"nanokern/waitq"
	"sync"
)

/// Pipe is a bounded circular byte buffer (§3).
type Pipe struct {
	mu        sync.Mutex
	buf       []byte
	readPos   int
	writePos  int
	count     int
	blocking  bool
	readers   *waitq.Queue
	writers   *waitq.Queue
	readClosed  bool
	writeClosed bool
}

/// New creates a pipe with the given byte capacity. blocking selects
/// whether Read/Write block the caller or return WouldBlock-style partial
/// results when the buffer is empty/full (§4.6).
func New(size int, blocking bool) *Pipe {
	if size <= 0 {
		panic("pipe: non-positive size")
	}
	return &Pipe{
		buf:      make([]byte, size),
		blocking: blocking,
		readers:  waitq.New(),
		writers:  waitq.New(),
	}
}

/// ReadResult communicates what Read produced and what the kernel package
/// must do next.
type ReadResult struct {
	N       int
	Block   bool       // true: caller must enqueue tid (already done) and block
	Wake    defs.Tid_t // a writer to mark READY, if WokeWriter
	WokeWriter bool
	EOF     bool // write end closed and the buffer is now permanently empty
}

/// Read copies up to len(buf) bytes out of the pipe for tid. If data is
/// available it is copied immediately. If the pipe is empty and
/// non-blocking, it returns 0 bytes. If empty and blocking, tid is
/// enqueued on readers_waiting and Block is true: the caller transitions
/// tid to WAITING with reason PipeEmpty and yields; on wake it must call
/// Read again (§4.6, §5).
func (p *Pipe) Read(tid defs.Tid_t, buf []byte) ReadResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.count > 0 {
		n := min(len(buf), p.count)
		for i := 0; i < n; i++ {
			buf[i] = p.buf[(p.readPos+i)%len(p.buf)]
		}
		p.readPos = (p.readPos + n) % len(p.buf)
		p.count -= n
		res := ReadResult{N: n}
		if w, ok := p.writers.Pop(); ok {
			res.Wake, res.WokeWriter = w, true
		}
		return res
	}
	if p.writeClosed {
		return ReadResult{EOF: true}
	}
	if !p.blocking {
		return ReadResult{N: 0}
	}
	p.readers.Push(tid)
	return ReadResult{Block: true}
}

/// WriteResult mirrors ReadResult for the write path.
type WriteResult struct {
	N          int
	Block      bool
	Wake       defs.Tid_t
	WokeReader bool
	Err        error
}

/// Write copies up to len(buf) bytes into the pipe for tid, the dual of
/// Read. On a non-blocking pipe with only partial space available, it
/// writes what fits and returns that count (§4.6, §8 scenario 5). Writing
/// 0 bytes is always a no-op that returns 0 (§8 boundary behavior).
func (p *Pipe) Write(tid defs.Tid_t, buf []byte) WriteResult {
	if len(buf) == 0 {
		return WriteResult{N: 0}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.readClosed {
		return WriteResult{Err: defs.New(defs.NotFound, "pipe", "reader end closed")}
	}

	free := len(p.buf) - p.count
	if free > 0 {
		n := min(len(buf), free)
		for i := 0; i < n; i++ {
			p.buf[(p.writePos+i)%len(p.buf)] = buf[i]
		}
		p.writePos = (p.writePos + n) % len(p.buf)
		p.count += n
		res := WriteResult{N: n}
		if r, ok := p.readers.Pop(); ok {
			res.Wake, res.WokeReader = r, true
		}
		return res
	}
	if !p.blocking {
		return WriteResult{N: 0}
	}
	p.writers.Push(tid)
	return WriteResult{Block: true}
}

/// Destroy empties both wait lists and returns every waiting reader and
/// writer id, for the caller to wake. No error value is recorded for
/// those threads.
func (p *Pipe) Destroy() []defs.Tid_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	woken := append(p.readers.All(), p.writers.All()...)
	p.readers = waitq.New()
	p.writers = waitq.New()
	return woken
}

/// CloseReader marks the read end closed: pending and future writers are
/// failed rather than blocked forever (supplemental feature grounded on
/// original_source/kernel/Kernel/Ipc.cpp's half-close behavior).
func (p *Pipe) CloseReader() []defs.Tid_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readClosed = true
	woken := p.writers.All()
	p.writers = waitq.New()
	return woken
}

/// CloseWriter marks the write end closed: a subsequent Read against an
/// empty buffer returns EOF instead of blocking.
func (p *Pipe) CloseWriter() []defs.Tid_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeClosed = true
	woken := p.readers.All()
	p.readers = waitq.New()
	return woken
}

/// RemoveWaiter forcibly pulls tid off whichever wait list it is on
/// (§5 cancellation).
func (p *Pipe) RemoveWaiter(tid defs.Tid_t) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readers.Remove(tid) || p.writers.Remove(tid)
}

/// Count, Cap report the pipe's current fill and capacity for diagnostics.
func (p *Pipe) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *Pipe) Cap() int {
	return len(p.buf)
}
