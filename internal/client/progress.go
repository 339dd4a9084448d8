package client

import (
	"io"
	"sync"
	"time"
)

const (
	progressStep   = 2.0
	progressCap    = 99.0
	speedSampleGap = 300 * time.Millisecond
)

// Progress is a snapshot of one file transfer.
type Progress struct {
	Percent        float64
	BytesSent      int64
	TotalBytes     int64
	BytesPerSecond float64
}

// progressTracker folds per-chunk byte counts into a file percentage. It
// holds the percentage below 100 until finish, emits only after a move of
// progressStep points and samples speed at most every speedSampleGap.
type progressTracker struct {
	mu   sync.Mutex
	emit func(Progress)
	now  func() time.Time

	total    int64
	lengths  map[int]int64
	inflight map[int]int64

	completed      int
	completedBytes int64

	lastPercent float64
	sampleAt    time.Time
	sampleBytes int64
	speed       float64
}

func newProgressTracker(total int64, emit func(Progress)) *progressTracker {
	now := time.Now
	return &progressTracker{
		emit:     emit,
		now:      now,
		total:    total,
		lengths:  make(map[int]int64),
		inflight: make(map[int]int64),
		sampleAt: now(),
	}
}

func (p *progressTracker) setChunks(ranges []Range) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range ranges {
		p.lengths[r.Index] = r.Length
	}
}

// reader counts bytes read from r towards chunk index. A new reader for
// the same chunk restarts its count, as a retry resends the whole range.
func (p *progressTracker) reader(index int, r io.Reader) io.Reader {
	p.mu.Lock()
	p.inflight[index] = 0
	p.mu.Unlock()
	return &countingReader{r: r, add: func(n int) { p.add(index, n) }}
}

func (p *progressTracker) add(index int, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[index]; !ok {
		return
	}
	p.inflight[index] += int64(n)
	p.update()
}

func (p *progressTracker) chunkDone(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, index)
	p.completed++
	p.completedBytes += p.lengths[index]
	p.update()
}

// finish reports 100% once the server has confirmed the file.
func (p *progressTracker) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPercent = 100
	p.sample(p.total)
	if p.emit != nil {
		p.emit(Progress{Percent: 100, BytesSent: p.total, TotalBytes: p.total, BytesPerSecond: p.speed})
	}
}

func (p *progressTracker) sent() int64 {
	sent := p.completedBytes
	for _, n := range p.inflight {
		sent += n
	}
	return sent
}

func (p *progressTracker) percent() float64 {
	chunks := len(p.lengths)
	if chunks == 0 {
		return 0
	}
	done := float64(p.completed)
	for i, n := range p.inflight {
		if l := p.lengths[i]; l > 0 {
			done += float64(min(n, l)) / float64(l)
		}
	}
	return min(done*100/float64(chunks), progressCap)
}

func (p *progressTracker) sample(sent int64) {
	now := p.now()
	dt := now.Sub(p.sampleAt)
	if dt < speedSampleGap {
		return
	}
	p.speed = float64(sent-p.sampleBytes) / dt.Seconds()
	p.sampleAt = now
	p.sampleBytes = sent
}

// update must be called with mu held.
func (p *progressTracker) update() {
	sent := p.sent()
	p.sample(sent)
	percent := p.percent()
	if percent-p.lastPercent < progressStep {
		return
	}
	p.lastPercent = percent
	if p.emit != nil {
		p.emit(Progress{Percent: percent, BytesSent: sent, TotalBytes: p.total, BytesPerSecond: p.speed})
	}
}

type countingReader struct {
	r   io.Reader
	add func(int)
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	if n > 0 {
		c.add(n)
	}
	return n, err
}
