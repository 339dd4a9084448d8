package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zeroReader serves size bytes of zeros without allocating them.
type zeroReader struct{ size int64 }

func (z zeroReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= z.size {
		return 0, io.EOF
	}
	n := min(int64(len(p)), z.size-off)
	clear(p[:n])
	if n < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

type fakeAPI struct {
	mu        sync.Mutex
	failures  map[int]int
	failWith  error
	attempts  map[int]int
	received  map[int]int64
	direct    int64
	inits     []InitRequest
	completes int
	block     bool
	started   chan struct{}
	delay     time.Duration
	inflight  int
	peak      int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		failures: make(map[int]int),
		failWith: errors.New("connection reset"),
		attempts: make(map[int]int),
		received: make(map[int]int64),
		started:  make(chan struct{}, 64),
	}
}

func (f *fakeAPI) InitUpload(_ context.Context, req InitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits = append(f.inits, req)
	return fmt.Sprintf("1-upload%d", len(f.inits)), nil
}

func (f *fakeAPI) UploadChunk(ctx context.Context, req ChunkRequest) error {
	select {
	case f.started <- struct{}{}:
	default:
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	f.inflight++
	f.peak = max(f.peak, f.inflight)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	n, err := io.Copy(io.Discard, req.Body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[req.Index]++
	if f.failures[req.Index] > 0 {
		f.failures[req.Index]--
		return f.failWith
	}
	f.received[req.Index] = n
	return nil
}

func (f *fakeAPI) CompleteUpload(_ context.Context, req CompleteRequest) (*FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	var size int64
	for i := 0; i < req.TotalChunks; i++ {
		n, ok := f.received[i]
		if !ok {
			return nil, &Error{Code: http.StatusConflict, Message: "missing chunk"}
		}
		size += n
	}
	return &FileInfo{Filename: req.Filename, Size: size, Source: req.Source}, nil
}

func (f *fakeAPI) DirectUpload(_ context.Context, filename, _, source string, body io.Reader) (*FileInfo, error) {
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct += n
	return &FileInfo{Filename: filename, Size: n, Source: source}, nil
}

func fastTransport(api API, profile Profile) *Transport {
	t := NewTransport(api, profile, "user")
	t.retryStep = time.Millisecond
	return t
}

func TestChunkRangesCoverFileExactly(t *testing.T) {
	const c = 2 * 1024 * 1024
	for _, size := range []int64{1, c - 1, c, c + 1, 12 * 1024 * 1024, 5*1024*1024 + 7} {
		ranges := ChunkRanges(size, c)
		require.Len(t, ranges, TotalChunks(size, c))
		assert.Equal(t, int((size+c-1)/c), len(ranges))
		var next int64
		for i, r := range ranges {
			assert.Equal(t, i, r.Index)
			assert.Equal(t, next, r.Offset, "ranges must be contiguous")
			assert.Greater(t, r.Length, int64(0))
			assert.LessOrEqual(t, r.Length, int64(c))
			next += r.Length
		}
		assert.Equal(t, size, next)
	}
	assert.Empty(t, ChunkRanges(0, c))
	assert.Equal(t, 6, TotalChunks(12*1024*1024, c))
}

func TestSmallFilesBypassChunking(t *testing.T) {
	cases := []struct {
		size   int64
		direct bool
		chunks int
	}{
		{1024, true, 0},
		{49 * 1024 * 1024 / 10, true, 0},
		{51 * 1024 * 1024 / 10, false, 3},
	}
	for _, tc := range cases {
		api := newFakeAPI()
		res := fastTransport(api, ProfileDesktop).Upload(context.Background(), File{Name: "f.bin", Size: tc.size, Reader: zeroReader{tc.size}}, nil)
		require.Equal(t, StatusSuccess, res.Status, "%v", res.Err)
		assert.Equal(t, tc.size, res.File.Size)
		if tc.direct {
			assert.Empty(t, api.inits, "size %d", tc.size)
			assert.Equal(t, tc.size, api.direct)
		} else {
			require.Len(t, api.inits, 1)
			assert.Equal(t, tc.chunks, api.inits[0].TotalChunks)
			assert.Zero(t, api.direct)
		}
	}
}

func TestWorkerPoolBoundsInFlightChunks(t *testing.T) {
	for _, profile := range []Profile{ProfileDesktop, ProfileMobile} {
		api := newFakeAPI()
		api.delay = 20 * time.Millisecond
		size := int64(40 * 1024 * 1024)
		res := fastTransport(api, profile).Upload(context.Background(), File{Name: "big.bin", Size: size, Reader: zeroReader{size}}, nil)
		require.Equal(t, StatusSuccess, res.Status, "%s: %v", profile.Name, res.Err)
		assert.Equal(t, size, res.File.Size)
		assert.Equal(t, profile.Workers, api.peak, profile.Name)
		assert.Zero(t, api.inflight)
	}
}

func TestMobileProfileUsesSmallerChunks(t *testing.T) {
	api := newFakeAPI()
	size := int64(6 * 1024 * 1024)
	res := fastTransport(api, ProfileMobile).Upload(context.Background(), File{Name: "m.bin", Size: size, Reader: zeroReader{size}}, nil)
	require.Equal(t, StatusSuccess, res.Status)
	require.Len(t, api.inits, 1)
	assert.Equal(t, 6, api.inits[0].TotalChunks)
	for i := 0; i < 6; i++ {
		assert.EqualValues(t, 1024*1024, api.received[i])
	}
}

func TestChunkRetryBound(t *testing.T) {
	size := int64(6 * 1024 * 1024)

	api := newFakeAPI()
	api.failures[1] = 3
	res := fastTransport(api, ProfileDesktop).Upload(context.Background(), File{Name: "a", Size: size, Reader: zeroReader{size}}, nil)
	require.Equal(t, StatusSuccess, res.Status, "%v", res.Err)
	assert.Equal(t, 4, api.attempts[1])
	assert.Equal(t, 1, api.completes)

	api = newFakeAPI()
	api.failures[1] = 4
	res = fastTransport(api, ProfileDesktop).Upload(context.Background(), File{Name: "a", Size: size, Reader: zeroReader{size}}, nil)
	require.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err, api.failWith)
	assert.Equal(t, 4, api.attempts[1])
	assert.Zero(t, api.completes)
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	size := int64(6 * 1024 * 1024)
	api := newFakeAPI()
	api.failures[0] = 1
	api.failWith = &Error{Code: http.StatusForbidden, Message: "not your upload"}

	res := fastTransport(api, ProfileDesktop).Upload(context.Background(), File{Name: "a", Size: size, Reader: zeroReader{size}}, nil)
	require.Equal(t, StatusError, res.Status)
	assert.True(t, IsStatus(res.Err, http.StatusForbidden))
	assert.Equal(t, 1, api.attempts[0])
}

func TestCancelResolvesCancelledAndIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	api.block = true
	size := int64(12 * 1024 * 1024)

	u := fastTransport(api, ProfileDesktop).Start(context.Background(), File{Name: "a", Size: size, Reader: zeroReader{size}}, nil)
	<-api.started
	u.Cancel()
	u.Cancel()

	res := u.Wait()
	assert.Equal(t, StatusCancelled, res.Status)
	assert.NoError(t, res.Err)
	assert.Zero(t, api.completes)

	u.Cancel()
	assert.Equal(t, res, u.Wait())
}

func TestProgressIsThrottledAndClamped(t *testing.T) {
	var got []Progress
	p := newProgressTracker(100, func(pr Progress) { got = append(got, pr) })
	ranges := ChunkRanges(100, 1)
	p.setChunks(ranges)

	for _, r := range ranges {
		p.chunkDone(r.Index)
	}
	require.NotEmpty(t, got)
	prev := 0.0
	for _, pr := range got {
		assert.GreaterOrEqual(t, pr.Percent-prev, progressStep)
		assert.LessOrEqual(t, pr.Percent, progressCap)
		prev = pr.Percent
	}
	assert.Equal(t, 98.0, got[len(got)-1].Percent)

	p.finish()
	assert.Equal(t, 100.0, got[len(got)-1].Percent)
}

func TestProgressCountsPartialChunks(t *testing.T) {
	var got []Progress
	p := newProgressTracker(400, func(pr Progress) { got = append(got, pr) })
	p.setChunks(ChunkRanges(400, 100))

	r := p.reader(0, io.LimitReader(zeroStream{}, 100))
	buf := make([]byte, 50)
	_, err := r.Read(buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 12.5, got[0].Percent, 0.001)

	// a retry restarts the count of its chunk
	p.reader(0, io.LimitReader(zeroStream{}, 100))
	p.chunkDone(0)
	require.Len(t, got, 2)
	assert.InDelta(t, 25, got[1].Percent, 0.001)
}

func TestSpeedIsSampledAtInterval(t *testing.T) {
	now := time.Unix(1000, 0)
	var got []Progress
	p := newProgressTracker(1000, func(pr Progress) { got = append(got, pr) })
	p.now = func() time.Time { return now }
	p.sampleAt = now
	p.setChunks(ChunkRanges(1000, 100))

	now = now.Add(100 * time.Millisecond)
	p.chunkDone(0)
	assert.Zero(t, got[len(got)-1].BytesPerSecond, "no sample before the interval")

	now = now.Add(400 * time.Millisecond)
	p.chunkDone(1)
	assert.InDelta(t, 400, got[len(got)-1].BytesPerSecond, 0.001)
}

type zeroStream struct{}

func (zeroStream) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
