package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DirectUploadThreshold is the size below which a file is sent in one
	// request without an upload session.
	DirectUploadThreshold int64 = 5 * 1024 * 1024

	MaxRetries = 3
	RetryStep  = time.Second
)

// Profile fixes the chunk size and the number of parallel chunk requests.
type Profile struct {
	Name      string
	ChunkSize int64
	Workers   int
}

var (
	ProfileMobile  = Profile{Name: "mobile", ChunkSize: 1 * 1024 * 1024, Workers: 5}
	ProfileDesktop = Profile{Name: "desktop", ChunkSize: 2 * 1024 * 1024, Workers: 6}
)

// ProfileByName returns the named profile, defaulting to desktop.
func ProfileByName(name string) (Profile, error) {
	switch name {
	case "", ProfileDesktop.Name:
		return ProfileDesktop, nil
	case ProfileMobile.Name:
		return ProfileMobile, nil
	}
	return Profile{}, fmt.Errorf("unknown profile %q", name)
}

// File is one file to upload. Reader must allow concurrent ReadAt calls.
type File struct {
	Name     string
	Size     int64
	MimeType string
	Reader   io.ReaderAt
}

// OpenFile opens a local file for upload. The caller closes the returned
// *os.File.
func OpenFile(path string) (File, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return File{}, nil, err
	}
	if st.IsDir() {
		f.Close()
		return File{}, nil, fmt.Errorf("%s is a directory", path)
	}
	name := filepath.Base(path)
	return File{
		Name:     name,
		Size:     st.Size(),
		MimeType: mime.TypeByExtension(filepath.Ext(name)),
		Reader:   f,
	}, f, nil
}

// Range is the byte range [Offset, Offset+Length) of chunk Index.
type Range struct {
	Index  int
	Offset int64
	Length int64
}

// TotalChunks returns ceil(size / chunkSize).
func TotalChunks(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// ChunkRanges splits size bytes into consecutive ranges of chunkSize; the
// last range holds the remainder.
func ChunkRanges(size, chunkSize int64) []Range {
	n := TotalChunks(size, chunkSize)
	ranges := make([]Range, n)
	for i := 0; i < n; i++ {
		off := int64(i) * chunkSize
		ranges[i] = Range{Index: i, Offset: off, Length: min(chunkSize, size-off)}
	}
	return ranges
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Result is the outcome of one file. Err is set only for StatusError.
type Result struct {
	Status Status
	File   *FileInfo
	Err    error
}

// Transport moves files to the server, chunked or direct by size.
type Transport struct {
	api       API
	profile   Profile
	source    string
	threshold int64
	retryStep time.Duration
}

func NewTransport(api API, profile Profile, source string) *Transport {
	return &Transport{
		api:       api,
		profile:   profile,
		source:    source,
		threshold: DirectUploadThreshold,
		retryStep: RetryStep,
	}
}

// Upload is a running file transfer.
type Upload struct {
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Cancel aborts in-flight requests. It is safe to call more than once and
// after the upload has finished.
func (u *Upload) Cancel() { u.cancel() }

// Wait blocks until the upload has resolved.
func (u *Upload) Wait() Result {
	<-u.done
	return u.result
}

// Done is closed once the upload has resolved.
func (u *Upload) Done() <-chan struct{} { return u.done }

// Start begins uploading f in the background. onProgress may be nil; it is
// called with throttled updates and must not block.
func (t *Transport) Start(ctx context.Context, f File, onProgress func(Progress)) *Upload {
	ctx, cancel := context.WithCancel(ctx)
	u := &Upload{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(u.done)
		defer cancel()
		u.result = t.run(ctx, f, onProgress)
	}()
	return u
}

// Upload sends f and blocks until it resolves.
func (t *Transport) Upload(ctx context.Context, f File, onProgress func(Progress)) Result {
	return t.Start(ctx, f, onProgress).Wait()
}

func (t *Transport) run(ctx context.Context, f File, onProgress func(Progress)) Result {
	tracker := newProgressTracker(f.Size, onProgress)

	var (
		info *FileInfo
		err  error
	)
	if f.Size < t.threshold {
		info, err = t.direct(ctx, f, tracker)
	} else {
		info, err = t.chunked(ctx, f, tracker)
	}
	if err != nil {
		if ctx.Err() != nil {
			return Result{Status: StatusCancelled}
		}
		return Result{Status: StatusError, Err: err}
	}
	tracker.finish()
	return Result{Status: StatusSuccess, File: info}
}

func (t *Transport) direct(ctx context.Context, f File, tracker *progressTracker) (*FileInfo, error) {
	tracker.setChunks([]Range{{Index: 0, Length: f.Size}})
	var info *FileInfo
	err := retry(ctx, MaxRetries, t.retryStep, func() error {
		body := tracker.reader(0, io.NewSectionReader(f.Reader, 0, f.Size))
		var err error
		info, err = t.api.DirectUpload(ctx, f.Name, f.MimeType, t.source, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	tracker.chunkDone(0)
	return info, nil
}

func (t *Transport) chunked(ctx context.Context, f File, tracker *progressTracker) (*FileInfo, error) {
	ranges := ChunkRanges(f.Size, t.profile.ChunkSize)
	tracker.setChunks(ranges)

	uploadID, err := t.api.InitUpload(ctx, InitRequest{
		Filename:    f.Name,
		TotalChunks: len(ranges),
		FileSize:    f.Size,
		MimeType:    f.MimeType,
		Source:      t.source,
	})
	if err != nil {
		return nil, fmt.Errorf("init upload: %w", err)
	}

	queue := make(chan Range, len(ranges))
	for _, r := range ranges {
		queue <- r
	}
	close(queue)

	// a failed chunk stops dispatch but leaves sibling requests running
	var failed atomic.Bool
	var g errgroup.Group
	workers := max(t.profile.Workers, 1)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for r := range queue {
				if failed.Load() || ctx.Err() != nil {
					return nil
				}
				if err := t.sendChunk(ctx, f, uploadID, r, tracker); err != nil {
					failed.Store(true)
					return fmt.Errorf("chunk %d: %w", r.Index, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := t.api.CompleteUpload(ctx, CompleteRequest{
		UploadID:    uploadID,
		Filename:    f.Name,
		TotalChunks: len(ranges),
		MimeType:    f.MimeType,
		Source:      t.source,
	})
	if err != nil {
		return nil, fmt.Errorf("complete upload: %w", err)
	}
	return info, nil
}

func (t *Transport) sendChunk(ctx context.Context, f File, uploadID string, r Range, tracker *progressTracker) error {
	err := retry(ctx, MaxRetries, t.retryStep, func() error {
		return t.api.UploadChunk(ctx, ChunkRequest{
			UploadID: uploadID,
			Index:    r.Index,
			Filename: f.Name,
			Body:     tracker.reader(r.Index, io.NewSectionReader(f.Reader, r.Offset, r.Length)),
		})
	})
	if err != nil {
		return err
	}
	tracker.chunkDone(r.Index)
	return nil
}
