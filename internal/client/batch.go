package client

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

type Mode int

const (
	// ModeSequential uploads one file at a time; each file resolves before
	// the next starts.
	ModeSequential Mode = iota
	// ModeParallel runs every file's transfer concurrently.
	ModeParallel
)

// ItemState is the visible state of one file in a batch.
type ItemState struct {
	Name     string
	Status   Status
	Progress Progress
	File     *FileInfo
	Err      error
}

type batchItem struct {
	file      File
	state     ItemState
	upload    *Upload
	cancelled bool
}

// Batch drives the uploads of several files. Files succeed or fail on
// their own; a failed file can be retried without touching the others.
type Batch struct {
	transport *Transport
	mode      Mode

	// OnChange, when set, receives every state change of an item.
	OnChange func(index int, state ItemState)

	mu    sync.Mutex
	items []*batchItem
}

func NewBatch(t *Transport, mode Mode, files []File) *Batch {
	b := &Batch{transport: t, mode: mode}
	for _, f := range files {
		b.items = append(b.items, &batchItem{
			file:  f,
			state: ItemState{Name: f.Name, Status: StatusPending},
		})
	}
	return b
}

// Run uploads every pending file and returns the final states.
func (b *Batch) Run(ctx context.Context) []ItemState {
	switch b.mode {
	case ModeParallel:
		var g errgroup.Group
		for i := range b.items {
			g.Go(func() error {
				b.runItem(ctx, i)
				return nil
			})
		}
		_ = g.Wait()
	default:
		for i := range b.items {
			b.runItem(ctx, i)
		}
	}
	return b.States()
}

// Retry uploads a failed file again.
func (b *Batch) Retry(ctx context.Context, index int) (ItemState, error) {
	b.mu.Lock()
	if index < 0 || index >= len(b.items) {
		b.mu.Unlock()
		return ItemState{}, fmt.Errorf("no item %d", index)
	}
	it := b.items[index]
	if it.state.Status != StatusError {
		status := it.state.Status
		b.mu.Unlock()
		return ItemState{}, fmt.Errorf("item %d is %s, only failed items can be retried", index, status)
	}
	it.state = ItemState{Name: it.file.Name, Status: StatusPending}
	b.mu.Unlock()

	b.runItem(ctx, index)
	return b.State(index), nil
}

// Cancel stops a running file or keeps a pending one from starting.
// Cancelling twice or cancelling a resolved file does nothing.
func (b *Batch) Cancel(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.items) {
		return
	}
	it := b.items[index]
	switch it.state.Status {
	case StatusPending:
		it.cancelled = true
	case StatusUploading:
		if it.upload != nil {
			it.upload.Cancel()
		}
	}
}

func (b *Batch) State(index int) ItemState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items[index].state
}

func (b *Batch) States() []ItemState {
	b.mu.Lock()
	defer b.mu.Unlock()
	states := make([]ItemState, len(b.items))
	for i, it := range b.items {
		states[i] = it.state
	}
	return states
}

func (b *Batch) runItem(ctx context.Context, index int) {
	b.mu.Lock()
	it := b.items[index]
	if it.state.Status != StatusPending {
		b.mu.Unlock()
		return
	}
	if it.cancelled || ctx.Err() != nil {
		it.state.Status = StatusCancelled
		state := it.state
		b.mu.Unlock()
		b.notify(index, state)
		return
	}
	it.state.Status = StatusUploading
	it.upload = b.transport.Start(ctx, it.file, func(p Progress) {
		b.mu.Lock()
		it.state.Progress = p
		state := it.state
		b.mu.Unlock()
		b.notify(index, state)
	})
	upload := it.upload
	state := it.state
	b.mu.Unlock()
	b.notify(index, state)

	res := upload.Wait()

	b.mu.Lock()
	it.upload = nil
	it.state.Status = res.Status
	it.state.File = res.File
	it.state.Err = res.Err
	state = it.state
	b.mu.Unlock()
	b.notify(index, state)
}

func (b *Batch) notify(index int, state ItemState) {
	if b.OnChange != nil {
		b.OnChange(index, state)
	}
}
