// tile/loader.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import (
	"sync"

	"github.com/radioscape/radioscape/log"
)

const loaderQueueSize = 1024

type loadRequest struct {
	coord    Coord
	provider Provider
}

// AsyncLoader runs Provider.FetchTile off the render thread. The
// render thread enqueues requests and drains completed results each
// frame; it never blocks on the worker.
//
// A coordinate stays in the pending set from Request until its result
// is drained by PollResult, not until the fetch completes. Removing it
// at fetch completion would let the render thread re-request a tile
// that is finished but not yet uploaded to the cache.
type AsyncLoader struct {
	mu      sync.Mutex
	pending map[Coord]interface{}

	requests chan loadRequest
	results  chan *Data

	quit    chan struct{}
	stopped bool
	wg      sync.WaitGroup

	lg *log.Logger
}

// NewAsyncLoader returns a loader with its worker goroutine running.
func NewAsyncLoader(lg *log.Logger) *AsyncLoader {
	l := &AsyncLoader{
		pending:  make(map[Coord]interface{}),
		requests: make(chan loadRequest, loaderQueueSize),
		results:  make(chan *Data, loaderQueueSize),
		quit:     make(chan struct{}),
		lg:       lg,
	}
	l.wg.Add(1)
	go l.worker()
	lg.Info("tile loader: worker started")
	return l
}

// Request enqueues a fetch for the given coordinate. It is a no-op if
// the coordinate is already queued or in-flight. Thread-safe and
// non-blocking.
func (l *AsyncLoader) Request(c Coord, p Provider) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}
	if _, ok := l.pending[c]; ok {
		return
	}

	select {
	case l.requests <- loadRequest{coord: c, provider: p}:
		l.pending[c] = nil
	default:
		// Queue full; the caller re-requests next frame.
		l.lg.Warnf("tile loader: request queue full, dropping %s", c)
	}
}

// PollResult returns one completed tile, or nil if none are ready.
// Non-blocking; the coordinate's pending entry is released here.
func (l *AsyncLoader) PollResult() *Data {
	select {
	case d := <-l.results:
		l.mu.Lock()
		delete(l.pending, d.Coord)
		l.mu.Unlock()
		return d
	default:
		return nil
	}
}

// IsPending reports whether the coordinate is queued or in-flight.
func (l *AsyncLoader) IsPending(c Coord) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[c]
	return ok
}

// ClearPending drops all queued requests, e.g. when a provider is
// about to go away. In-flight fetches still run to completion.
func (l *AsyncLoader) ClearPending() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		select {
		case <-l.requests:
		default:
			clear(l.pending)
			return
		}
	}
}

// Stop shuts down the worker and waits for it. Safe to call more than
// once. An in-flight fetch runs to completion; it is not interrupted.
func (l *AsyncLoader) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	close(l.quit)
	l.wg.Wait()
	l.lg.Info("tile loader: worker stopped")
}

func (l *AsyncLoader) worker() {
	defer l.wg.Done()

	for {
		select {
		case <-l.quit:
			return
		case req := <-l.requests:
			if req.provider == nil {
				l.release(req.coord)
				continue
			}

			d := l.fetch(req)
			if d == nil {
				// Failed; release so the tile can be retried.
				l.release(req.coord)
				continue
			}

			select {
			case l.results <- d:
			case <-l.quit:
				return
			}
		}
	}
}

// fetch calls the provider, converting a panic in provider code into a
// logged failure so one bad tile cannot kill the worker.
func (l *AsyncLoader) fetch(req loadRequest) (d *Data) {
	defer func() {
		if err := recover(); err != nil {
			l.lg.Errorf("tile loader: panic fetching %s: %v", req.coord, err)
			d = nil
		}
	}()

	d, err := req.provider.FetchTile(req.coord)
	if err != nil {
		l.lg.Errorf("tile loader: fetch %s from %s: %v", req.coord, req.provider.Name(), err)
		return nil
	}
	return d
}

func (l *AsyncLoader) release(c Coord) {
	l.mu.Lock()
	delete(l.pending, c)
	l.mu.Unlock()
}
