package framing

import (
	"container/list"
	"encoding/binary"
	"sync"
	"time"

	"github.com/dchest/siphash"

	"gitlab.com/duskrelay/duskrelay.git/csrand"
)

// maxReplayFilterSize bounds the filter's memory use. An entry only needs
// to survive 2*AuthWindow before it ages out, so even a busy server doesn't
// need to retain many at once.
const maxReplayFilterSize = 100 * 1024

// DefaultReplayWindow is the FIFO retention window used when NewReplayFilter
// is given a window of zero.
const DefaultReplayWindow = 2 * AuthWindow

// ReplayFilter answers whether it has already seen a given authenticity
// frame, to reject a captured handshake replayed within its validity
// window. It is optional: the default session protocol accepts any
// authenticity frame whose timestamp is fresh, matching the original wire
// format, and a server only consults a ReplayFilter when run with replay
// rejection enabled.
type ReplayFilter struct {
	mu     sync.Mutex
	key0   uint64
	key1   uint64
	window time.Duration
	filter map[uint64]*replayEntry
	fifo   *list.List
}

type replayEntry struct {
	firstSeen int64
	hash      uint64
	element   *list.Element
}

// NewReplayFilter builds a ReplayFilter keyed with a random SipHash-2-4 key,
// so the filter's internal hash table can't be poisoned by an adversary who
// doesn't already know the key. window bounds how long an entry is
// retained before it ages out; a window of zero uses DefaultReplayWindow.
func NewReplayFilter(window time.Duration) (*ReplayFilter, error) {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	var key [16]byte
	if err := csrand.Bytes(key[:]); err != nil {
		return nil, err
	}
	return &ReplayFilter{
		key0:   binary.BigEndian.Uint64(key[0:8]),
		key1:   binary.BigEndian.Uint64(key[8:16]),
		window: window,
		filter: make(map[uint64]*replayEntry),
		fifo:   list.New(),
	}, nil
}

// TestAndSet reports whether buf (an authenticity frame) has been seen
// before, recording it if not. now should be the same clock used to
// validate the frame's timestamp.
func (f *ReplayFilter) TestAndSet(now time.Time, buf []byte) bool {
	hash := siphash.Hash(f.key0, f.key1, buf)
	nowSec := now.Unix()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.compact(nowSec)

	if _, ok := f.filter[hash]; ok {
		return true
	}

	entry := &replayEntry{hash: hash, firstSeen: nowSec}
	entry.element = f.fifo.PushBack(entry)
	f.filter[hash] = entry
	return false
}

// compact purges entries older than f.window, and force-evicts the oldest
// entry once the filter hits maxReplayFilterSize. Not threadsafe; callers
// must hold f.mu.
func (f *ReplayFilter) compact(now int64) {
	maxAge := int64(f.window / time.Second)
	e := f.fifo.Front()
	for e != nil {
		entry := e.Value.(*replayEntry)
		if f.fifo.Len() < maxReplayFilterSize {
			delta := now - entry.firstSeen
			if delta < 0 {
				f.reset()
				return
			}
			if delta < maxAge {
				break
			}
		}
		next := e.Next()
		delete(f.filter, entry.hash)
		f.fifo.Remove(entry.element)
		entry.element = nil
		e = next
	}
}

func (f *ReplayFilter) reset() {
	f.filter = make(map[uint64]*replayEntry)
	f.fifo = list.New()
}
