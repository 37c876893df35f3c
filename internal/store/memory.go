package store

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Subscribers are notified on their own
// goroutine, in write order, only when the value they watch changed.
type MemoryStore struct {
	mu      sync.Mutex
	root    any
	seq     map[string]int64
	subs    map[int]*subscription
	nextSub int
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seq:  make(map[string]int64),
		subs: make(map[int]*subscription),
		now:  time.Now,
	}
}

// SetClock overrides the clock used for ServerTimestamp
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) millis() int64 {
	return s.now().UnixMilli()
}

func (s *MemoryStore) Get(ctx context.Context, path string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return newSnapshot(path, getAt(s.root, Split(path)))
}

func (s *MemoryStore) Set(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parts := Split(path)
	if len(parts) == 0 {
		return ErrUnsupportedPath
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := normalize(value, s.millis())
	if err != nil {
		return err
	}
	s.root = setAt(s.root, parts, v)
	s.notifyLocked(path)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	nf, err := normalizeFields(fields, s.millis())
	if err != nil {
		return err
	}
	s.root = updateAt(s.root, Split(path), nf)
	s.notifyLocked(path)
	return nil
}

func (s *MemoryStore) Push(ctx context.Context, path string, value any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	parts := Split(path)
	if len(parts) == 0 {
		return "", ErrUnsupportedPath
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := normalize(value, s.millis())
	if err != nil {
		return "", err
	}
	norm := Join(parts...)
	s.seq[norm]++
	key := pushKey(s.seq[norm])
	s.root = setAt(s.root, append(parts, key), v)
	s.notifyLocked(Join(norm, key))
	return key, nil
}

func (s *MemoryStore) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	parts := Split(path)
	if len(parts) == 0 {
		return 0, ErrUnsupportedPath
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	root, n, err := incrementAt(s.root, parts, delta)
	if err != nil {
		return 0, err
	}
	s.root = root
	s.notifyLocked(path)
	return n, nil
}

func (s *MemoryStore) Remove(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string, fn func(*Snapshot)) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	snap, err := newSnapshot(path, getAt(s.root, Split(path)))
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	id := s.nextSub
	s.nextSub++
	sub := newSubscription(Join(path), fn)
	sub.last = snap.raw
	s.subs[id] = sub
	sub.push(snap)
	s.mu.Unlock()

	go sub.run()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.stop()
	}, nil
}

// notifyLocked queues a snapshot for every subscriber whose value changed
func (s *MemoryStore) notifyLocked(changed string) {
	for _, sub := range s.subs {
		if !related(sub.path, changed) {
			continue
		}
		snap, err := newSnapshot(sub.path, getAt(s.root, Split(sub.path)))
		if err != nil {
			continue
		}
		if bytes.Equal(snap.raw, sub.last) {
			continue
		}
		sub.last = snap.raw
		sub.push(snap)
	}
}

type subscription struct {
	path string
	fn   func(*Snapshot)
	last []byte

	mu      sync.Mutex
	pending []*Snapshot
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newSubscription(path string, fn func(*Snapshot)) *subscription {
	return &subscription{
		path: path,
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *subscription) push(snap *Snapshot) {
	s.mu.Lock()
	s.pending = append(s.pending, snap)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			batch := s.pending
			s.pending = nil
			s.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, snap := range batch {
				select {
				case <-s.done:
					return
				default:
				}
				s.fn(snap)
			}
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}
