package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store implementation holding the document
// tree in memory. It backs tests and single-process deployments.
type MemoryStore struct {
	mu     sync.Mutex
	root   map[string]any
	subs   map[int]*memorySub
	nextID int
}

type memorySub struct {
	path  string
	queue *snapshotQueue
}

// NewMemoryStore returns an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		root: make(map[string]any),
		subs: make(map[int]*memorySub),
	}
}

func (s *MemoryStore) Read(_ context.Context, path string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(path)
}

func (s *MemoryStore) Write(ctx context.Context, path string, doc any) error {
	if doc == nil {
		return s.Remove(ctx, path)
	}
	value, err := normalizeValue(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.setLocked(splitPath(path), value)
	s.notifyLocked(path)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Merge(_ context.Context, path string, fields map[string]any) error {
	normalized := make(map[string]any, len(fields))
	for k, v := range fields {
		value, err := normalizeValue(v)
		if err != nil {
			return err
		}
		normalized[k] = value
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	segs := splitPath(path)
	node, ok := s.lookupLocked(segs).(map[string]any)
	if !ok {
		node = make(map[string]any)
		s.setLocked(segs, node)
	}
	for k, v := range normalized {
		node[k] = v
	}
	s.notifyLocked(path)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	segs := splitPath(path)
	parent, ok := s.lookupLocked(segs[:len(segs)-1]).(map[string]any)
	if ok {
		delete(parent, segs[len(segs)-1])
	}
	s.notifyLocked(path)
	return nil
}

func (s *MemoryStore) Subscribe(_ context.Context, path string, onSnapshot SnapshotFunc, onError ErrorFunc) (UnsubscribeFunc, error) {
	_ = onError // the in-memory tree cannot fail asynchronously
	sub := &memorySub{path: path, queue: newSnapshotQueue()}

	s.mu.Lock()
	initial, err := s.snapshotLocked(path)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	// Enqueue the initial snapshot while still holding the lock, so a
	// concurrent write cannot slip its snapshot in ahead of it.
	sub.queue.enqueue(initial)
	s.mu.Unlock()

	go sub.queue.run(onSnapshot)

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.queue.close()
	}
	return unsubscribe, nil
}

func (s *MemoryStore) GenerateID(_ context.Context, _ string) (string, error) {
	return uuid.NewString(), nil
}

func (s *MemoryStore) snapshotLocked(path string) (json.RawMessage, error) {
	node := s.lookupLocked(splitPath(path))
	if node == nil {
		return nil, nil
	}
	return json.Marshal(node)
}

func (s *MemoryStore) lookupLocked(segs []string) any {
	var node any = s.root
	for _, seg := range segs {
		if seg == "" {
			continue
		}
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return node
}

// setLocked replaces the subtree at segs, creating intermediate objects as
// needed.
func (s *MemoryStore) setLocked(segs []string, value any) {
	node := s.root
	for i, seg := range segs {
		if i == len(segs)-1 {
			node[seg] = value
			return
		}
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
}

func (s *MemoryStore) notifyLocked(changed string) {
	for _, sub := range s.subs {
		if !Within(sub.path, changed) {
			continue
		}
		doc, err := s.snapshotLocked(sub.path)
		if err != nil {
			continue
		}
		sub.queue.enqueue(doc)
	}
}
