// Package state is a small reducer-driven state container.
//
// A Store owns one value of type S. The only way to change it is Dispatch, which
// runs the store's reducer under a lock and then notifies subscribers with the
// new value. Reducers must be pure and must not modify the slices or maps of the
// state they receive; they return a new value instead.
package state

import (
	"sync"
)

// Action is anything a reducer can react to.
type Action interface {
	Type() string
}

type Reducer[S any] func(current S, action Action) S

type Listener[S any] func(next S, action Action)

type subscription[S any] struct {
	id int
	fn Listener[S]
}

type Store[S any] struct {
	mu      sync.RWMutex
	state   S
	reducer Reducer[S]

	subMu  sync.Mutex
	subs   []subscription[S]
	nextID int
}

func New[S any](initial S, reducer Reducer[S]) *Store[S] {
	return &Store[S]{
		state:   initial,
		reducer: reducer,
	}
}

func (s *Store[S]) State() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch applies action and returns the resulting state. Listeners run after
// the state lock is released, in subscription order, so they may read the store
// or dispatch again.
func (s *Store[S]) Dispatch(action Action) S {
	s.mu.Lock()
	next := s.reducer(s.state, action)
	s.state = next
	s.mu.Unlock()

	s.subMu.Lock()
	subs := make([]subscription[S], len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(next, action)
	}

	return next
}

// Subscribe registers fn and returns a func that removes it. Calling the
// returned func more than once is harmless.
func (s *Store[S]) Subscribe(fn Listener[S]) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscription[S]{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()

			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}
