// Package todo is an in-memory todo list exposed as pipeline commands.
package todo

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Todo is a single todo item.
type Todo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store holds todos in memory. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	items map[string]Todo
	// order is insertion order, so List is stable.
	order []string
	now   func() time.Time
	newID func() string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		items: make(map[string]Todo),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Create adds a todo and returns it.
func (s *Store) Create(title, description string) Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := Todo{
		ID:          s.newID(),
		Title:       title,
		Description: description,
		CreatedAt:   s.now().UTC(),
	}
	s.items[t.ID] = t
	s.order = append(s.order, t.ID)
	return t
}

// Get returns the todo with the given ID.
func (s *Store) Get(id string) (Todo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.items[id]
	return t, ok
}

// Update applies fn to the todo with the given ID and stores the result.
func (s *Store) Update(id string, fn func(*Todo)) (Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok {
		return Todo{}, false
	}
	fn(&t)
	t.ID = id
	s.items[id] = t
	return t, true
}

// Delete removes the todo with the given ID.
func (s *Store) Delete(id string) (Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok {
		return Todo{}, false
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return t, true
}

// List returns todos in creation order. A non-nil completed filters by
// completion state.
func (s *Store) List(completed *bool) []Todo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Todo, 0, len(s.order))
	for _, id := range s.order {
		t := s.items[id]
		if completed != nil && t.Completed != *completed {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Len returns the number of todos.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// byTitle sorts todos by title, then ID.
func byTitle(todos []Todo) {
	sort.SliceStable(todos, func(i, j int) bool {
		if todos[i].Title != todos[j].Title {
			return todos[i].Title < todos[j].Title
		}
		return todos[i].ID < todos[j].ID
	})
}
