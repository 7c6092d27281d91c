package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"budgetsync/internal/api"
	"budgetsync/internal/cache"
	"budgetsync/internal/core"
	"budgetsync/internal/log"
)

// Entity is a server-owned record with a stable id.
type Entity interface {
	EntityID() string
}

// Slot holds one entity loaded for a detail view, with its own request status.
type Slot[T any] struct {
	Status core.Status
	Data   *T
	Error  string
}

// CollectionState is the client-side mirror of one remote collection.
// Items never holds two entries with the same id.
type CollectionState[T any] struct {
	Status   core.Status
	Items    []T
	Error    string
	Selected *T
	Detail   Slot[T]

	// rev changes whenever Items changes.
	rev uint64
}

func (s CollectionState[T]) clone() CollectionState[T] {
	s.Items = slices.Clone(s.Items)
	if s.Selected != nil {
		v := *s.Selected
		s.Selected = &v
	}
	if s.Detail.Data != nil {
		v := *s.Detail.Data
		s.Detail.Data = &v
	}
	return s
}

// Resource is the remote side of a collection.
type Resource[T Entity, C, U any] interface {
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, in C) (T, error)
	// Update returns the fields the server sent back, to be shallow-merged.
	Update(ctx context.Context, id string, u U) (core.Patch, error)
	Delete(ctx context.Context, id string) error
}

// CollectionConfig tunes the memoized selectors.
type CollectionConfig struct {
	CacheSize int
	CacheTTL  time.Duration
	Logger    *log.Logger
}

// Collection keeps an ordered set of entities in sync with a Resource.
type Collection[T Entity, C, U any] struct {
	name string
	res  Resource[T, C, U]
	m    *Machine[CollectionState[T]]
	memo *cache.Memo[[]T]
}

func NewCollection[T Entity, C, U any](name string, res Resource[T, C, U], cfg CollectionConfig) *Collection[T, C, U] {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 128
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	return &Collection[T, C, U]{
		name: name,
		res:  res,
		m:    NewMachine(name, CollectionState[T]{}, logger.WithComponent(name)),
		memo: cache.NewMemo[[]T](cfg.CacheSize, cfg.CacheTTL),
	}
}

func (c *Collection[T, C, U]) Name() string { return c.name }

// Memo exposes the selector cache so it can be registered for cleanup.
func (c *Collection[T, C, U]) Memo() *cache.Memo[[]T] { return c.memo }

func (c *Collection[T, C, U]) opName(verb string) string { return c.name + "/" + verb }

func listPending[T any](s CollectionState[T]) CollectionState[T] {
	s.Status = core.StatusLoading
	s.Error = ""
	return s
}

func listRejected[T any](s CollectionState[T], msg string) CollectionState[T] {
	s.Status = core.StatusFailed
	s.Error = msg
	return s
}

// FetchAll replaces Items with the server's sequence, in server order.
func (c *Collection[T, C, U]) FetchAll(ctx context.Context) ([]T, error) {
	op := Op[CollectionState[T], []T]{
		Name:    c.opName("fetchAll"),
		Pending: listPending[T],
		Fulfilled: func(s CollectionState[T], items []T) CollectionState[T] {
			s.Items = dedupe(items)
			s.rev++
			s.Status = core.StatusSucceeded
			return s
		},
		Rejected: listRejected[T],
	}
	items, err := Run(ctx, c.m, op, c.res.List)
	return slices.Clone(items), err
}

// FetchOne loads one entity into the detail slot. Items is not touched.
func (c *Collection[T, C, U]) FetchOne(ctx context.Context, id string) (T, error) {
	op := Op[CollectionState[T], T]{
		Name: c.opName("fetchOne"),
		Pending: func(s CollectionState[T]) CollectionState[T] {
			s.Detail.Status = core.StatusLoading
			s.Detail.Error = ""
			return s
		},
		Fulfilled: func(s CollectionState[T], item T) CollectionState[T] {
			s.Detail = Slot[T]{Status: core.StatusSucceeded, Data: &item}
			return s
		},
		Rejected: func(s CollectionState[T], msg string) CollectionState[T] {
			s.Detail.Status = core.StatusFailed
			s.Detail.Error = msg
			return s
		},
	}
	return Run(ctx, c.m, op, func(ctx context.Context) (T, error) {
		return c.res.Get(ctx, id)
	})
}

// Create prepends the server-confirmed entity to Items.
func (c *Collection[T, C, U]) Create(ctx context.Context, in C) (T, error) {
	op := Op[CollectionState[T], T]{
		Name:    c.opName("create"),
		Pending: listPending[T],
		Fulfilled: func(s CollectionState[T], item T) CollectionState[T] {
			rest := slices.DeleteFunc(slices.Clone(s.Items), func(e T) bool {
				return e.EntityID() == item.EntityID()
			})
			s.Items = append([]T{item}, rest...)
			s.rev++
			s.Status = core.StatusSucceeded
			return s
		},
		Rejected: listRejected[T],
	}
	return Run(ctx, c.m, op, func(ctx context.Context) (T, error) {
		return c.res.Create(ctx, in)
	})
}

// Update shallow-merges the server's answer into the entry with the given id,
// keeping its position. It is a no-op on Items when the id is not present.
func (c *Collection[T, C, U]) Update(ctx context.Context, id string, u U) (core.Patch, error) {
	op := Op[CollectionState[T], core.Patch]{
		Name:    c.opName("update"),
		Pending: listPending[T],
		Fulfilled: func(s CollectionState[T], p core.Patch) CollectionState[T] {
			s.Status = core.StatusSucceeded
			i := slices.IndexFunc(s.Items, func(e T) bool { return e.EntityID() == id })
			if i < 0 {
				return s
			}
			merged, err := core.ApplyPatch(s.Items[i], p)
			if err != nil {
				c.m.logger.Error("Update response could not be merged",
					log.FieldStore, c.m.name, log.FieldOperation, c.opName("update"),
					log.FieldErrorType, log.ErrorTypeValidation, log.FieldError, err)
				return s
			}
			s.Items = slices.Clone(s.Items)
			s.Items[i] = merged
			s.rev++
			if s.Selected != nil && (*s.Selected).EntityID() == id {
				s.Selected = &merged
			}
			return s
		},
		Rejected: listRejected[T],
	}
	return Run(ctx, c.m, op, func(ctx context.Context) (core.Patch, error) {
		p, err := c.res.Update(ctx, id, u)
		if err != nil {
			return nil, err
		}
		var base T
		if cur, ok := c.Find(id); ok {
			base = cur
		}
		if _, err := core.ApplyPatch(base, p); err != nil {
			return nil, &api.TransportError{Op: c.opName("update"), Err: fmt.Errorf("malformed update response: %w", err)}
		}
		return p, nil
	})
}

// Delete removes the entry with the given id. Deleting an id that is not in
// Items succeeds and leaves Items unchanged.
func (c *Collection[T, C, U]) Delete(ctx context.Context, id string) error {
	op := Op[CollectionState[T], struct{}]{
		Name:    c.opName("delete"),
		Pending: listPending[T],
		Fulfilled: func(s CollectionState[T], _ struct{}) CollectionState[T] {
			s.Status = core.StatusSucceeded
			if !slices.ContainsFunc(s.Items, func(e T) bool { return e.EntityID() == id }) {
				return s
			}
			s.Items = slices.DeleteFunc(slices.Clone(s.Items), func(e T) bool { return e.EntityID() == id })
			s.rev++
			if s.Selected != nil && (*s.Selected).EntityID() == id {
				s.Selected = nil
			}
			return s
		},
		Rejected: listRejected[T],
	}
	_, err := Run(ctx, c.m, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.res.Delete(ctx, id)
	})
	return err
}

// Select marks item as the one the UI is working on.
func (c *Collection[T, C, U]) Select(item T) {
	c.m.Update(func(s CollectionState[T]) CollectionState[T] {
		s.Selected = &item
		return s
	})
}

func (c *Collection[T, C, U]) ClearSelected() {
	c.m.Update(func(s CollectionState[T]) CollectionState[T] {
		s.Selected = nil
		return s
	})
}

// ClearDetail resets the detail slot to idle.
func (c *Collection[T, C, U]) ClearDetail() {
	c.m.Update(func(s CollectionState[T]) CollectionState[T] {
		s.Detail = Slot[T]{}
		return s
	})
}

// State returns a copy of the current state.
func (c *Collection[T, C, U]) State() CollectionState[T] {
	return c.m.State().clone()
}

func (c *Collection[T, C, U]) Items() []T {
	return slices.Clone(c.m.State().Items)
}

func (c *Collection[T, C, U]) Find(id string) (T, bool) {
	items := c.m.State().Items
	i := slices.IndexFunc(items, func(e T) bool { return e.EntityID() == id })
	if i < 0 {
		var zero T
		return zero, false
	}
	return items[i], true
}

// Where returns the items matching pred, in Items order. Results are cached
// under key until Items next changes, so key must identify pred.
func (c *Collection[T, C, U]) Where(key string, pred func(T) bool) []T {
	s := c.m.State()
	out := c.memo.Get(s.rev, key, func() []T {
		matched := make([]T, 0, len(s.Items))
		for _, item := range s.Items {
			if pred(item) {
				matched = append(matched, item)
			}
		}
		return matched
	})
	return slices.Clone(out)
}

// Subscribe calls fn with a copy of the state after every change.
func (c *Collection[T, C, U]) Subscribe(fn func(CollectionState[T])) func() {
	return c.m.Subscribe(func(s CollectionState[T]) { fn(s.clone()) })
}

// Observe calls fn on every lifecycle transition of this collection.
func (c *Collection[T, C, U]) Observe(fn func(core.Transition)) {
	c.m.Observe(fn)
}

// dedupe keeps the first occurrence of every id.
func dedupe[T Entity](items []T) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.EntityID()]; ok {
			continue
		}
		seen[item.EntityID()] = struct{}{}
		out = append(out, item)
	}
	return out
}
