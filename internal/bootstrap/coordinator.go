// Package bootstrap restores the session on startup, loads the collections
// that depend on it and wires the stores to their backends.
package bootstrap

import (
	"context"
	"sync"

	"budgetsync/internal/log"
	"budgetsync/internal/session"
	"budgetsync/internal/store"
)

// Coordinator loads categories whenever there is an authenticated user.
// It holds no domain state of its own.
type Coordinator struct {
	session    *session.Store
	categories *store.Categories
	logger     *log.Logger

	mu       sync.Mutex
	lastUser string
	inflight sync.WaitGroup
}

func NewCoordinator(s *session.Store, categories *store.Categories, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Discard()
	}
	return &Coordinator{
		session:    s,
		categories: categories,
		logger:     logger.WithComponent(log.ComponentBootstrap),
	}
}

// Start restores the persisted session and, only when it is still valid,
// fetches categories. A rejected session is not an error. A failed category
// fetch is returned and also recorded in the category store.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.session.RestoreSession(ctx); err != nil {
		return err
	}

	u, ok := c.session.User()
	if !ok {
		c.logger.InfoContext(ctx, "No session to restore")
		return nil
	}
	c.mu.Lock()
	c.lastUser = u.ID
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Session restored", log.FieldOperation, log.OpStartup, log.FieldUserID, u.ID)
	if _, err := c.categories.FetchAll(ctx); err != nil {
		c.logger.WarnContext(ctx, "Initial category fetch failed", log.FieldError, err)
		return err
	}
	return nil
}

// Watch fetches categories in the background each time a different user
// signs in after Watch is called. The returned func stops watching.
func (c *Coordinator) Watch(ctx context.Context) func() {
	c.mu.Lock()
	if u, ok := c.session.User(); ok {
		c.lastUser = u.ID
	}
	c.mu.Unlock()

	return c.session.Subscribe(func(st session.State) {
		id := ""
		if st.Phase() == session.Authenticated {
			id = st.User.ID
		}

		c.mu.Lock()
		changed := id != c.lastUser
		c.lastUser = id
		c.mu.Unlock()
		if !changed || id == "" {
			return
		}

		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			if _, err := c.categories.FetchAll(ctx); err != nil {
				c.logger.WarnContext(ctx, "Category fetch after sign-in failed",
					log.FieldUserID, id, log.FieldError, err)
			}
		}()
	})
}

// Wait blocks until fetches started by Watch have finished.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}
