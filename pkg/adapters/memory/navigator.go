package memory

import (
	"context"
	"sync"
)

// Navigator implements ports.Navigator by recording full navigations.
type Navigator struct {
	mu       sync.Mutex
	assigned []string
	replaced []string
}

// NewNavigator creates a recording navigator.
func NewNavigator() *Navigator {
	return &Navigator{}
}

// Assign records a full navigation adding a history entry.
func (n *Navigator) Assign(ctx context.Context, href string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.assigned = append(n.assigned, href)
	return nil
}

// Replace records a full navigation replacing the history entry.
func (n *Navigator) Replace(ctx context.Context, href string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replaced = append(n.replaced, href)
	return nil
}

// Assigned returns the hrefs passed to Assign.
func (n *Navigator) Assigned() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.assigned...)
}

// Replaced returns the hrefs passed to Replace.
func (n *Navigator) Replaced() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.replaced...)
}
