// Package middleware decorates ports.HistoryStore implementations with
// behavior applied to entry data on its way to and from storage.
package middleware

import "github.com/aretw0/pageflow/pkg/ports"

// Middleware allows wrapping a HistoryStore to add behavior.
type Middleware func(ports.HistoryStore) ports.HistoryStore

// Chain applies mws so that the first one is the outermost wrapper.
func Chain(store ports.HistoryStore, mws ...Middleware) ports.HistoryStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
