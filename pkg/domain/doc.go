/*
Package domain contains the core vocabulary of the Pageflow navigation engine.

It defines the lifecycle stages a navigation goes through, the structured
location a navigation targets, the entry persisted to history storage and
the observability hooks. This package is kept free of I/O and of any
document-tree dependency.

# Key Entities

  - Stage: one named phase of the navigation lifecycle (init, ready, build, patch, setup, hash, error, close).
  - Location: the structured URL of a navigation (protocol, hostname, port, pathname, query, hash).
  - Entry: the shape persisted into history storage ({href, data, stage}).
  - LifecycleHooks: callbacks fired around stages, merges and run failures.
*/
package domain
