/*
Package observability provides lifecycle hooks for monitoring the Pageflow engine.

It includes Prometheus metrics for stages, merges and failures, structured
logging hooks, a trace recorder for replaying a navigation, and Combine for
fanning one engine's hooks out to several consumers.
*/
package observability
