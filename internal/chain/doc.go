/*
Package chain implements per-stage listener dispatch for navigation states.

An Emitter holds ordered listener registrations per stage. Chains keeps
one completion record per stage: firing a stage runs every registered
listener serially, then the deferred work registered with Finish, and only
then reports the stage as complete. A listener registered after its stage
already fired is replayed immediately instead of waiting for a future
firing.

Listener failures are isolated: they are logged and reported through the
error callback but never abort sibling listeners nor the firing itself.
*/
package chain
