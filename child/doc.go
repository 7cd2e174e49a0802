// Package child tracks the pending create, update and remove operations of
// sub-resources that only exist inside a parent resource, such as the webhooks
// of a container registry, and flushes them together with or right after the
// parent's own commit.
//
// State machine per child:
//
//	(absent)     -- Define -> ToBeCreated -- Flush ok -> None (materialized)
//	None         -- Update -> ToBeUpdated -- Flush ok -> None
//	None         -- Remove -> ToBeRemoved -- Flush ok -> (absent)
//	ToBeCreated  -- Remove -> (absent), no call is ever issued
package child
