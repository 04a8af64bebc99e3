package redis

// Key prefixes for primary entity storage.
const (
	prefixSubscriber = "courier:sub:"
	prefixDelivery   = "courier:del:"
)

// Key suffixes for per-subscriber quota bookkeeping. The usage counter and
// reset boundary live outside the entity JSON so Lua can mutate them
// atomically without re-encoding the subscriber.
const (
	suffixUsage   = ":usage"
	suffixResetAt = ":reset_at"
)

// Sorted set indexes.
const (
	zSubscriberAll  = "courier:z:sub:all"
	zSubscriberForm = "courier:z:sub:form:" // + form ID

	zDeliveryAll     = "courier:z:del:all"     // scored by created_at
	zDeliveryDue     = "courier:z:del:due"     // scored by next_attempt_at
	zDeliveryRetry   = "courier:z:del:retry"   // failed with a due retry time
	zDeliveryClaimed = "courier:z:del:claimed" // in_progress, scored by claim time
	zDeliverySub     = "courier:z:del:sub:"    // + subscriber ID, scored by created_at
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// usageKey returns the quota counter key for a subscriber.
func usageKey(subID string) string {
	return prefixSubscriber + subID + suffixUsage
}

// resetAtKey returns the quota reset boundary key for a subscriber.
func resetAtKey(subID string) string {
	return prefixSubscriber + subID + suffixResetAt
}
