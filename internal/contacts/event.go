package contacts

// ChangeType tags a change notification variant. The values double as the
// wire event names delivered to stream subscribers.
type ChangeType string

const (
	ChangeCreated ChangeType = "contactCreated"
	ChangeUpdated ChangeType = "contactUpdated"
	ChangeDeleted ChangeType = "contactDeleted"
)

// ChangeNotification describes one committed mutation. It exists only on
// the wire between the broadcaster and connected sessions and is never
// persisted. Created and Updated carry the canonical post-commit record;
// Deleted carries the removed id plus the last-known snapshot so receivers
// can describe what vanished without another fetch.
type ChangeNotification struct {
	Type      ChangeType
	Contact   *Contact
	DeletedID int64
}

// Notifier receives notifications for committed mutations. Publish must
// never block the mutation path.
type Notifier interface {
	Publish(notification ChangeNotification)
}
