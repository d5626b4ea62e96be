package domain

import "time"

// EventType identifies a change to the index catalog
type EventType string

const (
	EventResourceIndexed   EventType = "resource.indexed"
	EventResourceUnindexed EventType = "resource.unindexed"
	EventIndexRegistered   EventType = "index.registered"
	EventIndexRemoved      EventType = "index.removed"
	EventIndexFlushed      EventType = "index.flushed"
	EventIndexReindexed    EventType = "index.reindexed"
)

// IndexEvent is published whenever indexed state changes
type IndexEvent struct {
	Type           EventType `json:"type"`
	PackageID      string    `json:"package_id"`
	ResourceTypeID string    `json:"resourcetype_id"`
	ResourceName   string    `json:"resource_name,omitempty"`
	DocumentID     int64     `json:"document_id,omitempty"`
	IndexID        int64     `json:"index_id,omitempty"`
	Elements       int       `json:"elements,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewIndexEvent creates an event stamped with the current time
func NewIndexEvent(t EventType, packageID, resourceTypeID string) IndexEvent {
	return IndexEvent{
		Type:           t,
		PackageID:      packageID,
		ResourceTypeID: resourceTypeID,
		OccurredAt:     time.Now().UTC(),
	}
}

// Key is the partition key: events of one resource type stay ordered
func (e IndexEvent) Key() string {
	return "/" + e.PackageID + "/" + e.ResourceTypeID
}
