package orders

const (
	TopicOrderPlaced         = "order.placed"
	TopicSubOrderCreated     = "order.suborder.created"
	TopicSubOrderFailed      = "order.suborder.failed"
	TopicOrderStatusChanged  = "order.status.changed"
	TopicSellerNotifications = "seller.notifications"
)

// TopicFor maps an event type to its topic. Status changes of aggregates and sub-orders
// share one topic so a consumer sees them in order.
func TopicFor(eventType string) string {
	switch eventType {
	case EventOrderPlaced:
		return TopicOrderPlaced
	case EventSubOrderCreated:
		return TopicSubOrderCreated
	case EventSubOrderFailed:
		return TopicSubOrderFailed
	case EventOrderStatusChanged, EventSubOrderStatusChanged:
		return TopicOrderStatusChanged
	case EventSellerNewOrder:
		return TopicSellerNotifications
	}
	return ""
}

// Partition key = aggregate order id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
