// Package events holds the routing keys shared by the users and orders services.
package events

// DefaultExchange is the topic exchange both services publish to.
const DefaultExchange = "app.topic"

// RoutingKey labels a message published to the topic exchange.
type RoutingKey string

const (
	UserCreated    RoutingKey = "user.created"
	UserUpdated    RoutingKey = "user.updated"
	OrderCreated   RoutingKey = "order.created"
	OrderCancelled RoutingKey = "order.cancelled"
)

func (k RoutingKey) String() string {
	return string(k)
}

// IsUserLifecycle reports whether messages with this key carry a full user record.
func (k RoutingKey) IsUserLifecycle() bool {
	return k == UserCreated || k == UserUpdated
}

// ParseRoutingKeys converts configured strings into routing keys, skipping empty entries.
func ParseRoutingKeys(keys []string) []RoutingKey {
	result := make([]RoutingKey, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		result = append(result, RoutingKey(k))
	}

	return result
}
