package redis

import "fmt"

const ns = "mintgate:v1"

func KeyEventAvailability(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:availability", ns, eventID)
}

func KeyIdemOrder(eventID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:orders:%d:%s", ns, eventID, idemKey)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelSettlements() string {
	return ns + ":settlements"
}
