package redisx

import "fmt"

const ns = "parkd:v1"

func KeyAreaAvailability(areaID int64) string {
	return fmt.Sprintf("%s:area:%d:availability", ns, areaID)
}

func KeyAreaSlotMap(areaID int64) string {
	return fmt.Sprintf("%s:area:%d:slotmap", ns, areaID)
}

func KeyIdemEntry(areaID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:entry:%d:%s", ns, areaID, idemKey)
}

// KeyRateLimit is a limiter prefix; the limiter appends the caller key.
func KeyRateLimit(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func ChannelAreasChanged() string {
	return ns + ":areas:changed"
}
