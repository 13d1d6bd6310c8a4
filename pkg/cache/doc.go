// Package cache provides a small generic LRU cache with optional per-entry
// expiry. It fronts slow lookups such as the account directory queried for
// notification recipients:
//
//	emails := cache.NewLRU[uuid.UUID, string](1024, cache.WithTTL(10*time.Minute))
//	if addr, ok := emails.Get(userID); ok {
//		return addr, nil
//	}
package cache
