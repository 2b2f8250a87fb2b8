package driven

// Cache stores serialized values with a TTL.
type Cache interface {
	// GetJSON decodes the value under key into v. Returns false on a miss.
	GetJSON(key string, v any) (bool, error)

	// SetJSON encodes v and stores it under key.
	SetJSON(key string, v any) error

	// Purge removes every entry.
	Purge()
}
