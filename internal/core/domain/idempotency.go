package domain

// BuildIdempotencyKey constructs the cache key for a transfer token.
func BuildIdempotencyKey(token string) string {
	return "transfer:" + token
}
