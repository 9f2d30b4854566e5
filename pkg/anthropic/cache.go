package anthropic

// CachedSystem builds a single system block with an ephemeral cache
// breakpoint. The CAD API reference is identical across requests, so it is
// sent this way to hit the prompt cache on retries.
func CachedSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "5m"}}}
}
