package router

// DefaultMaxMessageLength is the platform's limit on characters per message.
const DefaultMaxMessageLength = 2000

// SplitMessage cuts text into consecutive parts of at most limit characters.
// Characters are Unicode code points, so multi-byte text is never split
// inside a character. Concatenating the parts yields text; empty text yields
// no parts.
func SplitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultMaxMessageLength
	}

	runes := []rune(text)
	parts := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
