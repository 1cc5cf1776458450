package push

import "strings"

// IsValidToken reports whether token looks like an Expo push token,
// e.g. ExponentPushToken[xxxxxxxx].
func IsValidToken(token string) bool {
	for _, prefix := range []string{"ExponentPushToken[", "ExpoPushToken["} {
		if strings.HasPrefix(token, prefix) && strings.HasSuffix(token, "]") {
			return len(token) > len(prefix)+1
		}
	}
	return false
}

// Chunk splits msgs into consecutive batches of at most size.
func Chunk(msgs []Message, size int) [][]Message {
	if size <= 0 || size > MaxBatch {
		size = MaxBatch
	}
	chunks := make([][]Message, 0, (len(msgs)+size-1)/size)
	for start := 0; start < len(msgs); start += size {
		end := start + size
		if end > len(msgs) {
			end = len(msgs)
		}
		chunks = append(chunks, msgs[start:end])
	}
	return chunks
}
