package telegram

import "strings"

// sendTextLimit stays under Telegram's 4096-character message cap with room
// for entity expansion.
const sendTextLimit = 4000

// splitText breaks long messages into chunks that are safe to send. It
// prefers newline boundaries and, for HTML parse mode, avoids cutting inside
// a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = sendTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	html := strings.EqualFold(parseMode, "HTML")
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		if end < len(rs) {
			// Look for a newline near the end of the window, but never
			// produce tiny chunks.
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if html && end < len(rs) {
			if cut := danglingTag(rs, start, end); cut > start+1 {
				end = cut
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// danglingTag returns the index of a '<' opened but not closed before end,
// or -1 when the window ends outside any tag.
func danglingTag(rs []rune, start, end int) int {
	lastOpen, lastClose := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			lastOpen = i
		case '>':
			lastClose = i
		}
	}
	if lastOpen > lastClose {
		return lastOpen
	}
	return -1
}
