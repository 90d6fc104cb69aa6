package twitterbot

import "strings"

// CleanMessage strips every @name mention from a tweet. A mention runs from
// the '@' through the next space; a mention at the end of the text runs to
// the end.
func CleanMessage(text string) string {
	for {
		at := strings.IndexByte(text, '@')
		if at == -1 {
			return strings.TrimSpace(text)
		}
		end := strings.IndexByte(text[at:], ' ')
		if end == -1 {
			text = text[:at]
			continue
		}
		text = text[:at] + text[at+end+1:]
	}
}

// Mentions reports whether text addresses the handle. The match is case
// insensitive, like Twitter's own mention handling.
func Mentions(text, handle string) bool {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), "@"+strings.ToLower(handle))
}
