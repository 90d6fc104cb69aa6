// Package speech turns voice-assistant speech output into text for chat and
// tweet replies.
package speech

import "strings"

// IsSSML reports whether s is wrapped in a <speak> element.
func IsSSML(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "<speak")
}

// Extract returns the text of a speech output with its markup removed. Text
// that is not SSML is returned unchanged. Text between tags is kept in order.
// When audio is set, an <audio src="..."/> tag is replaced by audio(src);
// otherwise audio tags are dropped like any other tag.
func Extract(s string, audio func(src string) string) string {
	if !IsSSML(s) {
		return s
	}
	return strings.TrimSpace(stripMarkup(strings.TrimSpace(s), audio))
}

// Plain is Extract without audio links and with runs of whitespace left by
// removed tags collapsed to one space.
func Plain(s string) string {
	if !IsSSML(s) {
		return s
	}
	return strings.Join(strings.Fields(Extract(s, nil)), " ")
}

func stripMarkup(s string, audio func(string) string) string {
	start := strings.IndexByte(s, '<')
	if start == -1 {
		return s
	}
	end := strings.IndexByte(s[start:], '>')
	if end == -1 {
		return s
	}
	end += start

	tag := s[start+1 : end]
	var replacement string
	if audio != nil && isAudioTag(tag) {
		if src := attr(tag, "src"); src != "" {
			replacement = audio(src)
		}
	}
	return s[:start] + replacement + stripMarkup(s[end+1:], audio)
}

func isAudioTag(tag string) bool {
	name := strings.TrimSpace(tag)
	if len(name) < len("audio") || !strings.EqualFold(name[:len("audio")], "audio") {
		return false
	}
	rest := name[len("audio"):]
	return rest == "" || isSpace(rest[0]) || rest[0] == '/'
}

// attr reads an attribute value out of a tag body. The name must start the
// body or follow whitespace, so src does not match data-src.
func attr(tag, name string) string {
	lower := strings.ToLower(tag)
	key := name + "="
	for from := 0; from < len(lower); {
		i := strings.Index(lower[from:], key)
		if i == -1 {
			return ""
		}
		i += from
		if i == 0 || isSpace(lower[i-1]) {
			return attrValue(tag[i+len(key):])
		}
		from = i + len(key)
	}
	return ""
}

func attrValue(rest string) string {
	if rest == "" {
		return ""
	}
	quote := rest[0]
	if quote != '"' && quote != '\'' {
		if sp := strings.IndexAny(rest, " \t\n"); sp != -1 {
			rest = rest[:sp]
		}
		// A self-closing tag can end right after the value.
		return strings.TrimSuffix(rest, "/")
	}
	closing := strings.IndexByte(rest[1:], quote)
	if closing == -1 {
		return ""
	}
	return rest[1 : closing+1]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
