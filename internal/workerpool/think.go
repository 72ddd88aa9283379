package workerpool

import "strings"

// StripThinking removes every <think>...</think> and self-closing <think/>
// (or <think />) block from text, then trims leading/trailing ASCII
// whitespace. Tag matching on the literal "think" is
// case-insensitive; tags with extra letters (<thinking>, <thin>) are left
// untouched. An opening tag with no matching close strips the remainder of
// the string. Returns the stripped text and whether it is empty, so the
// caller can substitute a fallback reply.
func StripThinking(text string) (result string, empty bool) {
	var b strings.Builder
	b.Grow(len(text))

	i := 0
	for i < len(text) {
		openEnd, selfClosing, ok := matchThinkOpen(text, i)
		if !ok {
			b.WriteByte(text[i])
			i++
			continue
		}
		if selfClosing {
			i = openEnd
			continue
		}
		closeStart := indexCloseTag(text, openEnd)
		if closeStart < 0 {
			// No matching close: the remainder is stripped.
			i = len(text)
			break
		}
		i = closeStart
	}

	result = strings.TrimFunc(b.String(), isASCIISpace)
	return result, result == ""
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// matchThinkOpen checks whether text[i:] begins with "<think" followed by a
// valid terminator. Returns the index just past the tag, whether it was
// self-closing, and whether a think-tag matched at all.
func matchThinkOpen(text string, i int) (end int, selfClosing bool, ok bool) {
	const lead = "<think"
	if i+len(lead) > len(text) || !strings.EqualFold(text[i:i+len(lead)], lead) {
		return 0, false, false
	}
	j := i + len(lead)

	// Self-closing: optional whitespace then "/>".
	k := j
	for k < len(text) && isASCIISpace(rune(text[k])) {
		k++
	}
	if k < len(text) && text[k] == '/' {
		if k+1 < len(text) && text[k+1] == '>' {
			return k + 2, true, true
		}
		return 0, false, false
	}

	// Plain opening tag: next byte must be '>' (letters beyond "think"
	// disqualify it, e.g. <thinking>).
	if j < len(text) && text[j] == '>' {
		return j + 1, false, true
	}
	return 0, false, false
}

// indexCloseTag finds "</think>" (case-insensitive) at or after from,
// returning the index just past it, or -1 if absent.
func indexCloseTag(text string, from int) int {
	// ToLower can change byte lengths, so fold per window instead.
	const closeTag = "</think>"
	for i := from; i+len(closeTag) <= len(text); i++ {
		if strings.EqualFold(text[i:i+len(closeTag)], closeTag) {
			return i + len(closeTag)
		}
	}
	return -1
}
