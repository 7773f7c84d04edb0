package chats

import "strings"

// MergeContinuation splices a generated continuation onto an existing
// assistant message. Models often restate part of the original text: an
// addition already contained in the base (case-insensitive) is a no-op, and
// the longest suffix of the base that matches a prefix of the addition is
// trimmed off before joining.
func MergeContinuation(base, addition string) string {
	if strings.TrimSpace(addition) == "" {
		return base
	}

	baseTrimmed := strings.TrimRight(base, " \t\n\r")
	additionTrimmed := strings.TrimSpace(addition)
	if baseTrimmed == "" {
		return additionTrimmed
	}

	baseLower := strings.ToLower(baseTrimmed)
	additionLower := strings.ToLower(additionTrimmed)

	if strings.Contains(baseLower, additionLower) {
		return base
	}

	maxOverlap := len(baseTrimmed)
	if len(additionTrimmed) < maxOverlap {
		maxOverlap = len(additionTrimmed)
	}
	for size := maxOverlap; size > 0; size-- {
		if strings.HasSuffix(baseLower, additionLower[:size]) {
			additionTrimmed = strings.TrimLeft(additionTrimmed[size:], " \t\n\r")
			break
		}
	}
	if additionTrimmed == "" {
		return base
	}

	separator := " "
	if strings.HasSuffix(base, " ") || strings.HasSuffix(base, "\n") || strings.HasSuffix(base, "\t") {
		separator = ""
	}
	return base + separator + additionTrimmed
}
