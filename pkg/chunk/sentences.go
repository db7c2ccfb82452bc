package chunk

import "strings"

// span is a half-open [Start, End) byte range into the original document
// text. Keeping sentences as spans rather than strings preserves the
// character offsets needed for entity tagging and page mapping.
type span struct {
	Start int
	End   int
}

func isSpaceByte(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDigitByte(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// listMarkerDot reports whether the '.' at text[i] closes a numeric listing
// marker ("1. First item"). The digit run must sit at the start of the text
// or of a line; a number ending mid-sentence ("p = 0.05.") terminates the
// sentence like any other period.
func listMarkerDot(text string, i int) bool {
	j := i
	for j > 0 && isDigitByte(text[j-1]) {
		j--
	}
	if j == i {
		return false
	}
	for j > 0 && (text[j-1] == ' ' || text[j-1] == '\t') {
		j--
	}
	return j == 0 || text[j-1] == '\n'
}

// sentenceSpans splits text into sentence spans. A sentence ends at terminal
// punctuation ('.', '!', '?') including any run of closers behind it, or at a
// blank line (paragraph breaks in extracted PDF text are reliable separators
// even without punctuation). Numeric listing markers ("1. First item") do not
// end a sentence.
func sentenceSpans(text string) []span {
	var spans []span
	n := len(text)
	start := -1

	emit := func(end int) {
		for start >= 0 && end > start && isSpaceByte(text[end-1]) {
			end--
		}
		if start >= 0 && end > start {
			spans = append(spans, span{Start: start, End: end})
		}
		start = -1
	}

	i := 0
	for i < n {
		ch := text[i]

		if start < 0 {
			if isSpaceByte(ch) {
				i++
				continue
			}
			start = i
		}

		switch ch {
		case '\n':
			j := i + 1
			for j < n && (text[j] == ' ' || text[j] == '\t' || text[j] == '\r') {
				j++
			}
			if j < n && text[j] == '\n' {
				emit(i)
				i = j + 1
				continue
			}
		case '.', '!', '?':
			if ch == '.' && i > 0 && isDigitByte(text[i-1]) && i+1 < n && isDigitByte(text[i+1]) {
				// decimal point
				break
			}
			if ch == '.' && i+1 < n && text[i+1] == ' ' && listMarkerDot(text, i) {
				// numeric listing marker, keep going
				break
			}
			j := i + 1
			for j < n && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
				j++
			}
			for j < n && (text[j] == '"' || text[j] == '\'' || text[j] == ')' ||
				text[j] == ']' || text[j] == '}') {
				j++
			}
			emit(j)
			i = j
			continue
		}
		i++
	}
	emit(n)

	return spans
}

// splitIntoSentences returns the sentences of text with internal whitespace
// collapsed. Convenience wrapper over sentenceSpans.
func splitIntoSentences(text string) []string {
	spans := sentenceSpans(text)
	if len(spans) == 0 {
		return nil
	}
	sentences := make([]string, 0, len(spans))
	for _, sp := range spans {
		sentences = append(sentences, strings.Join(strings.Fields(text[sp.Start:sp.End]), " "))
	}
	return sentences
}
