package chunker

import "strings"

// splitRecursive implements spec.md §4.5's recursive strategy: split on a
// ranked list of separators until each piece is <= maxSize tokens,
// generalized from internal/textsplitters/recursive.go's separator-ranked
// approach.
func splitRecursive(text string, maxSize int, separators []string, tok tokenizer) []string {
	if tok.Count(text) <= maxSize || len(separators) == 0 {
		return []string{text}
	}
	sep := separators[0]
	rest := separators[1:]

	var parts []string
	if sep == "" {
		parts = splitByTokenBudget(text, maxSize, tok)
	} else {
		parts = strings.Split(text, sep)
	}

	var out []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for i, p := range parts {
		candidate := buf.String()
		if candidate != "" {
			candidate += sep
		}
		candidate += p
		if tok.Count(candidate) > maxSize && buf.Len() > 0 {
			flush()
			candidate = p
		}
		buf.Reset()
		buf.WriteString(candidate)
		if i == len(parts)-1 {
			flush()
		}
	}
	flush()

	// Any piece still over budget gets recursively split with the next
	// separator in the ranked list.
	var final []string
	for _, piece := range out {
		if tok.Count(piece) > maxSize && len(rest) > 0 {
			final = append(final, splitRecursive(piece, maxSize, rest, tok)...)
		} else {
			final = append(final, piece)
		}
	}
	return final
}

// splitByTokenBudget is the character-level base case (separator == "").
func splitByTokenBudget(text string, maxSize int, tok tokenizer) []string {
	var out []string
	remaining := text
	for remaining != "" {
		head, rest := tok.Take(remaining, maxSize)
		if head == "" {
			break
		}
		out = append(out, head)
		remaining = rest
	}
	return out
}

// applyOverlap prepends the trailing `overlap` tokens of each piece to the
// next piece, so adjacent chunks share context per spec.md §4.5.
func applyOverlap(pieces []string, overlap int, tok tokenizer) []string {
	if overlap <= 0 || len(pieces) < 2 {
		return pieces
	}
	out := make([]string, len(pieces))
	out[0] = pieces[0]
	for i := 1; i < len(pieces); i++ {
		tail := trailingTokens(pieces[i-1], overlap, tok)
		if tail == "" {
			out[i] = pieces[i]
			continue
		}
		out[i] = tail + " " + pieces[i]
	}
	return out
}

// trailingTokens returns the suffix of s comprising at most n tokens.
func trailingTokens(s string, n int, tok tokenizer) string {
	total := tok.Count(s)
	if total <= n {
		return s
	}
	head, rest := tok.Take(s, total-n)
	if head == "" {
		return rest
	}
	return rest
}
