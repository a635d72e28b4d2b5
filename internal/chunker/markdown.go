package chunker

import (
	"regexp"
	"strings"
)

var mdHeadingRe = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+?)\s*$`)

// splitMarkdown implements spec.md §4.5's markdown strategy: first split at
// configured header levels, then apply the recursive strategy within each
// section. Generalized from internal/textsplitters/markdown.go's
// heading-segment-then-group shape.
func splitMarkdown(text string, opt Options, tok tokenizer) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	idxs := mdHeadingRe.FindAllStringSubmatchIndex(text, -1)
	if len(idxs) == 0 {
		pieces := splitRecursive(text, opt.MaxSize, separatorsOrDefault(opt.Separators), tok)
		return applyOverlap(pieces, opt.Overlap, tok)
	}

	want := map[string]bool{}
	for _, h := range opt.MarkdownHeaders {
		want[h] = true
	}

	type section struct {
		heading string
		body    string
	}
	var sections []section
	for i := range idxs {
		start := idxs[i][0]
		end := len(text)
		if i+1 < len(idxs) {
			end = idxs[i+1][0]
		}
		line := text[start:idxs[i][1]]
		body := strings.TrimSpace(text[idxs[i][1]:end])
		if len(want) > 0 {
			m := mdHeadingRe.FindStringSubmatch(line)
			if len(m) >= 2 && !want[m[1]] {
				if len(sections) > 0 {
					sections[len(sections)-1].body += "\n" + line + "\n" + body
					continue
				}
			}
		}
		sections = append(sections, section{heading: strings.TrimSpace(line), body: body})
	}

	var out []string
	for _, s := range sections {
		if s.heading != "" {
			out = append(out, s.heading)
		}
		body := splitRecursive(s.body, opt.MaxSize, separatorsOrDefault(opt.Separators), tok)
		out = append(out, applyOverlap(body, opt.Overlap, tok)...)
	}
	return out
}
