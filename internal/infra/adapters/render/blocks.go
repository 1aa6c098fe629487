// Package render lays generated document text out as PDF or DOCX files.
package render

import (
	"regexp"
	"strings"
)

type blockKind int

const (
	blockHeading blockKind = iota
	blockBullet
	blockParagraph
)

type block struct {
	kind blockKind
	text string
}

var numberedHeading = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\S`)

// parseBlocks splits model output into headings, bullets and paragraphs. Markdown
// emphasis markers are stripped; consecutive text lines are joined into one paragraph.
func parseBlocks(body string) []block {
	var (
		out  []block
		para []string
	)
	flush := func() {
		if len(para) > 0 {
			out = append(out, block{kind: blockParagraph, text: strings.Join(para, " ")})
			para = nil
		}
	}
	for _, raw := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "#"):
			flush()
			out = append(out, block{kind: blockHeading, text: clean(strings.TrimLeft(line, "# "))})
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "), strings.HasPrefix(line, "• "):
			flush()
			out = append(out, block{kind: blockBullet, text: clean(strings.TrimSpace(line[strings.Index(line, " ")+1:]))})
		case isHeadingLine(line):
			flush()
			out = append(out, block{kind: blockHeading, text: clean(line)})
		default:
			para = append(para, clean(line))
		}
	}
	flush()
	return out
}

func isHeadingLine(line string) bool {
	if strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**") && len(line) > 4 {
		return true
	}
	return len(line) <= 80 && numberedHeading.MatchString(line) && !strings.HasSuffix(line, ".")
}

func clean(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.TrimSpace(s)
}

// businessLines is the details block printed under the title.
func businessLines(in renderHeader) []string {
	var out []string
	add := func(label, v string) {
		if strings.TrimSpace(v) != "" {
			out = append(out, label+": "+v)
		}
	}
	add("Business", in.business)
	add("ABN", in.abn)
	add("State", in.state)
	add("Industry", in.industry)
	return out
}

type renderHeader struct {
	business, abn, state, industry string
}
