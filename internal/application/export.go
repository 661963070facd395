package application

import (
	"fmt"
	"strings"

	"voznote/internal/domain"
)

const exportWidth = 80

// ExportText lays a note out as a printable page: title, a date and duration
// line, a rule, then the word-wrapped summary.
func ExportText(n domain.Note) string {
	var b strings.Builder
	b.WriteString(n.Title)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Data: %s | Duração: %s\n", n.Date, n.DurationFormatted)
	b.WriteString(strings.Repeat("-", exportWidth))
	b.WriteString("\n\nResumo Executivo\n\n")
	for _, line := range WrapText(n.Summary, exportWidth) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// WrapText splits text into lines no wider than width, keeping paragraph
// breaks. Words longer than width get a line of their own.
func WrapText(text string, width int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len([]rune(line))+1+len([]rune(w)) > width {
				lines = append(lines, line)
				line = w
				continue
			}
			line += " " + w
		}
		lines = append(lines, line)
	}
	return lines
}
