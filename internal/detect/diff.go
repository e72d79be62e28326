package detect

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultMaxSectionLines caps how many lines one new-code section may carry
// before it is truncated.
const DefaultMaxSectionLines = 10

// sectionContextLines is the number of unchanged lines carried around a hunk.
const sectionContextLines = 2

type lineOp int

const (
	opEqual lineOp = iota
	opAdded
	opRemoved
)

type diffLine struct {
	op   lineOp
	text string
}

// Section is one contiguous run of changed lines, with up to two lines of
// unchanged context on either side.
type Section struct {
	StartLine int      `json:"start_line"`
	Lines     []string `json:"lines"`
	Added     int      `json:"added"`
	Removed   int      `json:"removed"`
	Truncated bool     `json:"truncated,omitempty"`
}

// DiffStats summarizes one line diff.
type DiffStats struct {
	AddedLines   int `json:"added_lines"`
	RemovedLines int `json:"removed_lines"`
	TotalLines   int `json:"total_lines"`
	FileSize     int `json:"file_size"`
}

// diffLines produces a per-line edit script between old and new content using
// line-mode diff.
func diffLines(oldText, newText string) []diffLine {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var lines []diffLine
	for _, d := range diffs {
		var op lineOp
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = opAdded
		case diffmatchpatch.DiffDelete:
			op = opRemoved
		default:
			op = opEqual
		}
		for _, text := range splitDiffText(d.Text) {
			lines = append(lines, diffLine{op: op, text: text})
		}
	}
	return lines
}

func splitDiffText(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// partitionSections walks the edit script and groups changed lines into
// contiguous sections. A section opens at the first added/removed line,
// carries at most sectionContextLines unchanged lines on each side, and is
// capped at maxLines with a truncation flag.
func partitionSections(lines []diffLine, maxLines int) ([]Section, DiffStats) {
	if maxLines <= 0 {
		maxLines = DefaultMaxSectionLines
	}

	var stats DiffStats
	var sections []Section

	var current *Section
	var pendingContext []string
	trailingContext := 0
	lineNo := 0

	closeSection := func() {
		if current != nil {
			sections = append(sections, *current)
			current = nil
		}
		trailingContext = 0
	}

	appendLine := func(text string) {
		if len(current.Lines) >= maxLines {
			current.Truncated = true
			return
		}
		current.Lines = append(current.Lines, text)
	}

	for _, l := range lines {
		if l.op != opRemoved {
			lineNo++
		}
		stats.TotalLines++

		switch l.op {
		case opEqual:
			if current != nil {
				trailingContext++
				if trailingContext > sectionContextLines {
					closeSection()
					pendingContext = []string{" " + l.text}
					continue
				}
				appendLine(" " + l.text)
				continue
			}
			pendingContext = append(pendingContext, " "+l.text)
			if len(pendingContext) > sectionContextLines {
				pendingContext = pendingContext[len(pendingContext)-sectionContextLines:]
			}
		case opAdded, opRemoved:
			if l.op == opAdded {
				stats.AddedLines++
			} else {
				stats.RemovedLines++
			}
			if current == nil {
				current = &Section{StartLine: lineNo - len(pendingContext)}
				if current.StartLine < 1 {
					current.StartLine = 1
				}
				for _, ctx := range pendingContext {
					appendLine(ctx)
				}
				pendingContext = nil
			}
			trailingContext = 0
			marker := "+"
			if l.op == opRemoved {
				marker = "-"
			}
			appendLine(marker + l.text)
			if l.op == opAdded {
				current.Added++
			} else {
				current.Removed++
			}
		}
	}
	closeSection()

	return sections, stats
}
