package changes

import (
	"fmt"
	"strings"
)

// Diff renders the staged changes as a unified-style diff for presentation.
func (m *Manager) Diff() string {
	changeset := m.ChangeSet()
	if len(changeset) == 0 {
		return "No staged changes."
	}

	var b strings.Builder
	for i, change := range changeset {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch change.Type {
		case ChangeCreate:
			b.WriteString(unifiedDiff("/dev/null", change.Path, "", change.NewContent))
		case ChangeDelete:
			original := ""
			if change.OriginalContent != nil {
				original = *change.OriginalContent
			}
			b.WriteString(unifiedDiff(change.Path, "/dev/null", original, ""))
		case ChangeModify:
			original := ""
			if change.OriginalContent != nil {
				original = *change.OriginalContent
			}
			b.WriteString(unifiedDiff("a/"+change.Path, "b/"+change.Path, original, change.NewContent))
		}
	}
	return b.String()
}

// unifiedDiff produces a minimal unified diff between two texts. Hunks carry
// no context lines; this is a presentation aid, not a patch source.
func unifiedDiff(fromName, toName, fromText, toText string) string {
	fromLines := splitLines(fromText)
	toLines := splitLines(toText)

	ops := diffLines(fromLines, toLines)

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n", fromName)
	fmt.Fprintf(&b, "+++ %s\n", toName)

	i := 0
	for i < len(ops) {
		if ops[i].kind == opEqual {
			i++
			continue
		}
		// Collect one run of non-equal operations into a hunk.
		start := i
		for i < len(ops) && ops[i].kind != opEqual {
			i++
		}
		hunk := ops[start:i]

		fromStart, fromCount := hunkRange(hunk, opDelete)
		toStart, toCount := hunkRange(hunk, opInsert)
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", fromStart, fromCount, toStart, toCount)
		for _, op := range hunk {
			switch op.kind {
			case opDelete:
				b.WriteString("-" + op.text + "\n")
			case opInsert:
				b.WriteString("+" + op.text + "\n")
			}
		}
	}
	return b.String()
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type diffOp struct {
	kind     opKind
	text     string
	fromLine int // 1-based position in the from text (deletes/equals)
	toLine   int // 1-based position in the to text (inserts/equals)
}

// diffLines computes a line-level diff via longest common subsequence.
func diffLines(from, to []string) []diffOp {
	m, n := len(from), len(to)

	// lcs[i][j] = length of the LCS of from[i:] and to[j:].
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if from[i] == to[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var ops []diffOp
	i, j := 0, 0
	for i < m && j < n {
		switch {
		case from[i] == to[j]:
			ops = append(ops, diffOp{kind: opEqual, text: from[i], fromLine: i + 1, toLine: j + 1})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, diffOp{kind: opDelete, text: from[i], fromLine: i + 1})
			i++
		default:
			ops = append(ops, diffOp{kind: opInsert, text: to[j], toLine: j + 1})
			j++
		}
	}
	for ; i < m; i++ {
		ops = append(ops, diffOp{kind: opDelete, text: from[i], fromLine: i + 1})
	}
	for ; j < n; j++ {
		ops = append(ops, diffOp{kind: opInsert, text: to[j], toLine: j + 1})
	}
	return ops
}

func hunkRange(hunk []diffOp, kind opKind) (start, count int) {
	for _, op := range hunk {
		if op.kind != kind {
			continue
		}
		if count == 0 {
			if kind == opDelete {
				start = op.fromLine
			} else {
				start = op.toLine
			}
		}
		count++
	}
	if count == 0 {
		// Empty side of the hunk; anchor at the other side's start.
		for _, op := range hunk {
			if kind == opDelete {
				start = op.toLine
			} else {
				start = op.fromLine
			}
			break
		}
	}
	return start, count
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	// A trailing newline yields an empty final element; drop it so line
	// counts match what a reader expects.
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
