package prompt

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/varsilias/mpt-chat/pkg/types"
)

const (
	// DefaultCeiling is the largest prompt, in characters, sent to the endpoint.
	DefaultCeiling = 4500
	// DefaultSkipOffset puts the truncation search past the default system block.
	DefaultSkipOffset = 139
)

var (
	ErrEmptyHistory   = errors.New("history is empty")
	ErrTurnNotPending = errors.New("last turn already has a reply")
)

// Assembler renders a system prompt and a history into a single prompt string.
// The zero value is not usable; use NewAssembler.
type Assembler struct {
	System    Template
	User      Template
	Assistant Template

	// Ceiling and SkipOffset count characters (code points), not bytes.
	Ceiling    int
	SkipOffset int
}

func NewAssembler() *Assembler {
	return &Assembler{
		System:     SystemTemplate,
		User:       UserTemplate,
		Assistant:  AssistantTemplate,
		Ceiling:    DefaultCeiling,
		SkipOffset: DefaultSkipOffset,
	}
}

// Assemble formats history for the endpoint. Every turn but the last is
// rendered in full; the last one must still be pending and is followed by
// the assistant prefix. The result never exceeds the ceiling.
func (a *Assembler) Assemble(system string, history types.History) (string, error) {
	last, ok := history.Last()
	if !ok {
		return "", ErrEmptyHistory
	}
	if !last.Pending() {
		return "", ErrTurnNotPending
	}

	var b strings.Builder
	b.WriteString(a.System.Render(system))
	for _, t := range history[:len(history)-1] {
		b.WriteString(a.User.Render(t.User))
		b.WriteString(a.Assistant.Render(t.Assistant))
	}
	tail := a.User.Render(last.User) + a.Assistant.Prefix()

	return a.truncate(b.String(), tail), nil
}

// truncate drops whole blocks from head, from SkipOffset onwards, one at a time
// until head+tail fits. tail, the pending turn, is never dropped here. If
// that is not enough, only the last Ceiling characters are kept.
func (a *Assembler) truncate(head, tail string) string {
	tailLen := utf8.RuneCountInString(tail)
	fits := func() bool { return utf8.RuneCountInString(head)+tailLen <= a.Ceiling }
	if fits() {
		return head + tail
	}

	// Both searches start at the offset; each step then moves end to the
	// next end marker past start and deletes one span.
	offset := byteOffset(head, a.SkipOffset)
	start := indexFrom(head, StartMarker, offset)
	end := indexFrom(head, EndMarker, offset)
	for start >= 0 && end >= 0 && !fits() {
		end = indexFrom(head, EndMarker, max(end+1, start))
		if end < 0 {
			break
		}
		cut := end + len(EndMarker)
		if cut < len(head) && head[cut] == '\n' {
			cut++
		}
		head = head[:start] + head[cut:]
		end = start
	}

	text := head + tail
	if utf8.RuneCountInString(text) > a.Ceiling {
		// Lossy: may cut through a role block or a marker.
		text = lastRunes(text, a.Ceiling)
	}
	return text
}

// indexFrom is strings.Index starting at byte offset from; -1 if absent.
func indexFrom(s, substr string, from int) int {
	if from < 0 || from > len(s) {
		return -1
	}
	i := strings.Index(s[from:], substr)
	if i < 0 {
		return -1
	}
	return from + i
}

// byteOffset converts a character offset into a byte offset of s.
func byteOffset(s string, chars int) int {
	if chars <= 0 {
		return 0
	}
	n := 0
	for i := range s {
		if n == chars {
			return i
		}
		n++
	}
	return len(s)
}

func lastRunes(s string, n int) string {
	total := utf8.RuneCountInString(s)
	if total <= n {
		return s
	}
	return s[byteOffset(s, total-n):]
}
