// Package verification implements the one-time-passcode entry unit shared by
// the email-verification, password-reset and login step-up screens: the digit
// buffer with focus advancement, the resend cooldown and the session state
// machine that drives the external verify/resend operations.
package verification

import "github.com/pkg/errors"

// DefaultCodeLength is the number of digit cells in all current flows.
const DefaultCodeLength = 6

// NoFocus marks a Directive that does not move focus.
const NoFocus = -1

// Directive tells the owning screen where to move input focus after a buffer
// mutation. It is a UI side effect, not buffer state.
type Directive struct {
	Focus int
}

func (d Directive) HasFocus() bool { return d.Focus != NoFocus }

var noFocus = Directive{Focus: NoFocus}

var ErrCellOutOfRange = errors.New("otp cell index out of range")

// Buffer holds the N single-digit entry cells of a verification screen.
// A zero rune marks an empty cell.
type Buffer struct {
	cells []rune
}

func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultCodeLength
	}
	return &Buffer{cells: make([]rune, size)}
}

func (b *Buffer) Size() int { return len(b.cells) }

// Cell returns the digit at index i, or "" when the cell is empty.
func (b *Buffer) Cell(i int) string {
	if i < 0 || i >= len(b.cells) || b.cells[i] == 0 {
		return ""
	}
	return string(b.cells[i])
}

// Cells returns all cells for rendering.
func (b *Buffer) Cells() []string {
	out := make([]string, len(b.cells))
	for i := range b.cells {
		out[i] = b.Cell(i)
	}
	return out
}

// Code returns the concatenation of all non-empty cells; it is only a valid
// candidate code when IsComplete reports true.
func (b *Buffer) Code() string {
	out := make([]rune, 0, len(b.cells))
	for _, r := range b.cells {
		if r != 0 {
			out = append(out, r)
		}
	}
	return string(out)
}

func (b *Buffer) IsComplete() bool {
	for _, r := range b.cells {
		if r == 0 {
			return false
		}
	}
	return true
}

// SetDigit applies raw keyboard input to the cell at index. Multi-character
// input (IME, mobile autofill) keeps only the last character; anything that is
// not a decimal digit is rejected as a no-op. An empty raw value clears the
// cell. Accepting a digit anywhere but the last cell directs focus forward.
func (b *Buffer) SetDigit(index int, raw string) (Directive, error) {
	if index < 0 || index >= len(b.cells) {
		return noFocus, ErrCellOutOfRange
	}
	if raw == "" {
		b.cells[index] = 0
		return noFocus, nil
	}

	runes := []rune(raw)
	r := runes[len(runes)-1]
	if r < '0' || r > '9' {
		return noFocus, nil
	}
	b.cells[index] = r
	if index < len(b.cells)-1 {
		return Directive{Focus: index + 1}, nil
	}
	return noFocus, nil
}

// Backspace handles a backspace on an already-empty cell: focus moves to the
// previous cell so the user can delete backward through the whole code. The
// owner clears non-empty cells itself via SetDigit(index, "").
func (b *Buffer) Backspace(index int) Directive {
	if index > 0 && index < len(b.cells) && b.cells[index] == 0 {
		return Directive{Focus: index - 1}
	}
	return noFocus
}

// Paste overwrites the buffer left-to-right from cell 0 with the digits found
// in raw (non-digits stripped, truncated to the buffer size). Cells beyond the
// pasted digits keep their previous value. Pasting text with no digits is a
// no-op. Focus lands on the last cell when the buffer ends up complete,
// otherwise on the first empty cell.
func (b *Buffer) Paste(raw string) Directive {
	digits := make([]rune, 0, len(b.cells))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
			if len(digits) == len(b.cells) {
				break
			}
		}
	}
	if len(digits) == 0 {
		return noFocus
	}
	copy(b.cells, digits)

	if b.IsComplete() {
		return Directive{Focus: len(b.cells) - 1}
	}
	for i, r := range b.cells {
		if r == 0 {
			return Directive{Focus: i}
		}
	}
	return Directive{Focus: len(b.cells) - 1}
}

// Reset clears all cells and directs focus back to the first one. It is
// called after a failed verification attempt and after a successful resend.
func (b *Buffer) Reset() Directive {
	for i := range b.cells {
		b.cells[i] = 0
	}
	return Directive{Focus: 0}
}
