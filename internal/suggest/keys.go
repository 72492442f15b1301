package suggest

import "strings"

type Key string

const (
	KeyArrowDown Key = "ArrowDown"
	KeyArrowUp   Key = "ArrowUp"
	KeyEnter     Key = "Enter"
	KeyEscape    Key = "Escape"
)

// ParseKey accepts DOM key names and the short forms used by terminals.
func ParseKey(raw string) (Key, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "arrowdown", "down":
		return KeyArrowDown, true
	case "arrowup", "up":
		return KeyArrowUp, true
	case "enter", "return":
		return KeyEnter, true
	case "escape", "esc":
		return KeyEscape, true
	default:
		return "", false
	}
}
