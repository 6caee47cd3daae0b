package inspector

// History is an append-only list of executed statement texts, oldest first.
// It is not safe for concurrent use, callers run one action per session at a time.
type History struct {
	entries []string
}

// Append adds text as the newest entry.
func (h *History) Append(text string) {
	h.entries = append(h.entries, text)
}

// List returns a copy of all entries in execution order.
func (h *History) List() []string {
	res := make([]string, len(h.entries))
	copy(res, h.entries)
	return res
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}
