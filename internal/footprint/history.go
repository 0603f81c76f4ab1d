package footprint

// DefaultHistoryCapacity is the number of finalized bars kept per instrument.
const DefaultHistoryCapacity = 100

// History is a fixed-size ring of finalized bars; the oldest is overwritten first.
type History struct {
	bars  []*Bar
	head  int // next write position
	count int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{bars: make([]*Bar, capacity)}
}

func (h *History) Cap() int {
	return len(h.bars)
}

func (h *History) Len() int {
	return h.count
}

// Push appends a finalized bar, evicting the oldest when full.
func (h *History) Push(b *Bar) {
	h.bars[h.head] = b
	h.head = (h.head + 1) % len(h.bars)
	if h.count < len(h.bars) {
		h.count++
	}
}

// Latest returns up to n most recent bars, oldest first.
func (h *History) Latest(n int) []*Bar {
	if n <= 0 || h.count == 0 {
		return []*Bar{}
	}
	if n > h.count {
		n = h.count
	}

	out := make([]*Bar, n)
	start := (h.head - n + len(h.bars)) % len(h.bars)
	for i := 0; i < n; i++ {
		out[i] = h.bars[(start+i)%len(h.bars)]
	}
	return out
}
