package tracker

import (
	"slices"
	"sync"
	"time"
)

type Point struct {
	At    time.Time
	Price float64
}

// History keeps the last size observations per token, in memory only.
type History struct {
	mu     sync.RWMutex
	size   int
	points map[string][]Point
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 288
	}
	return &History{size: size, points: make(map[string][]Point)}
}

// Add appends an observation; repeats of the latest timestamp are ignored.
func (h *History) Add(id string, at time.Time, price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pts := h.points[id]
	if n := len(pts); n > 0 && !at.After(pts[n-1].At) {
		return
	}
	pts = append(pts, Point{At: at, Price: price})
	if len(pts) > h.size {
		pts = slices.Clone(pts[len(pts)-h.size:])
	}
	h.points[id] = pts
}

func (h *History) Series(id string) []Point {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.points[id])
}

// Since returns the observations at or after t.
func (h *History) Since(id string, t time.Time) []Point {
	all := h.Series(id)
	i, _ := slices.BinarySearchFunc(all, t, func(p Point, t time.Time) int {
		return p.At.Compare(t)
	})
	return all[i:]
}
