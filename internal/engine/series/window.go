package series

import "math"

// RollingWindow is a fixed-capacity FIFO buffer of recent observations.
// It backs the streaming detector's statistics and is owned exclusively
// by one live stream engine; only that engine's tick loop mutates it.
type RollingWindow struct {
	buf   []Observation
	start int
	count int
}

// NewRollingWindow allocates a window holding up to capacity points.
// Capacity below 1 is treated as 1.
func NewRollingWindow(capacity int) *RollingWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingWindow{buf: make([]Observation, capacity)}
}

func (w *RollingWindow) Len() int      { return w.count }
func (w *RollingWindow) Capacity() int { return len(w.buf) }

// Push appends an observation, evicting the oldest when full.
func (w *RollingWindow) Push(o Observation) {
	if w.count < len(w.buf) {
		w.buf[(w.start+w.count)%len(w.buf)] = o
		w.count++
		return
	}
	w.buf[w.start] = o
	w.start = (w.start + 1) % len(w.buf)
}

// Values returns the buffered target values, oldest first.
func (w *RollingWindow) Values() []float64 {
	vals := make([]float64, w.count)
	for i := 0; i < w.count; i++ {
		vals[i] = w.buf[(w.start+i)%len(w.buf)].Value
	}
	return vals
}

// Mean returns the population mean of the buffered values.
func (w *RollingWindow) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < w.count; i++ {
		sum += w.buf[(w.start+i)%len(w.buf)].Value
	}
	return sum / float64(w.count)
}

// StdDev returns the population standard deviation of the buffered values.
func (w *RollingWindow) StdDev() float64 {
	if w.count == 0 {
		return 0
	}
	mean := w.Mean()
	sum := 0.0
	for i := 0; i < w.count; i++ {
		d := w.buf[(w.start+i)%len(w.buf)].Value - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(w.count))
}
