package profile

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Profile is the producer side of the metrics protocol. Application code
// marks named values while working and String renders them as one protocol
// line, ready to attach to a report or log record.
type Profile struct {
	mu    sync.Mutex
	marks map[string]float64
	last  time.Time
}

// NewProfile starts an empty profile with the elapsed-time origin at now.
func NewProfile() *Profile {
	return &Profile{
		marks: make(map[string]float64),
		last:  time.Now(),
	}
}

// Mark adds value to the named metric.
func (p *Profile) Mark(name string, value float64) {
	p.mu.Lock()
	p.marks[name] += value
	p.mu.Unlock()
}

// MarkDuration adds a duration in seconds under name.
func (p *Profile) MarkDuration(name string, d time.Duration) {
	p.Mark(name, d.Seconds())
}

// MarkTime adds the wall time elapsed since the last MarkTime or Reset
// under `name:time`.
func (p *Profile) MarkTime(name string) {
	now := time.Now()
	p.mu.Lock()
	p.marks[name+":time"] += now.Sub(p.last).Seconds()
	p.last = now
	p.mu.Unlock()
}

// Reset moves the elapsed-time origin to now.
func (p *Profile) Reset() {
	p.mu.Lock()
	p.last = time.Now()
	p.mu.Unlock()
}

// Update folds another profile's marks into this one.
func (p *Profile) Update(other *Profile) {
	other.mu.Lock()
	marks := make(map[string]float64, len(other.marks))
	for name, value := range other.marks {
		marks[name] = value
	}
	other.mu.Unlock()
	p.mu.Lock()
	for name, value := range marks {
		p.marks[name] += value
	}
	p.mu.Unlock()
}

// String renders the profile as a sorted line of `name=value` tokens.
func (p *Profile) String() string {
	p.mu.Lock()
	names := make([]string, 0, len(p.marks))
	for name := range p.marks {
		names = append(names, name)
	}
	sort.Strings(names)
	tokens := make([]string, 0, len(names))
	for _, name := range names {
		tokens = append(tokens, name+"="+Encode(p.marks[name], false))
	}
	p.mu.Unlock()
	return strings.Join(tokens, " ")
}
