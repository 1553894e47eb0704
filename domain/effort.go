package domain

import (
	"time"
)

// Effort is a span of time spent on a task. A zero Stop means the effort is
// still being tracked.
type Effort struct {
	base
	start time.Time
	stop  time.Time
}

func NewEffort(start time.Time) *Effort {
	return NewEffortWithID("", start)
}

func NewEffortWithID(id string, start time.Time) *Effort {
	return &Effort{base: newBase(id, ""), start: start}
}

func (e *Effort) Kind() Kind       { return KindEffort }
func (e *Effort) Start() time.Time { return e.start }
func (e *Effort) Stop() time.Time  { return e.stop }
func (e *Effort) IsTracking() bool { return e.stop.IsZero() }

// Duration returns the elapsed time, measured up to now when still tracking
func (e *Effort) Duration() time.Duration {
	if e.stop.IsZero() {
		return time.Since(e.start)
	}
	return e.stop.Sub(e.start)
}

func (e *Effort) SetStart(start time.Time) {
	if e.start.Equal(start) {
		return
	}
	e.start = start
	e.changed(AttrStart)
}

func (e *Effort) SetStop(stop time.Time) {
	if e.stop.Equal(stop) {
		return
	}
	e.stop = stop
	e.changed(AttrStop)
}

func (e *Effort) Attributes() []string {
	return []string{AttrDescription, AttrStart, AttrStop}
}

func (e *Effort) Equal(other Object, attr string) bool {
	o, ok := other.(*Effort)
	if !ok {
		return false
	}
	switch attr {
	case AttrDescription:
		return e.description == o.description
	case AttrStart:
		return e.start.Equal(o.start)
	case AttrStop:
		return e.stop.Equal(o.stop)
	}
	return true
}

func (e *Effort) CopyAttributes(src Object, attrs []string) {
	o, ok := src.(*Effort)
	if !ok {
		return
	}
	for _, attr := range attrs {
		switch attr {
		case AttrDescription:
			e.SetDescription(o.description)
		case AttrStart:
			e.SetStart(o.start)
		case AttrStop:
			e.SetStop(o.stop)
		}
	}
}

func (e *Effort) Collections() []Collection { return nil }

func (e *Effort) setObserver(obs Observer) { e.obs = obs }
