package playback

import (
	"math"
	"sync"
)

// Surface the media element a session drives
type Surface interface {
	// Load (re-)initialize playback from src, superseding any previous source
	Load(src Source) error
	// CurrentTime playback clock in seconds within the current source
	CurrentTime() float64
}

// ClockReporter surfaces whose clock is pushed by the client
type ClockReporter interface {
	Report(generation uint64, offset float64) bool
}

// RemoteSurface Surface living on the other side of the network.
//
// Load queues the instruction for delivery and keeps the last one for polling
// clients, the playback clock is whatever the client last reported.
type RemoteSurface struct {
	mu      sync.Mutex
	offset  float64
	current *Source
	updates chan Source
}

var _ Surface = &RemoteSurface{}
var _ ClockReporter = &RemoteSurface{}

// NewRemoteSurface create a surface with an empty instruction queue
func NewRemoteSurface() *RemoteSurface {
	return &RemoteSurface{updates: make(chan Source, 1)}
}

// Load implement Surface, only the newest undelivered instruction is kept
func (rs *RemoteSurface) Load(src Source) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.current = &src
	rs.offset = src.StartOffset
	select {
	case <-rs.updates:
	default:
	}
	rs.updates <- src
	return nil
}

// CurrentTime implement Surface
func (rs *RemoteSurface) CurrentTime() float64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.offset
}

// Report record the client clock, reports for a superseded source are dropped.
// generation 0 means the client does not track generations.
func (rs *RemoteSurface) Report(generation uint64, offset float64) bool {
	if math.IsNaN(offset) || math.IsInf(offset, 0) || offset < 0 {
		return false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if generation != 0 && (rs.current == nil || rs.current.Generation != generation) {
		return false
	}
	rs.offset = offset
	return true
}

// Current last loaded instruction
func (rs *RemoteSurface) Current() (Source, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.current == nil {
		return Source{}, false
	}
	return *rs.current, true
}

// Updates instructions awaiting delivery
func (rs *RemoteSurface) Updates() <-chan Source {
	return rs.updates
}
