package playback

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pot-code/course-player/internal/course"
)

// ErrMediaUnsupported the viewing surface can play the lesson neither way
var ErrMediaUnsupported = errors.New("media unsupported")

// HLSMimeType container of every lesson stream
const HLSMimeType = "application/vnd.apple.mpegurl"

// Strategy how the surface initializes a lesson stream
type Strategy string

// playback strategies
const (
	StrategyAdaptive Strategy = "adaptive" // segmented streaming driven by a player library over MSE
	StrategyNative   Strategy = "native"   // manifest url assigned straight to the media element
)

// Capabilities reported by a viewing surface
type Capabilities struct {
	MediaSourceExtensions bool     `json:"mse"`
	NativeTypes           []string `json:"native_types"`
}

// CanPlayNative whether the surface plays mime without a player library
func (c Capabilities) CanPlayNative(mime string) bool {
	for _, t := range c.NativeTypes {
		if strings.EqualFold(strings.TrimSpace(t), mime) {
			return true
		}
	}
	return false
}

// SelectStrategy adaptive streaming wins whenever MSE is present
func SelectStrategy(caps Capabilities) (Strategy, error) {
	switch {
	case caps.MediaSourceExtensions:
		return StrategyAdaptive, nil
	case caps.CanPlayNative(HLSMimeType):
		return StrategyNative, nil
	default:
		return "", ErrMediaUnsupported
	}
}

// Source one media (re-)initialization instruction
type Source struct {
	Strategy    Strategy `json:"strategy"`
	URL         string   `json:"url"`
	MimeType    string   `json:"mime_type"`
	StartOffset float64  `json:"start_offset"`
	Generation  uint64   `json:"generation"`
	LessonID    string   `json:"lesson_id"`
}

// NewSource build the instruction for lesson, starting at offset
func NewSource(lesson course.Lesson, caps Capabilities, offset float64, generation uint64) (Source, error) {
	strategy, err := SelectStrategy(caps)
	if err != nil {
		return Source{}, err
	}
	if lesson.Link == "" {
		return Source{}, fmt.Errorf("%w: lesson %s has no media link", ErrMediaUnsupported, lesson.ID)
	}
	if offset < 0 {
		offset = 0
	}
	return Source{
		Strategy:    strategy,
		URL:         lesson.Link,
		MimeType:    HLSMimeType,
		StartOffset: offset,
		Generation:  generation,
		LessonID:    lesson.ID,
	}, nil
}
