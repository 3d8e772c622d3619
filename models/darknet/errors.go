package darknet

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrConfigSyntax           = errors.New("darknet: config syntax error")
	ErrUnresolvedReference    = errors.New("darknet: unresolved layer reference")
	ErrChannelMismatch        = errors.New("darknet: shortcut channel mismatch")
	ErrCacheMiss              = errors.New("darknet: feature map cache miss")
	ErrInsufficientWeightData = errors.New("darknet: insufficient weight data")
	ErrInputShape             = errors.New("darknet: input shape mismatch")
)

// ConfigSyntaxError reports a malformed cfg line or block. Line is 1-based;
// zero means the error is not tied to a single line.
type ConfigSyntaxError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ConfigSyntaxError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("darknet: config: %s", e.Reason)
	}
	return fmt.Sprintf("darknet: config line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Is reports whether target is ErrConfigSyntax.
func (e *ConfigSyntaxError) Is(target error) bool { return target == ErrConfigSyntax }

// UnresolvedReferenceError reports a route/shortcut reference that does not
// resolve to an earlier layer.
type UnresolvedReferenceError struct {
	Layer    int
	Field    string
	Ref      int
	Resolved int
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("darknet: layer %d: %s reference %d resolves to %d, want [0, %d)",
		e.Layer, e.Field, e.Ref, e.Resolved, e.Layer)
}

// Is reports whether target is ErrUnresolvedReference.
func (e *UnresolvedReferenceError) Is(target error) bool { return target == ErrUnresolvedReference }

// ChannelMismatchError reports a shortcut whose two inputs disagree on the
// channel count.
type ChannelMismatchError struct {
	Layer        int
	From         int
	FromChannels int
	PrevChannels int
}

func (e *ChannelMismatchError) Error() string {
	return fmt.Sprintf("darknet: layer %d: shortcut from layer %d has %d channels, previous layer has %d",
		e.Layer, e.From, e.FromChannels, e.PrevChannels)
}

// Is reports whether target is ErrChannelMismatch.
func (e *ChannelMismatchError) Is(target error) bool { return target == ErrChannelMismatch }

// CacheMissError reports a route/shortcut reading a cache slot that was never
// written during the current forward pass.
type CacheMissError struct {
	Layer int
	Index int
}

func (e *CacheMissError) Error() string {
	return fmt.Sprintf("darknet: layer %d: feature map of layer %d is not cached", e.Layer, e.Index)
}

// Is reports whether target is ErrCacheMiss.
func (e *CacheMissError) Is(target error) bool { return target == ErrCacheMiss }

// InsufficientWeightDataError reports a weight blob that ran out before every
// convolutional layer was populated. Layer is -1 when the header itself is
// truncated. Offset is the byte offset at which the layer's data starts.
type InsufficientWeightDataError struct {
	Layer     int
	Needed    int
	Available int
	Offset    int64
}

func (e *InsufficientWeightDataError) Error() string {
	if e.Layer < 0 {
		return fmt.Sprintf("darknet: weights: header needs %d bytes, have %d", e.Needed, e.Available)
	}
	return fmt.Sprintf("darknet: weights: layer %d needs %d floats at byte offset %d, %d left",
		e.Layer, e.Needed, e.Offset, e.Available)
}

// Is reports whether target is ErrInsufficientWeightData.
func (e *InsufficientWeightDataError) Is(target error) bool {
	return target == ErrInsufficientWeightData
}

// InputShapeError reports an input tensor that does not match [net].
type InputShapeError struct {
	Want []int
	Got  []int
}

func (e *InputShapeError) Error() string {
	return fmt.Sprintf("darknet: input shape %v, want (n, %d, %d, %d)", e.Got, e.Want[0], e.Want[1], e.Want[2])
}

// Is reports whether target is ErrInputShape.
func (e *InputShapeError) Is(target error) bool { return target == ErrInputShape }
