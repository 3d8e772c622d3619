package darknet

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-darknet/models/postprocess"
)

// field is one coerced key = value pair together with where it came from.
type field struct {
	value any
	line  int
	text  string
}

func (f field) errorf(format string, args ...any) error {
	return &ConfigSyntaxError{Line: f.line, Text: f.text, Reason: fmt.Sprintf(format, args...)}
}

// block is one [kind] section of the cfg text.
type block struct {
	kind   string
	line   int
	text   string
	fields map[string]field
	order  []string
}

// ParseFile reads and parses a darknet cfg file.
//
// Arguments:
//   - path: Location of the cfg file.
//
// Returns:
//   - []LayerSpec: Layer blocks in file order.
//   - NetworkInfo: The [net] block.
//   - error: I/O failure or *ConfigSyntaxError.
func ParseFile(path string) ([]LayerSpec, NetworkInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NetworkInfo{}, errors.Wrapf(err, "open cfg %s", path)
	}
	defer f.Close()

	return Parse(f)
}

// Parse turns darknet cfg text into layer specifications plus the network
// info record.
//
// Blank lines and lines starting with '#' or ';' are ignored. A line of the
// form "[kind]" opens a block; following "key = value" lines belong to it.
// Values are coerced to int, then float64, then left as string; comma
// separated values become []any of coerced items. A scalar route "layers"
// is wrapped into a one element list and every "anchors" field is regrouped
// into (w, h) pairs.
//
// Arguments:
//   - r: The cfg text.
//
// Returns:
//   - []LayerSpec: Layer blocks in file order.
//   - NetworkInfo: The single [net] block.
//   - error: *ConfigSyntaxError naming the offending line, or a read error.
func Parse(r io.Reader) ([]LayerSpec, NetworkInfo, error) {
	blocks, err := readBlocks(r)
	if err != nil {
		return nil, NetworkInfo{}, err
	}

	var (
		info    NetworkInfo
		hasInfo bool
		specs   = make([]LayerSpec, 0, len(blocks))
	)
	for _, b := range blocks {
		if b.kind == "net" || b.kind == "network" {
			if hasInfo {
				return nil, NetworkInfo{}, &ConfigSyntaxError{Line: b.line, Text: b.text, Reason: "duplicate [net] block"}
			}
			if info, err = b.networkInfo(); err != nil {
				return nil, NetworkInfo{}, err
			}
			hasInfo = true
			continue
		}

		spec, err := b.layerSpec()
		if err != nil {
			return nil, NetworkInfo{}, err
		}
		specs = append(specs, spec)
	}

	if !hasInfo {
		return nil, NetworkInfo{}, &ConfigSyntaxError{Reason: "missing [net] block"}
	}
	if len(specs) == 0 {
		return nil, NetworkInfo{}, &ConfigSyntaxError{Reason: "no layer blocks"}
	}

	return specs, info, nil
}

func readBlocks(r io.Reader) ([]*block, error) {
	var (
		blocks  []*block
		current *block
		lineNo  int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}

		if line[0] == '[' {
			kind, ok := parseHeader(line)
			if !ok {
				return nil, &ConfigSyntaxError{Line: lineNo, Text: line, Reason: "malformed block header"}
			}
			current = &block{kind: kind, line: lineNo, text: line, fields: map[string]field{}}
			blocks = append(blocks, current)
			continue
		}

		if current == nil {
			return nil, &ConfigSyntaxError{Line: lineNo, Text: line, Reason: "key = value before any block header"}
		}

		key, raw, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, &ConfigSyntaxError{Line: lineNo, Text: line, Reason: "expected key = value"}
		}

		f := field{value: coerce(raw), line: lineNo, text: line}
		if err := current.normalize(key, &f); err != nil {
			return nil, err
		}
		if _, seen := current.fields[key]; !seen {
			current.order = append(current.order, key)
		}
		current.fields[key] = f
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read cfg")
	}

	return blocks, nil
}

// parseHeader accepts "[identifier]" where identifier is a letter or '_'
// followed by letters, digits or '_'.
func parseHeader(line string) (string, bool) {
	if len(line) < 3 || line[len(line)-1] != ']' {
		return "", false
	}
	name := line[1 : len(line)-1]
	for i, c := range name {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return "", false
		}
	}
	return name, true
}

// coerce converts a raw value string to int, float64, string or []any.
func coerce(raw string) any {
	if strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		list := make([]any, len(parts))
		for i, p := range parts {
			list[i] = coerceScalar(strings.TrimSpace(p))
		}
		return list
	}
	return coerceScalar(strings.TrimSpace(raw))
}

func coerceScalar(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// normalize applies the post hoc coercions: scalar route layers become a
// list and anchors become pairs.
func (b *block) normalize(key string, f *field) error {
	if b.kind == KindRoute && key == "layers" {
		if v, ok := f.value.(int); ok {
			f.value = []any{v}
		}
	}

	if key == "anchors" {
		list, ok := f.value.([]any)
		if !ok || len(list)%2 != 0 {
			return f.errorf("anchors must be a list of width,height pairs")
		}
		anchors := make([]postprocess.Anchor, 0, len(list)/2)
		for i := 0; i < len(list); i += 2 {
			w, okW := number(list[i])
			h, okH := number(list[i+1])
			if !okW || !okH {
				return f.errorf("anchors must be numeric")
			}
			anchors = append(anchors, postprocess.Anchor{W: float32(w), H: float32(h)})
		}
		f.value = anchors
	}

	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func (b *block) missing(key string) error {
	return &ConfigSyntaxError{Line: b.line, Text: b.text, Reason: fmt.Sprintf("missing required field %q", key)}
}

func (b *block) intValue(key string, def int, required bool) (int, error) {
	f, ok := b.fields[key]
	if !ok {
		if required {
			return 0, b.missing(key)
		}
		return def, nil
	}
	v, ok := f.value.(int)
	if !ok {
		return 0, f.errorf("%s must be an integer", key)
	}
	return v, nil
}

func (b *block) positiveInt(key string, def int, required bool) (int, error) {
	v, err := b.intValue(key, def, required)
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, b.fields[key].errorf("%s must be positive", key)
	}
	return v, nil
}

func (b *block) intList(key string, required bool) ([]int, error) {
	f, ok := b.fields[key]
	if !ok {
		if required {
			return nil, b.missing(key)
		}
		return nil, nil
	}

	switch v := f.value.(type) {
	case int:
		return []int{v}, nil
	case []any:
		out := make([]int, len(v))
		for i, item := range v {
			n, ok := item.(int)
			if !ok {
				return nil, f.errorf("%s must be a list of integers", key)
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, f.errorf("%s must be a list of integers", key)
	}
}

func (b *block) activation(def Activation) (Activation, error) {
	f, ok := b.fields["activation"]
	if !ok {
		return def, nil
	}
	s, _ := f.value.(string)
	switch a := Activation(s); a {
	case ActivationLeaky, ActivationLinear:
		return a, nil
	default:
		return "", f.errorf("unsupported activation %v", f.value)
	}
}

func (b *block) networkInfo() (NetworkInfo, error) {
	info := NetworkInfo{Options: map[string]any{}}

	var err error
	if info.Width, err = b.positiveInt("width", 0, true); err != nil {
		return NetworkInfo{}, err
	}
	if info.Height, err = b.positiveInt("height", 0, true); err != nil {
		return NetworkInfo{}, err
	}
	if info.Channels, err = b.positiveInt("channels", 0, true); err != nil {
		return NetworkInfo{}, err
	}

	for _, key := range b.order {
		switch key {
		case "width", "height", "channels":
		default:
			info.Options[key] = b.fields[key].value
		}
	}

	return info, nil
}

func (b *block) layerSpec() (LayerSpec, error) {
	switch b.kind {
	case KindConvolutional:
		return b.convolutional()
	case KindMaxPool:
		stride, err := b.positiveInt("stride", 1, false)
		if err != nil {
			return nil, err
		}
		size, err := b.positiveInt("size", stride, false)
		if err != nil {
			return nil, err
		}
		return &MaxPool{Size: size, Stride: stride}, nil
	case KindUpsample:
		stride, err := b.positiveInt("stride", 2, false)
		if err != nil {
			return nil, err
		}
		return &Upsample{Stride: stride}, nil
	case KindRoute:
		layers, err := b.intList("layers", true)
		if err != nil {
			return nil, err
		}
		if len(layers) == 0 {
			return nil, b.missing("layers")
		}
		return &Route{Layers: layers}, nil
	case KindShortcut:
		from, err := b.intValue("from", 0, true)
		if err != nil {
			return nil, err
		}
		act, err := b.activation(ActivationLinear)
		if err != nil {
			return nil, err
		}
		return &Shortcut{From: from, Activation: act}, nil
	case KindDetection:
		return b.detection()
	default:
		return nil, &ConfigSyntaxError{Line: b.line, Text: b.text, Reason: "unknown block type"}
	}
}

func (b *block) convolutional() (LayerSpec, error) {
	conv := &Convolutional{}

	var err error
	if conv.Filters, err = b.positiveInt("filters", 0, true); err != nil {
		return nil, err
	}
	if conv.Size, err = b.positiveInt("size", 1, false); err != nil {
		return nil, err
	}
	if conv.Stride, err = b.positiveInt("stride", 1, false); err != nil {
		return nil, err
	}
	pad, err := b.intValue("pad", 0, false)
	if err != nil {
		return nil, err
	}
	conv.Pad = pad != 0
	bn, err := b.intValue("batch_normalize", 0, false)
	if err != nil {
		return nil, err
	}
	conv.BatchNorm = bn != 0
	if conv.Activation, err = b.activation(ActivationLinear); err != nil {
		return nil, err
	}

	return conv, nil
}

func (b *block) detection() (LayerSpec, error) {
	f, ok := b.fields["anchors"]
	if !ok {
		return nil, b.missing("anchors")
	}
	anchors := f.value.([]postprocess.Anchor)
	if len(anchors) == 0 {
		return nil, f.errorf("anchors must not be empty")
	}

	mask, err := b.intList("mask", false)
	if err != nil {
		return nil, err
	}
	if mask == nil {
		mask = make([]int, len(anchors))
		for i := range mask {
			mask[i] = i
		}
	}
	for _, m := range mask {
		if m < 0 || m >= len(anchors) {
			return nil, b.fields["mask"].errorf("mask index %d outside %d anchors", m, len(anchors))
		}
	}

	classes, err := b.intValue("classes", 0, false)
	if err != nil {
		return nil, err
	}

	return &Detection{Anchors: anchors, Mask: mask, Classes: classes}, nil
}
