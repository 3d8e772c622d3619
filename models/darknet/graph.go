package darknet

import (
	"fmt"
	"sort"
	"strings"
)

// LayerGraph is the built network: the layer arena with every reference
// resolved to an absolute index, per-layer channel counts and the set of
// layers whose output must be retained during a forward pass.
type LayerGraph struct {
	// Info is the [net] block the graph was built against.
	Info NetworkInfo
	// Layers is the layer arena in definition order. Route.Layers and
	// Shortcut.From hold absolute indices.
	Layers []LayerSpec
	// InChannels is the channel count flowing into each layer.
	InChannels []int
	// OutChannels is the channel count each layer produces.
	OutChannels []int
	// CacheSet holds the indices whose outputs are read out of sequence.
	CacheSet map[int]struct{}
}

// Cached reports whether the output of layer i must be retained.
func (g *LayerGraph) Cached(i int) bool {
	_, ok := g.CacheSet[i]
	return ok
}

// CacheIndices returns the cache set in ascending order.
func (g *LayerGraph) CacheIndices() []int {
	out := make([]int, 0, len(g.CacheSet))
	for i := range g.CacheSet {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Build resolves layer references, infers channel counts and computes the
// cache set. The input specs are not modified.
//
// Arguments:
//   - specs: Layer specifications in definition order.
//   - info: The [net] block; info.Channels seeds the channel inference.
//
// Returns:
//   - *LayerGraph: The built graph.
//   - error: *UnresolvedReferenceError, *ChannelMismatchError or
//     *ConfigSyntaxError for an empty layer list.
func Build(specs []LayerSpec, info NetworkInfo) (*LayerGraph, error) {
	if len(specs) == 0 {
		return nil, &ConfigSyntaxError{Reason: "no layer blocks"}
	}

	g := &LayerGraph{
		Info:        info,
		Layers:      make([]LayerSpec, len(specs)),
		InChannels:  make([]int, len(specs)),
		OutChannels: make([]int, len(specs)),
		CacheSet:    map[int]struct{}{},
	}

	prev := info.Channels
	for i, spec := range specs {
		resolved, out, err := g.step(i, spec.clone(), prev)
		if err != nil {
			return nil, err
		}
		g.Layers[i] = resolved
		g.InChannels[i] = prev
		g.OutChannels[i] = out
		prev = out
	}

	return g, nil
}

// step resolves layer i and returns its output channel count given the
// previous layer's count. Only OutChannels[:i] is read.
func (g *LayerGraph) step(i int, layer LayerSpec, prev int) (LayerSpec, int, error) {
	switch l := layer.(type) {
	case *Convolutional:
		return l, l.Filters, nil

	case *MaxPool, *Upsample, *Detection:
		return l, prev, nil

	case *Route:
		out := 0
		for j, ref := range l.Layers {
			abs := ref
			if ref < 0 {
				abs = i + ref
			}
			if abs < 0 || abs >= i {
				return nil, 0, &UnresolvedReferenceError{Layer: i, Field: "layers", Ref: ref, Resolved: abs}
			}
			l.Layers[j] = abs
			g.CacheSet[abs] = struct{}{}
			out += g.OutChannels[abs]
		}
		return l, out, nil

	case *Shortcut:
		if i == 0 {
			return nil, 0, &UnresolvedReferenceError{Layer: i, Field: "previous", Ref: -1, Resolved: -1}
		}
		ref := l.From
		abs := i + ref
		if abs < 0 || abs >= i {
			return nil, 0, &UnresolvedReferenceError{Layer: i, Field: "from", Ref: ref, Resolved: abs}
		}
		if g.OutChannels[abs] != g.OutChannels[i-1] {
			return nil, 0, &ChannelMismatchError{
				Layer:        i,
				From:         abs,
				FromChannels: g.OutChannels[abs],
				PrevChannels: g.OutChannels[i-1],
			}
		}
		l.From = abs
		g.CacheSet[i-1] = struct{}{}
		g.CacheSet[abs] = struct{}{}
		return l, g.OutChannels[i-1], nil

	default:
		return nil, 0, fmt.Errorf("darknet: layer %d: unsupported layer kind %T", i, layer)
	}
}

// Summary renders the graph as a table, one layer per line.
func (g *LayerGraph) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "net %dx%dx%d\n", g.Info.Width, g.Info.Height, g.Info.Channels)
	for i, l := range g.Layers {
		mark := " "
		if g.Cached(i) {
			mark = "*"
		}
		line := fmt.Sprintf("%3d%s %-13s %5d -> %-5d %s", i, mark, l.Kind(), g.InChannels[i], g.OutChannels[i], describe(l))
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "cache %v\n", g.CacheIndices())
	return b.String()
}
