// Package models - class label sets and the model factory.
package models

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet is the ordered label list of a model.
type OutputClassSet struct {
	// Classes in index order.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewOutputClassSet indexes names in order.
func NewOutputClassSet(names []string) *OutputClassSet {
	s := &OutputClassSet{Classes: make([]OutputClass, len(names))}
	for i, n := range names {
		s.Classes[i] = OutputClass{Index: i, Name: n}
	}
	s.BuildNameIndexMap()
	return s
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		if _, dup := s.nameToIdx[c.Name]; !dup {
			s.nameToIdx[c.Name] = c.Index
		}
	}
}

// Len returns the number of classes.
func (s *OutputClassSet) Len() int {
	return len(s.Classes)
}

// Name returns the label of idx, or "" when idx is out of range.
func (s *OutputClassSet) Name(idx int) string {
	if idx < 0 || idx >= len(s.Classes) {
		return ""
	}
	return s.Classes[idx].Name
}

// Index returns the index of name.
func (s *OutputClassSet) Index(name string) (int, bool) {
	idx, ok := s.nameToIdx[name]
	return idx, ok
}

// Names returns the labels in index order.
func (s *OutputClassSet) Names() []string {
	out := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		out[i] = c.Name
	}
	return out
}

// LoadOutputClassSet reads a names file with one label per line. Blank lines
// are skipped and surrounding whitespace is trimmed.
func LoadOutputClassSet(path string) (*OutputClassSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open names %s", path)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read names %s", path)
	}
	if len(names) == 0 {
		return nil, errors.Errorf("names file %s is empty", path)
	}

	return NewOutputClassSet(names), nil
}

// YOLONames are the 80 COCO labels in darknet index order.
var YOLONames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// YOLOClasses returns a fresh set of the COCO labels.
func YOLOClasses() *OutputClassSet {
	return NewOutputClassSet(YOLONames)
}
