package postprocess

import (
	"sort"
	"sync"

	"github.com/nvr-ai/go-darknet/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"` // Overlap above which a box is suppressed.
	ClassAware   bool    `json:"class_aware" yaml:"class_aware"`     // If true, suppress only within same class.
	NumWorkers   int     `json:"num_workers" yaml:"num_workers"`     // Goroutines for per-class suppression.
}

// ApplyNMS runs per-class NMS when config.ClassAware is set and a single
// class-agnostic pass otherwise.
func ApplyNMS(detections []Result, config *NMSConfig) []Result {
	if config.ClassAware {
		return ApplyClassNMS(detections, config)
	}
	return ApplyGreedyNMS(detections, config)
}

// ApplyClassNMS partitions detections by class and runs greedy NMS inside
// each partition. Classes are emitted in ascending index order; within a
// class the greedy selection order is kept. With NumWorkers > 1 partitions
// are processed concurrently; the output does not depend on the worker count.
//
// Arguments:
//   - detections: Unordered detections.
//   - config: NMS configuration.
//
// Returns:
//   - The union of the per-class survivors. Nil when detections is empty.
func ApplyClassNMS(detections []Result, config *NMSConfig) []Result {
	if len(detections) == 0 {
		return nil
	}

	byClass := map[int][]Result{}
	for _, d := range detections {
		byClass[d.Class] = append(byClass[d.Class], d)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	kept := make([][]Result, len(classes))
	if config.NumWorkers <= 1 {
		for i, c := range classes {
			kept[i] = ApplyGreedyNMS(byClass[c], config)
		}
	} else {
		jobs := make(chan int, len(classes))
		var wg sync.WaitGroup
		for w := 0; w < config.NumWorkers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					kept[i] = ApplyGreedyNMS(byClass[classes[i]], config)
				}
			}()
		}
		for i := range classes {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
	}

	filtered := make([]Result, 0, len(detections))
	for _, k := range kept {
		filtered = append(filtered, k...)
	}
	return filtered
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Detections are stably sorted by descending score; the best remaining box
// is kept and every other remaining box whose IoU with it exceeds
// config.IoUThreshold is discarded, until none remain.
//
// Arguments:
//   - detections: Detections in any order. The slice is not modified.
//   - config: NMS configuration.
//
// Returns:
//   - Kept detections in selection order. Nil when detections is empty.
func ApplyGreedyNMS(detections []Result, config *NMSConfig) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}

	sorted := make([]Result, n)
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	filtered := make([]Result, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
