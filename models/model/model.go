// Package model - shared model identity and construction arguments.
package model

// Family is the family of models.
type Family string

const (
	// ModelFamilyYOLO is the darknet YOLO model family.
	ModelFamilyYOLO Family = "yolo"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOv3 is a full YOLOv3 darknet network.
	ModelNameYOLOv3 Name = "yolov3"
	// ModelNameYOLOv3Tiny is the two-head YOLOv3-tiny network.
	ModelNameYOLOv3Tiny Name = "yolov3-tiny"
	// ModelNameCustom is any other darknet cfg.
	ModelNameCustom Name = "custom"
)

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	// Name labels the model in logs and API responses.
	Name Name `json:"name" yaml:"name"`
	// Family of the model.
	Family Family `json:"family" yaml:"family"`
	// ConfigPath is the darknet .cfg network description.
	ConfigPath string `json:"config" yaml:"config"`
	// WeightsPath is the darknet .weights blob. Empty leaves all
	// parameters zero.
	WeightsPath string `json:"weights" yaml:"weights"`
	// NamesPath is a class names file, one name per line. Empty means
	// COCO names.
	NamesPath string `json:"names" yaml:"names"`
}
