package models

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-darknet/models/darknet"
	"github.com/nvr-ai/go-darknet/models/model"
)

// NewModel creates a detection model for args.Family. An empty family is
// treated as YOLO.
//
// Arguments:
//   - args: Model name, family and file locations.
//   - opts: Options passed to the family constructor.
//
// Returns:
//   - *darknet.Model: The built model.
//   - error: An unsupported family or a construction error.
func NewModel(args model.NewModelArgs, opts ...darknet.Option) (*darknet.Model, error) {
	switch args.Family {
	case model.ModelFamilyYOLO, "":
		return darknet.NewModel(args, opts...)
	default:
		return nil, errors.Errorf("unsupported model family: %s", args.Family)
	}
}

// ClassesFor returns the label set named by args.NamesPath, or the COCO
// labels when no path is set.
func ClassesFor(args model.NewModelArgs) (*OutputClassSet, error) {
	if args.NamesPath == "" {
		return YOLOClasses(), nil
	}
	return LoadOutputClassSet(args.NamesPath)
}
