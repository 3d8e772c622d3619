package video

import (
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// MP4Path appends ".mp4" to path unless it already ends with it.
func MP4Path(path string) string {
	if strings.HasSuffix(path, ".mp4") {
		return path
	}
	return path + ".mp4"
}

// WriteMP4 encodes frames as an mp4v video at fps. The frame size is taken
// from the first frame.
func WriteMP4(frames []gocv.Mat, fps float64, path string) error {
	if len(frames) == 0 {
		return errors.New("video: no frames to write")
	}
	if fps <= 0 {
		return errors.Errorf("video: invalid frame rate %v", fps)
	}

	path = MP4Path(path)
	w, err := gocv.VideoWriterFile(path, "mp4v", fps, frames[0].Cols(), frames[0].Rows(), true)
	if err != nil {
		return errors.Wrapf(err, "open video writer %s", path)
	}
	defer w.Close()

	for i, f := range frames {
		if err := w.Write(f); err != nil {
			return errors.Wrapf(err, "write frame %d", i)
		}
	}
	return nil
}
