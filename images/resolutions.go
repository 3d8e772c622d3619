package images

import (
	"fmt"
	"math"
	"sort"
)

// ResolutionType names a camera resolution standard.
type ResolutionType string

// Camera resolutions used as benchmark source sizes.
const (
	ResolutionTypeVGA      ResolutionType = "VGA"
	ResolutionTypeNHD      ResolutionType = "nHD"
	ResolutionTypeHD720p   ResolutionType = "HD 720p"
	ResolutionType1MP54    ResolutionType = "1MP (5:4)"
	ResolutionTypeFHD1080p ResolutionType = "Full HD 1080p"
	ResolutionType2MP43    ResolutionType = "2MP (4:3)"
	ResolutionTypeQHD1440p ResolutionType = "QHD 1440p"
	ResolutionType4KUHD    ResolutionType = "4K UHD"
)

// Resolution is a named frame size.
type Resolution struct {
	Name   ResolutionType `json:"name"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
}

// MegaPixels is the pixel count in millions, rounded to two decimals.
func (r Resolution) MegaPixels() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	mp := float64(r.Width*r.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Width, r.Height, r.MegaPixels())
}

var resolutions = map[ResolutionType]Resolution{
	ResolutionTypeVGA:      {Name: ResolutionTypeVGA, Width: 640, Height: 480},
	ResolutionTypeNHD:      {Name: ResolutionTypeNHD, Width: 640, Height: 360},
	ResolutionTypeHD720p:   {Name: ResolutionTypeHD720p, Width: 1280, Height: 720},
	ResolutionType1MP54:    {Name: ResolutionType1MP54, Width: 1280, Height: 1024},
	ResolutionTypeFHD1080p: {Name: ResolutionTypeFHD1080p, Width: 1920, Height: 1080},
	ResolutionType2MP43:    {Name: ResolutionType2MP43, Width: 1600, Height: 1200},
	ResolutionTypeQHD1440p: {Name: ResolutionTypeQHD1440p, Width: 2560, Height: 1440},
	ResolutionType4KUHD:    {Name: ResolutionType4KUHD, Width: 3840, Height: 2160},
}

// Resolutions returns every known resolution, smallest pixel count first.
func Resolutions() []Resolution {
	all := make([]Resolution, 0, len(resolutions))
	for _, r := range resolutions {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		pi, pj := all[i].Width*all[i].Height, all[j].Width*all[j].Height
		if pi != pj {
			return pi < pj
		}
		return all[i].Name < all[j].Name
	})
	return all
}

// GetResolutionByType looks up a resolution by name.
func GetResolutionByType(t ResolutionType) (Resolution, bool) {
	res, ok := resolutions[t]
	return res, ok
}

// GetHighestResolutionUnderDimensions returns the largest known resolution
// that fits within width x height.
//
// Arguments:
//   - width: The maximum width.
//   - height: The maximum height.
//
// Returns:
//   - Resolution: The largest fitting resolution.
//   - bool: False when none fits.
func GetHighestResolutionUnderDimensions(width, height int) (Resolution, bool) {
	var highest Resolution
	var found bool

	for _, res := range Resolutions() {
		if res.Width <= width && res.Height <= height {
			highest, found = res, true
		}
	}
	return highest, found
}
