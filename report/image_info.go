package report

import (
	"fmt"
	"io"

	"github.com/richardlevinson/dshield-planner/satstate"
)

// WriteImageInfo writes one image record per line, grounded on
// fileUtil.writeImageInfo.
func WriteImageInfo(w io.Writer, images []satstate.Image) error {
	for _, img := range images {
		start := -1
		if img.Start != nil {
			start = *img.Start
		}
		end := -1
		if img.End != nil {
			end = *img.End
		}
		if _, err := fmt.Fprintf(w, "{id: %d, value: %g, downlinkPct: %.3f, targets: %v, start: %d, end: %d}\n",
			img.ID, img.Value, img.DownlinkPct, img.Targets, start, end); err != nil {
			return err
		}
	}
	return nil
}
