package artifact

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/stereotrack/stereotrack/internal/detector"
)

// WriteYOLOLabels writes one line per detection in YOLO format:
// "class_id cx cy w h", all normalized to [0,1] by imgW/imgH (spec §4.4).
// Coordinates are formatted to 6 significant digits so that a decode of a
// written file and a re-encode of the decoded values are byte-identical
// modulo locale-independent float formatting (spec §8).
func WriteYOLOLabels(w io.Writer, imgW, imgH int, detections []detector.Detection) error {
	bw := bufio.NewWriter(w)
	for _, det := range detections {
		cx, cy, bw_, bh := normalize(det.BBox, imgW, imgH)
		if _, err := fmt.Fprintf(bw, "%d %s %s %s %s\n",
			det.ClassID, formatFloat(cx), formatFloat(cy), formatFloat(bw_), formatFloat(bh)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func normalize(b detector.BBox, imgW, imgH int) (cx, cy, w, h float64) {
	width := float64(b.Width())
	height := float64(b.Height())
	x1 := float64(b.X1)
	y1 := float64(b.Y1)
	return (x1 + width/2) / float64(imgW),
		(y1 + height/2) / float64(imgH),
		width / float64(imgW),
		height / float64(imgH)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

// ParseYOLOLabels decodes a label file written by WriteYOLOLabels, relative
// to an imgW x imgH frame, back into pixel-space bboxes. Used by tests to
// verify the round-trip invariant (spec §8).
func ParseYOLOLabels(r io.Reader, imgW, imgH int) ([]detector.Detection, error) {
	var out []detector.Detection
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 {
			return nil, fmt.Errorf("artifact: malformed label line %q", line)
		}
		classID, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("artifact: bad class id: %w", err)
		}
		cx, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, err
		}
		cy, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, err
		}
		w, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, err
		}
		h, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, err
		}

		width := w * float64(imgW)
		height := h * float64(imgH)
		x1 := cx*float64(imgW) - width/2
		y1 := cy*float64(imgH) - height/2

		out = append(out, detector.Detection{
			ClassID: detector.ClassID(classID),
			BBox: detector.BBox{
				X1: int(x1 + 0.5),
				Y1: int(y1 + 0.5),
				X2: int(x1 + width + 0.5),
				Y2: int(y1 + height + 0.5),
			},
		})
	}
	return out, sc.Err()
}
