package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/Pryanik-M/LiveHeart/internal/domain/examination"
)

// BullseyeSize is the edge of the diagram in pixels.
const BullseyeSize = 320

var stateColors = map[examination.SegmentState][3]float64{
	examination.SegmentNormal:      {0.86, 0.95, 0.86},
	examination.SegmentHypokinesis: {1.00, 0.88, 0.40},
	examination.SegmentAkinesis:    {0.94, 0.45, 0.35},
	examination.SegmentDyskinesis:  {0.60, 0.40, 0.75},
}

// ring describes one ring of the 17-segment model. Angles are in degrees on
// screen, 0 pointing right and growing clockwise.
type ring struct {
	first, count int
	inner, outer float64
}

// The anterior segment of each ring is at the top and numbering runs
// counterclockwise through the septum.
var rings = []ring{
	{first: 1, count: 6, inner: 0.66, outer: 1.00},
	{first: 7, count: 6, inner: 0.38, outer: 0.66},
	{first: 13, count: 4, inner: 0.16, outer: 0.38},
}

var (
	labelFontOnce sync.Once
	labelFont     *truetype.Font
	labelFontErr  error
)

// segmentLabelFace returns a new face per call. A truetype face caches
// glyphs internally and must not be shared between goroutines; the parsed
// font can be.
func segmentLabelFace() (font.Face, error) {
	labelFontOnce.Do(func() {
		labelFont, labelFontErr = truetype.Parse(goregular.TTF)
		if labelFontErr != nil {
			labelFontErr = fmt.Errorf("parse label font: %w", labelFontErr)
		}
	})
	if labelFontErr != nil {
		return nil, labelFontErr
	}
	return truetype.NewFace(labelFont, &truetype.Options{Size: 13}), nil
}

func setState(dc *gg.Context, s examination.SegmentState) {
	c, ok := stateColors[s]
	if !ok {
		c = stateColors[examination.SegmentNormal]
	}
	dc.SetRGB(c[0], c[1], c[2])
}

func point(cx, cy, r, deg float64) (float64, float64) {
	rad := gg.Radians(deg)
	return cx + r*math.Cos(rad), cy + r*math.Sin(rad)
}

// sector traces an annular sector from a1 down to a2 degrees.
func sector(dc *gg.Context, cx, cy, inner, outer, a1, a2 float64) {
	const steps = 24
	dc.NewSubPath()
	for i := 0; i <= steps; i++ {
		x, y := point(cx, cy, outer, a1+(a2-a1)*float64(i)/steps)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	for i := steps; i >= 0; i-- {
		x, y := point(cx, cy, inner, a1+(a2-a1)*float64(i)/steps)
		dc.LineTo(x, y)
	}
	dc.ClosePath()
}

// DrawBullseye renders the 17-segment diagram as PNG, colouring each
// segment by its wall motion state.
func DrawBullseye(w io.Writer, segments examination.SegmentStates) error {
	face, err := segmentLabelFace()
	if err != nil {
		return err
	}

	dc := gg.NewContext(BullseyeSize, BullseyeSize)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetFontFace(face)
	dc.SetLineWidth(1.5)

	cx, cy := float64(BullseyeSize)/2, float64(BullseyeSize)/2
	radius := float64(BullseyeSize)/2 - 4

	for _, rg := range rings {
		span := 360 / float64(rg.count)
		for i := 0; i < rg.count; i++ {
			n := rg.first + i
			// Counterclockwise on screen is decreasing angle.
			a1 := -90 + span/2 - float64(i)*span
			a2 := a1 - span
			sector(dc, cx, cy, rg.inner*radius, rg.outer*radius, a1, a2)
			setState(dc, segments.State(n))
			dc.FillPreserve()
			dc.SetRGB(0.2, 0.2, 0.2)
			dc.Stroke()

			lx, ly := point(cx, cy, (rg.inner+rg.outer)/2*radius, (a1+a2)/2)
			dc.DrawStringAnchored(strconv.Itoa(n), lx, ly, 0.5, 0.4)
		}
	}

	dc.DrawCircle(cx, cy, 0.16*radius)
	setState(dc, segments.State(17))
	dc.FillPreserve()
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.Stroke()
	dc.DrawStringAnchored("17", cx, cy, 0.5, 0.4)

	return dc.EncodePNG(w)
}

// BullseyePNG returns the diagram as PNG bytes.
func BullseyePNG(segments examination.SegmentStates) ([]byte, error) {
	var buf bytes.Buffer
	if err := DrawBullseye(&buf, segments); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
