package render

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"lifedash-backend/models"

	"github.com/fogleman/gg"
)

// ChartOptions controls the size of the rendered chart
type ChartOptions struct {
	Width  int
	Height int
}

// DefaultChartOptions returns an 800x400 chart
func DefaultChartOptions() ChartOptions {
	return ChartOptions{Width: 800, Height: 400}
}

var domainColors = map[models.Domain]color.NRGBA{
	models.DomainSocial:       {R: 0x3b, G: 0x82, B: 0xf6, A: 0xff},
	models.DomainPersonal:     {R: 0x10, G: 0xb9, B: 0x81, A: 0xff},
	models.DomainProfessional: {R: 0xf5, G: 0x9e, B: 0x0b, A: 0xff},
	models.DomainSpiritual:    {R: 0x8b, G: 0x5c, B: 0xf6, A: 0xff},
}

const (
	marginLeft   = 48.0
	marginRight  = 120.0
	marginTop    = 20.0
	marginBottom = 36.0
)

// ScoreHistoryPNG draws one line per domain over a 0-100 grid and writes
// the PNG to w
func ScoreHistoryPNG(w io.Writer, history models.ScoreHistory, opts ChartOptions) error {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts = DefaultChartOptions()
	}
	if float64(opts.Width) <= marginLeft+marginRight || float64(opts.Height) <= marginTop+marginBottom {
		return fmt.Errorf("chart size %dx%d too small", opts.Width, opts.Height)
	}

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(color.White)
	dc.Clear()

	plotW := float64(opts.Width) - marginLeft - marginRight
	plotH := float64(opts.Height) - marginTop - marginBottom
	yFor := func(score float64) float64 {
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		return marginTop + plotH*(1-score/100)
	}
	xFor := func(i int) float64 {
		if len(history) <= 1 {
			return marginLeft + plotW/2
		}
		return marginLeft + plotW*float64(i)/float64(len(history)-1)
	}

	// grid
	dc.SetLineWidth(1)
	for tick := 0; tick <= 100; tick += 25 {
		y := yFor(float64(tick))
		dc.SetColor(color.NRGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff})
		dc.DrawLine(marginLeft, y, marginLeft+plotW, y)
		dc.Stroke()
		dc.SetColor(color.NRGBA{R: 0x6b, G: 0x72, B: 0x80, A: 0xff})
		dc.DrawStringAnchored(fmt.Sprintf("%d", tick), marginLeft-8, y, 1, 0.5)
	}

	if len(history) > 0 {
		dc.DrawStringAnchored(history[0].Date.Format("Jan 2"), xFor(0), marginTop+plotH+16, 0, 0.5)
		if len(history) > 1 {
			last := len(history) - 1
			dc.DrawStringAnchored(history[last].Date.Format("Jan 2"), xFor(last), marginTop+plotH+16, 1, 0.5)
		}
	}

	dc.SetLineWidth(2.5)
	for _, d := range models.Domains {
		dc.SetColor(domainColors[d])
		for i, entry := range history {
			x, y := xFor(i), yFor(entry.Scores.Get(d))
			if i == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		dc.Stroke()
		for i, entry := range history {
			dc.DrawCircle(xFor(i), yFor(entry.Scores.Get(d)), 3)
			dc.Fill()
		}
	}

	// legend
	for i, d := range models.Domains {
		y := marginTop + 10 + float64(i)*20
		x := marginLeft + plotW + 16
		dc.SetColor(domainColors[d])
		dc.DrawRectangle(x, y-5, 10, 10)
		dc.Fill()
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(string(d), x+16, y, 0, 0.5)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return fmt.Errorf("failed to encode chart: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}
