// Package chart renders progress charts as PNG images.
package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"example.com/progress/internal/domain"
)

const (
	defaultWidth = 900
	rowHeight    = 34
	sectionGap   = 26
	marginX      = 20
	marginY      = 20
	labelWidth   = 260
	valueWidth   = 140
	barHeight    = 20
)

var (
	colorBackground = color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	colorAchieved   = color.NRGBA{R: 0x4C, G: 0xAF, B: 0x50, A: 0xFF}
	colorInProgress = color.NRGBA{R: 0xFF, G: 0x57, B: 0x22, A: 0xFF}
	colorGoalLine   = color.NRGBA{R: 0x60, G: 0x60, B: 0x60, A: 0xFF}
	colorText       = color.NRGBA{R: 0x21, G: 0x21, B: 0x21, A: 0xFF}
	colorTrack      = color.NRGBA{R: 0xEC, G: 0xEC, B: 0xEC, A: 0xFF}
)

// Options configures the renderer.
type Options struct {
	// FontPath points at a TTF file. Empty keeps gg's built-in bitmap font.
	FontPath string
	// Width is the image width in pixels. Zero uses the default.
	Width int
}

// Renderer draws personal and group progress charts.
type Renderer struct {
	width     int
	labelFace font.Face
	titleFace font.Face
}

// NewRenderer builds a renderer, loading the font when one is configured.
func NewRenderer(opts Options) (*Renderer, error) {
	r := &Renderer{width: opts.Width}
	if r.width <= 0 {
		r.width = defaultWidth
	}

	if opts.FontPath != "" {
		labelFace, err := loadFontFace(opts.FontPath, 14)
		if err != nil {
			return nil, err
		}
		titleFace, err := loadFontFace(opts.FontPath, 17)
		if err != nil {
			return nil, err
		}
		r.labelFace = labelFace
		r.titleFace = titleFace
	}
	return r, nil
}

// PersonalChart renders one horizontal bar per exercise for a single user.
// Bars are clamped at the goal line; the numeric annotation carries the
// real total when it exceeds the goal.
func (r *Renderer) PersonalChart(title string, summaries []domain.ExerciseSummary) ([]byte, error) {
	height := marginY*2 + rowHeight + len(summaries)*rowHeight
	dc := gg.NewContext(r.width, height)
	dc.SetColor(colorBackground)
	dc.Clear()

	r.drawTitle(dc, title)

	y := float64(marginY + rowHeight)
	for _, s := range summaries {
		r.drawBarRow(dc, y, barRow{
			label:   s.Exercise.Name,
			value:   fmt.Sprintf("%d / %d %s", s.Total, s.Goal, s.Exercise.Unit),
			total:   s.Total,
			goal:    s.Goal,
			crossed: s.Crossed,
		})
		y += rowHeight
	}

	return encodePNG(dc)
}

// GroupChart renders one section per exercise with a bar for every
// participant, ordered as given.
func (r *Renderer) GroupChart(standings []domain.ExerciseStandings) ([]byte, error) {
	height := marginY * 2
	for _, st := range standings {
		height += rowHeight + sectionGap
		height += len(st.Participants) * rowHeight
	}
	if height < marginY*2+rowHeight {
		height = marginY*2 + rowHeight
	}

	dc := gg.NewContext(r.width, height)
	dc.SetColor(colorBackground)
	dc.Clear()

	y := float64(marginY)
	for _, st := range standings {
		r.setTitleFace(dc)
		dc.SetColor(colorText)
		dc.DrawStringAnchored(fmt.Sprintf("%s (goal %d %s)", st.Exercise.Name, st.Exercise.Goal, st.Exercise.Unit),
			marginX, y+rowHeight/2, 0, 0.35)
		y += rowHeight

		for _, p := range st.Participants {
			r.drawBarRow(dc, y, barRow{
				label:   participantLabel(p),
				value:   fmt.Sprintf("%d / %d", p.Total, p.Goal),
				total:   p.Total,
				goal:    p.Goal,
				crossed: p.Crossed,
			})
			y += rowHeight
		}
		y += sectionGap
	}

	return encodePNG(dc)
}

type barRow struct {
	label   string
	value   string
	total   int64
	goal    int64
	crossed bool
}

func (r *Renderer) drawBarRow(dc *gg.Context, y float64, row barRow) {
	r.setLabelFace(dc)
	dc.SetColor(colorText)
	dc.DrawStringAnchored(row.label, marginX, y+rowHeight/2, 0, 0.35)

	barX := float64(marginX + labelWidth)
	barW := float64(r.width - marginX - valueWidth - int(barX))
	barY := y + (rowHeight-barHeight)/2

	dc.SetColor(colorTrack)
	dc.DrawRectangle(barX, barY, barW, barHeight)
	dc.Fill()

	fill := barW
	if row.goal > 0 {
		ratio := float64(row.total) / float64(row.goal)
		if ratio > 1 {
			ratio = 1
		}
		fill = barW * ratio
	}
	if row.crossed {
		dc.SetColor(colorAchieved)
	} else {
		dc.SetColor(colorInProgress)
	}
	if fill > 0 {
		dc.DrawRectangle(barX, barY, fill, barHeight)
		dc.Fill()
	}

	// Goal marker at the right edge of the track.
	dc.SetColor(colorGoalLine)
	dc.SetDash(4, 4)
	dc.SetLineWidth(1)
	dc.DrawLine(barX+barW, y+3, barX+barW, y+rowHeight-3)
	dc.Stroke()
	dc.SetDash()

	dc.SetColor(colorText)
	dc.DrawStringAnchored(row.value, barX+barW+10, y+rowHeight/2, 0, 0.35)
}

func (r *Renderer) drawTitle(dc *gg.Context, title string) {
	if title == "" {
		return
	}
	r.setTitleFace(dc)
	dc.SetColor(colorText)
	dc.DrawStringAnchored(title, marginX, marginY+rowHeight/2, 0, 0.35)
}

func (r *Renderer) setLabelFace(dc *gg.Context) {
	if r.labelFace != nil {
		dc.SetFontFace(r.labelFace)
	}
}

func (r *Renderer) setTitleFace(dc *gg.Context) {
	if r.titleFace != nil {
		dc.SetFontFace(r.titleFace)
	}
}

func participantLabel(p domain.ParticipantStanding) string {
	if p.LastUpdate.IsZero() {
		return p.DisplayName
	}
	return fmt.Sprintf("%s (Upd: %s)", p.DisplayName, p.LastUpdate.UTC().Format("2006-01-02 15:04"))
}

func encodePNG(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func loadFontFace(path string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font file: %w", err)
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parse TTF: %w", err)
	}
	return truetype.NewFace(parsed, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	}), nil
}
