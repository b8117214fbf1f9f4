package chart

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/progress/internal/catalog"
	"example.com/progress/internal/domain"
)

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func sampleCatalog(t *testing.T) (catalog.Exercise, catalog.Exercise) {
	t.Helper()
	cat := catalog.Default()
	pushup, ok := cat.Get("pushup")
	require.True(t, ok)
	plank, ok := cat.Get("plank")
	require.True(t, ok)
	return pushup, plank
}

func TestPersonalChartDimensions(t *testing.T) {
	pushup, plank := sampleCatalog(t)

	renderer, err := NewRenderer(Options{Width: 600})
	require.NoError(t, err)

	summaries := []domain.ExerciseSummary{
		{Exercise: pushup, Total: 250, Goal: pushup.Goal},
		{Exercise: plank, Total: 310, Goal: plank.Goal, Crossed: true},
	}

	data, err := renderer.PersonalChart("Dana", summaries)
	require.NoError(t, err)

	img := decode(t, data)
	require.Equal(t, 600, img.Bounds().Dx())
	expectedHeight := marginY*2 + rowHeight + len(summaries)*rowHeight
	require.Equal(t, expectedHeight, img.Bounds().Dy())
}

func TestPersonalChartBarColors(t *testing.T) {
	pushup, plank := sampleCatalog(t)

	renderer, err := NewRenderer(Options{})
	require.NoError(t, err)

	summaries := []domain.ExerciseSummary{
		{Exercise: pushup, Total: 250, Goal: pushup.Goal},
		{Exercise: plank, Total: 310, Goal: plank.Goal, Crossed: true},
	}

	data, err := renderer.PersonalChart("", summaries)
	require.NoError(t, err)
	img := decode(t, data)

	require.True(t, containsColor(img, colorInProgress), "expected an in-progress bar")
	require.True(t, containsColor(img, colorAchieved), "expected an achieved bar")
}

func TestGroupChartRendersParticipants(t *testing.T) {
	pushup, _ := sampleCatalog(t)

	renderer, err := NewRenderer(Options{})
	require.NoError(t, err)

	standings := []domain.ExerciseStandings{
		{
			Exercise: pushup,
			Participants: []domain.ParticipantStanding{
				{UserID: 1, DisplayName: "@dana", Total: 520, Goal: pushup.Goal, Crossed: true, LastUpdate: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)},
				{UserID: 2, DisplayName: "User 2", Total: 40, Goal: pushup.Goal},
			},
		},
	}

	data, err := renderer.GroupChart(standings)
	require.NoError(t, err)
	img := decode(t, data)

	require.Equal(t, defaultWidth, img.Bounds().Dx())
	require.True(t, containsColor(img, colorAchieved))
	require.True(t, containsColor(img, colorInProgress))
}

func TestGroupChartEmptyStandings(t *testing.T) {
	renderer, err := NewRenderer(Options{})
	require.NoError(t, err)

	data, err := renderer.GroupChart(nil)
	require.NoError(t, err)
	img := decode(t, data)
	require.Positive(t, img.Bounds().Dy())
}

func TestNewRendererMissingFont(t *testing.T) {
	_, err := NewRenderer(Options{FontPath: "/nonexistent/font.ttf"})
	require.Error(t, err)
}

func containsColor(img image.Image, want color.NRGBA) bool {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if uint8(r>>8) == want.R && uint8(g>>8) == want.G && uint8(b>>8) == want.B && uint8(a>>8) == want.A {
				return true
			}
		}
	}
	return false
}
