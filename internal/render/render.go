package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"umapembed/internal/clustering"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// DPI is the resolution the figures are laid out at. Pixel sizes are exact
// regardless of this value; it only scales fonts and glyphs.
const DPI = 150

// NoiseLabel marks points that belong to no cluster. It is the label
// clustering assigns to noise, so clusterer output can be plotted as is.
const NoiseLabel = clustering.NoiseLabel

var noiseColor = color.RGBA{R: 190, G: 190, B: 190, A: 255}

// PlotOptions controls a scatter plot of an embedding.
type PlotOptions struct {
	Width  int // pixels
	Height int // pixels
	Title  string
	// Labels colours points by cluster when set; NoiseLabel points are grey.
	Labels []int
}

// Embedding draws the first two coordinates of every point as a scatter plot
// and writes it as a PNG of exactly Width x Height pixels to path.
func Embedding(coords [][]float64, opts PlotOptions, path string) error {
	if len(coords) == 0 {
		return errors.New("no points to plot")
	}
	if len(coords[0]) < 2 {
		return fmt.Errorf("need at least 2 coordinates per point, got %d", len(coords[0]))
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("invalid plot size %dx%d", opts.Width, opts.Height)
	}
	if opts.Labels != nil && len(opts.Labels) != len(coords) {
		return fmt.Errorf("got %d labels for %d points", len(opts.Labels), len(coords))
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "UMAP_1"
	p.Y.Label.Text = "UMAP_2"

	groups := groupByLabel(coords, opts.Labels)
	for _, label := range sortedLabels(groups) {
		s, err := plotter.NewScatter(groups[label])
		if err != nil {
			return fmt.Errorf("failed to build scatter: %w", err)
		}
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(1.5)
		s.GlyphStyle.Color = glyphColor(label, opts.Labels != nil)
		p.Add(s)
	}

	return savePNG(p, opts.Width, opts.Height, path)
}

func glyphColor(label int, labelled bool) color.Color {
	switch {
	case !labelled:
		return color.RGBA{R: 50, G: 50, B: 200, A: 255}
	case label == NoiseLabel:
		return noiseColor
	default:
		return plotutil.Color(label)
	}
}

func groupByLabel(coords [][]float64, labels []int) map[int]plotter.XYs {
	groups := make(map[int]plotter.XYs)
	for i, c := range coords {
		label := 0
		if labels != nil {
			label = labels[i]
		}
		groups[label] = append(groups[label], plotter.XY{X: c[0], Y: c[1]})
	}
	return groups
}

// sortedLabels puts noise first so clusters are drawn over it.
func sortedLabels(groups map[int]plotter.XYs) []int {
	labels := make([]int, 0, len(groups))
	for l := range groups {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// savePNG draws p onto a canvas backed by an image of the requested size.
func savePNG(p *plot.Plot, width, height int, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create figure directory: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	c := vgimg.NewWith(vgimg.UseDPI(DPI), vgimg.UseImage(img))
	p.Draw(draw.New(c))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create figure %s: %w", path, err)
	}
	defer f.Close()

	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		return fmt.Errorf("failed to write figure %s: %w", path, err)
	}
	return f.Close()
}
