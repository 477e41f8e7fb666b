package components

import (
	"fmt"
	"math"
	"strings"
)

// chartBlocks are the fill levels of one cell, empty to full.
var chartBlocks = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// limitRune marks the limit line in cells the data does not reach.
const limitRune = '─'

const chartLabelWidth = 8

// ChartOptions configures RenderChart.
type ChartOptions struct {
	Title string
	// Format renders axis labels and the title summary.
	Format func(float64) string
	// Limit, when positive, is drawn as a horizontal line and kept in
	// range. The detail view uses the frame interval.
	Limit float64
}

// RenderChart renders values (oldest first) as a block chart of the given
// total size. The first line holds the title and a last/max summary.
func RenderChart(data []float64, width, height int, opts ChartOptions) string {
	width = max(width, 10)
	height = max(height, 4)
	format := opts.Format
	if format == nil {
		format = func(v float64) string { return fmt.Sprintf("%.0f", v) }
	}

	plotWidth := max(width-chartLabelWidth, 2)
	plotHeight := max(height-1, 2)
	if len(data) > plotWidth {
		data = data[len(data)-plotWidth:]
	}

	title := opts.Title
	if n := len(data); n > 0 {
		title = fmt.Sprintf("%s  last %s  max %s", opts.Title, format(data[n-1]), format(maxOf(data)))
	}
	lines := []string{centerText(title, width)}

	lo, hi := chartScale(data, opts.Limit)
	step := (hi - lo) / float64(plotHeight)

	for row := plotHeight - 1; row >= 0; row-- {
		bottom := lo + step*float64(row)
		top := bottom + step

		label := strings.Repeat(" ", chartLabelWidth)
		if len(data) > 0 || opts.Limit > 0 {
			label = fmt.Sprintf("%7s ", format(top))
			if len(label) > chartLabelWidth {
				label = label[len(label)-chartLabelWidth:]
			}
		}

		onLimit := opts.Limit > 0 && opts.Limit > bottom && opts.Limit <= top
		var b strings.Builder
		b.WriteString(label)
		for range plotWidth - len(data) {
			if onLimit {
				b.WriteRune(limitRune)
			} else {
				b.WriteByte(' ')
			}
		}
		for _, v := range data {
			r := cellRune(v, bottom, top)
			if r == ' ' && onLimit {
				r = limitRune
			}
			b.WriteRune(r)
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

// chartScale returns the value range of the plot. It starts at zero for
// non-negative data and always includes limit.
func chartScale(data []float64, limit float64) (lo, hi float64) {
	if len(data) > 0 {
		lo, hi = data[0], data[0]
		for _, v := range data {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	if limit > 0 {
		hi = max(hi, limit)
	}
	lo = min(lo, 0)
	if hi == lo {
		hi = lo + 1
	}
	return lo, hi
}

// cellRune returns the block showing how much of [bottom, top) v fills.
func cellRune(v, bottom, top float64) rune {
	switch {
	case v <= bottom:
		return ' '
	case v >= top:
		return chartBlocks[len(chartBlocks)-1]
	}
	idx := int(math.Round((v - bottom) / (top - bottom) * 8))
	return chartBlocks[min(max(idx, 0), 8)]
}

func maxOf(data []float64) float64 {
	m := data[0]
	for _, v := range data[1:] {
		m = max(m, v)
	}
	return m
}

// centerText centers s within the given width, padding with spaces.
func centerText(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	pad := (width - len(s)) / 2
	return strings.Repeat(" ", pad) + s + strings.Repeat(" ", width-len(s)-pad)
}
