// Package display reads monitor geometry and captures grid snapshots, in the
// same absolute virtual-desktop coordinates the tracker uses.
package display

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/kbinani/screenshot"

	"rodspot/src/grid"
)

var ErrNoDisplay = errors.New("no active displays found")

// Count returns the number of active displays.
func Count() int {
	return screenshot.NumActiveDisplays()
}

// Bounds returns display index's rectangle. Index 0 is the primary display.
func Bounds(index int) (grid.Rect, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return grid.Rect{}, ErrNoDisplay
	}
	if index < 0 || index >= n {
		return grid.Rect{}, fmt.Errorf("display %d out of range (have %d)", index, n)
	}
	return fromImage(screenshot.GetDisplayBounds(index)), nil
}

// Virtual returns the union of all active displays.
func Virtual() (grid.Rect, error) {
	all := displays()
	if len(all) == 0 {
		return grid.Rect{}, ErrNoDisplay
	}
	return fromImage(union(all)), nil
}

// Visible reports whether any part of r lies on an active display.
func Visible(r grid.Rect) bool {
	return intersectsAny(r, displays())
}

func displays() []image.Rectangle {
	n := screenshot.NumActiveDisplays()
	out := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, screenshot.GetDisplayBounds(i))
	}
	return out
}

func union(rs []image.Rectangle) image.Rectangle {
	var u image.Rectangle
	for i, r := range rs {
		if i == 0 {
			u = r
			continue
		}
		u = u.Union(r)
	}
	return u
}

func intersectsAny(r grid.Rect, rs []image.Rectangle) bool {
	if !r.Valid() {
		return false
	}
	ir := toImage(r)
	for _, d := range rs {
		if ir.Overlaps(d) {
			return true
		}
	}
	return false
}

func fromImage(r image.Rectangle) grid.Rect {
	return grid.Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func toImage(r grid.Rect) image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Snapshot captures r and draws the 15x11 cell borders over it, as PNG.
func Snapshot(r grid.Rect) ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid region dimensions: width=%d, height=%d", r.Width, r.Height)
	}

	img, err := screenshot.CaptureRect(toImage(r))
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %v", err)
	}
	drawGrid(img, grid.Columns, grid.Rows)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %v", err)
	}
	return buf.Bytes(), nil
}

var gridColor = color.RGBA{R: 255, G: 0, B: 255, A: 255}

// drawGrid marks the first pixel column/row of every cell after the first,
// so each line sits exactly where grid.Resolve moves to the next cell.
func drawGrid(img *image.RGBA, columns, rows int) {
	b := img.Bounds()
	for _, x := range cellEdges(b.Dx(), columns) {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			img.SetRGBA(b.Min.X+x, y, gridColor)
		}
	}
	for _, y := range cellEdges(b.Dy(), rows) {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, b.Min.Y+y, gridColor)
		}
	}
}

// cellEdges returns, for cells 1..n-1, the smallest offset o with
// o*n/size >= cell, i.e. ceil(cell*size/n).
func cellEdges(size, n int) []int {
	if size <= 0 || n <= 1 {
		return nil
	}
	edges := make([]int, 0, n-1)
	for c := 1; c < n; c++ {
		edges = append(edges, (c*size+n-1)/n)
	}
	return edges
}
