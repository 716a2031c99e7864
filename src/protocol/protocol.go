// Package protocol defines the line-oriented event stream a tracker writes on
// stdout and the exit codes it terminates with.
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Prefix starts every event line.
const Prefix = "TILE_CLICKED"

// maxLineBytes bounds a single line; stray diagnostics longer than this are
// skipped rather than aborting the scan.
const maxLineBytes = 64 * 1024

// CellEvent is a resolved grid-cell hit.
type CellEvent struct {
	Col int `json:"col"`
	Row int `json:"row"`
	X   int `json:"x"`
	Y   int `json:"y"`
}

// Format renders e without the trailing newline.
func Format(e CellEvent) string {
	return fmt.Sprintf("%s %d %d %d %d", Prefix, e.Col, e.Row, e.X, e.Y)
}

// Parse accepts exactly "TILE_CLICKED <col> <row> <x> <y>". col and row must
// be non-negative; x and y may be negative on displays left of or above the
// primary one.
func Parse(line string) (CellEvent, bool) {
	fields := strings.Fields(line)
	if len(fields) != 5 || fields[0] != Prefix {
		return CellEvent{}, false
	}

	var nums [4]int
	for i, f := range fields[1:] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return CellEvent{}, false
		}
		nums[i] = n
	}
	if nums[0] < 0 || nums[1] < 0 {
		return CellEvent{}, false
	}

	return CellEvent{Col: nums[0], Row: nums[1], X: nums[2], Y: nums[3]}, true
}

// Writer emits one event per line and flushes after each, so a line-buffered
// reader on the other end of the pipe sees every click promptly.
type Writer struct {
	mu sync.Mutex
	bw *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

func (w *Writer) Write(e CellEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.bw.WriteString(Format(e)); err != nil {
		return err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return err
	}
	return w.bw.Flush()
}

// Scan reads r line by line until EOF, invoking fn for every event line and
// skip (when non-nil) for every other line. Unrecognized lines are never
// fatal.
func Scan(r io.Reader, fn func(CellEvent), skip func(line string)) error {
	br := bufio.NewReaderSize(r, 4096)
	for {
		line, err := readLine(br)
		if line != "" {
			if e, ok := Parse(line); ok {
				fn(e)
			} else if skip != nil {
				skip(line)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func readLine(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	overflow := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if !overflow {
			if sb.Len()+len(chunk) > maxLineBytes {
				overflow = true
				sb.Reset()
			} else {
				sb.Write(chunk)
			}
		}
		if err != nil {
			return sb.String(), err
		}
		if !isPrefix {
			break
		}
	}
	return strings.TrimRight(sb.String(), "\r"), nil
}
