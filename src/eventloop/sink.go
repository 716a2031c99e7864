package eventloop

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"rodspot/src/protocol"
)

// Sink receives what the host reports to its user.
type Sink interface {
	Cell(e protocol.CellEvent) error
	// Notice reports a condition the user has to act on.
	Notice(msg string)
}

// TextSink re-emits the tracker's own line format.
type TextSink struct {
	w *protocol.Writer
}

func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: protocol.NewWriter(w)}
}

func (s *TextSink) Cell(e protocol.CellEvent) error { return s.w.Write(e) }

func (s *TextSink) Notice(msg string) { log.Printf("rodspot: %s", msg) }

// JSONSink writes one JSON object per line.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

type jsonLine struct {
	Type string `json:"type"`
	*protocol.CellEvent
	Message string `json:"message,omitempty"`
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (s *JSONSink) Cell(e protocol.CellEvent) error {
	return s.encode(jsonLine{Type: "tile_clicked", CellEvent: &e})
}

func (s *JSONSink) Notice(msg string) {
	log.Printf("rodspot: %s", msg)
	if err := s.encode(jsonLine{Type: "notice", Message: msg}); err != nil {
		log.Printf("rodspot: writing notice: %v", err)
	}
}

func (s *JSONSink) encode(v jsonLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", v.Type, err)
	}
	return nil
}
