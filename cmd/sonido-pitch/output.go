package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
	"github.com/RyanBlaney/sonido-pitch/algorithms/tonal"
	"github.com/RyanBlaney/sonido-pitch/pipeline"
)

// printer writes one line per result. Results may arrive out of order from
// several workers; each line carries its sequence number and frame time.
type printer struct {
	mu         sync.Mutex
	w          io.Writer
	json       bool
	hopSeconds float64
	quiet      bool // skip frames with nothing detected
}

type jsonLine struct {
	Seq        uint64    `json:"seq"`
	Time       float64   `json:"time"`
	Algorithm  string    `json:"algorithm"`
	Routed     string    `json:"routed"`
	Status     string    `json:"status"`
	Pitch      float64   `json:"pitch,omitempty"`
	Note       string    `json:"note,omitempty"`
	Pitches    []float64 `json:"pitches,omitempty"`
	Confidence float64   `json:"confidence"`
	RMS        float64   `json:"rms"`
	Error      string    `json:"error,omitempty"`
}

func (p *printer) Handle(_ context.Context, r pipeline.Result) {
	status := r.Status()
	if p.quiet && status != pipeline.StatusPitch && status != pipeline.StatusChord {
		return
	}

	var line string
	if p.json {
		line = p.formatJSON(r)
	} else {
		line = p.formatText(r)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, line)
}

func (p *printer) frameTime(seq uint64) float64 {
	return float64(seq) * p.hopSeconds
}

func (p *printer) formatText(r pipeline.Result) string {
	d := r.Detection
	head := fmt.Sprintf("%6d %9.3fs %-6s", r.Seq, p.frameTime(r.Seq), d.Routed)

	switch r.Status() {
	case pipeline.StatusError:
		return fmt.Sprintf("%s error: %v", head, r.Err)
	case pipeline.StatusGated:
		return fmt.Sprintf("%s gated", head)
	case pipeline.StatusNone:
		return fmt.Sprintf("%s -", head)
	case pipeline.StatusChord:
		notes := make([]string, len(d.Chord.Pitches))
		for i, f := range d.Chord.Pitches {
			name, _ := common.NoteName(f)
			notes[i] = fmt.Sprintf("%s(%.1f)", name, f)
		}
		return fmt.Sprintf("%s %s conf=%.2f", head, strings.Join(notes, " "), d.Chord.Confidence)
	default:
		name, cents := common.NoteName(d.Pitch.Pitch)
		return fmt.Sprintf("%s %8.2f Hz %-4s %+5.1fc conf=%.2f", head, d.Pitch.Pitch, name, cents, d.Pitch.Confidence)
	}
}

func (p *printer) formatJSON(r pipeline.Result) string {
	d := r.Detection
	out := jsonLine{
		Seq:       r.Seq,
		Time:      p.frameTime(r.Seq),
		Algorithm: d.Algorithm.String(),
		Routed:    d.Routed.String(),
		Status:    r.Status(),
		RMS:       d.RMS,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	// every detected frame lists its pitches, one for the single-pitch detectors
	chord := d.Chord
	if !d.IsChord() {
		chord = tonal.ChordFromPitch(d.Pitch)
		if d.Pitch.HasPitch() {
			out.Pitch = d.Pitch.Pitch
			out.Note, _ = common.NoteName(d.Pitch.Pitch)
		}
	}
	out.Pitches = chord.Pitches
	out.Confidence = chord.Confidence

	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf(`{"seq":%d,"error":%q}`, r.Seq, err.Error())
	}
	return string(b)
}
