package adapters

import (
	"context"
	"log"
	"time"

	"kmusic-audio-api/shared"
)

// Chords simulates chord detection.
type Chords struct {
	Delay  time.Duration
	Logger *log.Logger
}

func (*Chords) Kind() shared.JobKind { return shared.JobKindChordDetection }

func (*Chords) StartMessage(Input) string { return "starting chord detection" }

func (c *Chords) Run(ctx context.Context, in Input, report ProgressFunc) (shared.Result, error) {
	loggerOrDefault(c.Logger).Printf("INFO: Simulating chord detection for %s", in.FilePath)
	if err := sleep(ctx, c.Delay); err != nil {
		return nil, err
	}
	if err := report("chord detection complete", 100); err != nil {
		return nil, err
	}
	return shared.ChordsResult{
		FileID: in.JobID,
		Chords: []shared.ChordEvent{
			{Time: 0.0, Chord: "Cmaj"},
			{Time: 2.0, Chord: "Gmaj"},
			{Time: 4.0, Chord: "Am"},
			{Time: 6.0, Chord: "Fmaj"},
		},
	}, nil
}
