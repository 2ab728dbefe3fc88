package adapters

import (
	"context"
	"log"
	"time"

	"kmusic-audio-api/shared"
)

// sampleLyrics is synchronized LRC text with inline chords, returned in
// place of real speech-to-text output.
const sampleLyrics = `[00:01.23]Hello, this is a test
[00:04.56]Of lyric synchronization.
[00:07.89]I hope it works well.
[00:10.11]With [C]inline [G]chords too.
[00:13.45]And [Am]other [F]lines.
`

// Lyrics simulates transcribing vocals into LRC lyrics.
type Lyrics struct {
	Delay  time.Duration
	Logger *log.Logger
}

func (*Lyrics) Kind() shared.JobKind { return shared.JobKindTranscription }

func (*Lyrics) StartMessage(Input) string { return "starting transcription" }

func (l *Lyrics) Run(ctx context.Context, in Input, report ProgressFunc) (shared.Result, error) {
	loggerOrDefault(l.Logger).Printf("INFO: Simulating transcription for %s", in.FilePath)
	if err := sleep(ctx, l.Delay); err != nil {
		return nil, err
	}
	if err := report("transcription complete", 50); err != nil {
		return nil, err
	}
	return shared.LyricsResult{FileID: in.JobID, Lyrics: sampleLyrics}, nil
}
