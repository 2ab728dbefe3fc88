package adapters

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"kmusic-audio-api/shared"
)

// StemTypes are the stems a separation model can produce.
var StemTypes = map[string]bool{
	"vocals":        true,
	"accompaniment": true,
	"drums":         true,
	"bass":          true,
	"piano":         true,
	"other":         true,
}

// Stems simulates source separation by writing a placeholder stem file to
// <stems_dir>/<job_id>/audio_<stem_type>.wav.
type Stems struct {
	Storage *shared.FileStorage
	Delay   time.Duration
	Logger  *log.Logger
}

func (*Stems) Kind() shared.JobKind { return shared.JobKindStemSeparation }

func (*Stems) StartMessage(in Input) string {
	return fmt.Sprintf("starting %s separation", in.Param(shared.ParamStemType, shared.DefaultStemType))
}

func (s *Stems) Run(ctx context.Context, in Input, report ProgressFunc) (shared.Result, error) {
	stem := in.Param(shared.ParamStemType, shared.DefaultStemType)
	if !StemTypes[stem] {
		return nil, errors.Errorf("unsupported stem type %q", stem)
	}

	outDir := s.Storage.StemDir(in.JobID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create stem directory")
	}

	loggerOrDefault(s.Logger).Printf("INFO: Simulating %s separation for %s", stem, in.FilePath)
	if err := sleep(ctx, s.Delay); err != nil {
		return nil, err
	}

	outPath := filepath.Join(outDir, fmt.Sprintf("audio_%s.wav", stem))
	data := fmt.Sprintf("placeholder %s audio data for %s", stem, filepath.Base(in.FilePath))
	if err := os.WriteFile(outPath, []byte(data), 0o644); err != nil {
		return nil, errors.Wrapf(err, "write stem")
	}
	if err := report(fmt.Sprintf("%s separation complete", stem), 100); err != nil {
		return nil, err
	}
	return shared.StemsResult{FileID: in.JobID, StemType: stem, StemPath: outPath}, nil
}
