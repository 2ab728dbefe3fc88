// Package adapters defines the contract for the long-running audio
// analysis operations and ships simulated implementations of them.
package adapters

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"kmusic-audio-api/shared"
)

// ProgressFunc reports an intermediate status message and percent.
type ProgressFunc func(message string, percent int) error

// Input is what an adapter gets to work on.
type Input struct {
	JobID    string
	FilePath string
	Params   map[string]string
}

// Param returns the named parameter or def when it is unset.
func (in Input) Param(name, def string) string {
	if v, ok := in.Params[name]; ok && v != "" {
		return v
	}
	return def
}

// Adapter runs one kind of analysis. Run may take seconds to minutes and
// must return promptly once ctx is done.
type Adapter interface {
	Kind() shared.JobKind
	StartMessage(in Input) string
	Run(ctx context.Context, in Input, report ProgressFunc) (shared.Result, error)
}

// Registry maps job kinds to adapters.
type Registry map[shared.JobKind]Adapter

// NewRegistry indexes adapters by their kind.
func NewRegistry(as ...Adapter) Registry {
	return lo.KeyBy(as, func(a Adapter) shared.JobKind { return a.Kind() })
}

// Lookup returns the adapter for kind.
func (r Registry) Lookup(kind shared.JobKind) (Adapter, error) {
	a, ok := r[kind]
	if !ok {
		return nil, errors.Errorf("no adapter registered for job kind %q", kind)
	}
	return a, nil
}

// Kinds lists registered kinds in a stable order.
func (r Registry) Kinds() []shared.JobKind {
	kinds := lo.Keys(map[shared.JobKind]Adapter(r))
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Simulated returns the stand-in adapters for all three job kinds. A nil
// logger uses the standard logger.
func Simulated(storage *shared.FileStorage, delay time.Duration, logger *log.Logger) Registry {
	return NewRegistry(
		&Lyrics{Delay: delay, Logger: logger},
		&Chords{Delay: delay, Logger: logger},
		&Stems{Storage: storage, Delay: delay, Logger: logger},
	)
}

func loggerOrDefault(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
