package feed

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

const maxLineBytes = 4 << 20

// FileSource replays ticks from a JSON Lines file, one tick per line.
type FileSource struct {
	path string
	log  *zap.Logger
}

// NewFileSource creates a replay source.
func NewFileSource(path string, log *zap.Logger) *FileSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileSource{path: path, log: log}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file:" + s.path }

// Run implements Source. It returns nil once the file is exhausted.
func (s *FileSource) Run(ctx context.Context, handle Handler) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open replay file: %w", err)
	}
	defer f.Close()

	n, err := ReadTicks(ctx, f, handle)
	s.log.Info("[Replay] finished", zap.String("path", s.path), zap.Int("ticks", n))
	return err
}

// ReadTicks feeds every non-blank line of r to handle and returns the number
// of ticks handled. Malformed lines are errors; replay data is expected to be
// clean.
func ReadTicks(ctx context.Context, r io.Reader, handle Handler) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	n, line := 0, 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return n, err
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		in, err := DecodeTick(data)
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if err := handle(in); err != nil {
			return n, err
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("failed to read ticks: %w", err)
	}
	return n, nil
}
