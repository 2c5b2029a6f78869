package ingest

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"smartalerts/internal/config"
)

// StartFileTail follows each configured file and evaluates every complete
// line as a JSON record or record array.
func StartFileTail(ctx context.Context, cfg config.FileTailConfig, checker Checker, logger zerolog.Logger) {
	if !cfg.Enabled {
		logger.Info().Msg("file tail ingest disabled")
		return
	}
	for _, path := range cfg.Files {
		logger.Info().Str("path", path).Bool("start_at_end", cfg.StartAtEnd).Msg("file tail ingest enabled")
		go TailFile(ctx, path, cfg.StartAtEnd, checker, logger)
	}
}

// TailFile blocks until ctx ends. A file that shrinks is reopened from
// the start.
func TailFile(ctx context.Context, path string, startAtEnd bool, checker Checker, logger zerolog.Logger) {
	log := logger.With().Str("path", path).Logger()
	var file *os.File
	var offset int64
	for {
		select {
		case <-ctx.Done():
			if file != nil {
				_ = file.Close()
			}
			return
		default:
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				log.Warn().Err(err).Msg("tail open failed")
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file = f
			offset = 0
			if startAtEnd {
				if pos, err := file.Seek(0, io.SeekEnd); err == nil {
					offset = pos
				}
			}
		}

		reader := bufio.NewReader(file)
		var partial string
		for {
			chunk, err := reader.ReadString('\n')
			if err != nil {
				partial += chunk
				if err != io.EOF {
					log.Warn().Err(err).Msg("tail read error")
					_ = file.Close()
					file = nil
					break
				}
				if !BackoffSleep(ctx, 200*time.Millisecond) {
					_ = file.Close()
					return
				}
				info, statErr := os.Stat(path)
				if statErr == nil && info.Size() < offset {
					_ = file.Close()
					file = nil
					startAtEnd = false
					break
				}
				continue
			}
			line := partial + chunk
			partial = ""
			offset += int64(len(line))
			if strings.TrimSpace(line) == "" {
				continue
			}
			evaluate(ctx, checker, "file_tail", []byte(line), log)
		}
	}
}
