package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Laperavee/Cielo-API/cielo/publish"
	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// rollingWriter appends edges to <prefix>_<n>.csv, starting a new file with a header row
// every batchSize edges.
type rollingWriter struct {
	dir       string
	prefix    string
	batchSize int
	logger    zerolog.Logger

	number int
	rows   int
	file   *os.File
	csv    *gocsv.SafeCSVWriter
}

func newRollingWriter(dir, prefix string, batchSize int, logger zerolog.Logger) *rollingWriter {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &rollingWriter{dir: dir, prefix: prefix, batchSize: batchSize, logger: logger}
}

func (w *rollingWriter) fileName(number int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%d.csv", w.prefix, number))
}

func (w *rollingWriter) rotate() error {
	if err := w.closeFile(); err != nil {
		return err
	}

	w.number++
	name := w.fileName(w.number)
	f, err := os.Create(name)
	if err != nil {
		return errors.Wrapf(err, "creating %s", name)
	}
	w.file = f
	w.csv = gocsv.NewSafeCSVWriter(csv.NewWriter(f))
	w.rows = 0
	w.logger.Info().Str("file", name).Msg("writing edges")
	return nil
}

func (w *rollingWriter) Write(edge publish.GraphEdge) error {
	if w.file == nil || w.rows >= w.batchSize {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	rows := []publish.GraphEdge{edge}
	var err error
	if w.rows == 0 {
		err = gocsv.MarshalCSV(rows, w.csv)
	} else {
		err = gocsv.MarshalCSVWithoutHeaders(rows, w.csv)
	}
	if err != nil {
		return errors.Wrapf(err, "writing edge to %s", w.file.Name())
	}
	w.rows++
	return nil
}

func (w *rollingWriter) closeFile() error {
	if w.file == nil {
		return nil
	}
	w.csv.Flush()
	err := w.csv.Error()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.logger.Info().Str("file", w.file.Name()).Int("edges", w.rows).Msg("file closed")
	w.file, w.csv = nil, nil
	return errors.Wrap(err, "closing csv file")
}

func (w *rollingWriter) Close() error {
	return w.closeFile()
}
