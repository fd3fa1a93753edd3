package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"lwir-compressor/internal/codec"
)

// ArchiveName is the single-file archive written in archive mode.
const ArchiveName = "frames.lwa"

// archiveWriter streams frame records through one zstd frame into a
// single file.
type archiveWriter struct {
	f  *os.File
	zw *zstd.Encoder
}

func newArchiveWriter(path string) (*archiveWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive %s: %w", path, err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	return &archiveWriter{f: f, zw: zw}, nil
}

func (w *archiveWriter) WriteRecord(rec *codec.Record) error {
	if _, err := rec.WriteTo(w.zw); err != nil {
		return err
	}
	return nil
}

func (w *archiveWriter) Close() error {
	zerr := w.zw.Close()
	ferr := w.f.Close()
	if zerr != nil {
		return fmt.Errorf("close zstd writer: %w", zerr)
	}
	return ferr
}

// archiveReader iterates the records of an archive file.
type archiveReader struct {
	f  *os.File
	zr *zstd.Decoder
}

func newArchiveReader(path string) (*archiveReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open zstd reader: %w", err)
	}
	return &archiveReader{f: f, zr: zr}, nil
}

// Next returns the next record, or io.EOF at the end of the archive.
func (r *archiveReader) Next() (*codec.Record, error) {
	rec, err := codec.ReadRecord(r.zr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return rec, nil
}

func (r *archiveReader) Close() error {
	r.zr.Close()
	return r.f.Close()
}
