package devarchive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/devarchive/internal/layout"
	"github.com/meigma/devarchive/internal/sizing"
)

var errArchiveTooLarge = errors.New("devarchive: archive exceeds 4GB offset range")

// namedData is one resource to be written: its header followed by its
// backend-independent payload.
type namedData struct {
	name string
	data []byte
}

// blockData is a device block to be written.
type blockData interface {
	length() uint32
	contents() ([]byte, error)
}

// linearInput is the archive state handed to linearize.
type linearInput struct {
	chunks    []ChunkType
	named     [layout.ChunkCount][]namedData // sorted by name
	shaders   *DataHeader
	debugInfo *DebugInfo
	blocks    [layout.BlockCount]blockData // nil or empty for absent blocks
}

// linearize writes in to w in canonical order: header, chunk table, each
// chunk's record followed by its resources, then device blocks in slot
// order. Every offset is computed from the write cursor.
func linearize(in *linearInput, w io.Writer) (int64, error) {
	hdr := layout.NewArchiveHeader()
	hdr.NumChunks = uint32(len(in.chunks)) //nolint:gosec // at most ChunkCount chunks

	cursor := uint64(layout.ArchiveHeaderSize) + uint64(len(in.chunks))*layout.ChunkHeaderSize
	chunks := make([]ChunkHeader, len(in.chunks))
	records := make([][]byte, len(in.chunks))
	var payloads [][]byte

	for i, t := range in.chunks {
		off, err := sizing.ToUint32(cursor, errArchiveTooLarge)
		if err != nil {
			return 0, err
		}
		rec, data, err := encodeChunk(in, t, &cursor)
		if err != nil {
			return 0, err
		}
		chunks[i] = ChunkHeader{Type: t, Size: uint32(len(rec)), Offset: off} //nolint:gosec // record sizes fit
		records[i] = rec
		payloads = append(payloads, data...)
	}

	blocks := make([][]byte, layout.BlockCount)
	for i, b := range in.blocks {
		if b == nil || b.length() == 0 {
			continue
		}
		data, err := b.contents()
		if err != nil {
			return 0, fmt.Errorf("read %s block: %w", BlockOffsetType(i), err)
		}
		cursor = sizing.AlignUp(cursor)
		base, err := sizing.ToUint32(cursor, errArchiveTooLarge)
		if err != nil {
			return 0, err
		}
		hdr.BlockBaseOffsets[i] = base
		blocks[i] = data
		cursor += uint64(len(data))
	}
	if _, err := sizing.ToUint32(cursor, errArchiveTooLarge); err != nil {
		return 0, err
	}

	cw := &countingWriter{w: w}
	buf := make([]byte, layout.ArchiveHeaderSize+len(chunks)*layout.ChunkHeaderSize)
	hdr.EncodeTo(buf)
	for i := range chunks {
		chunks[i].EncodeTo(buf[layout.ArchiveHeaderSize+i*layout.ChunkHeaderSize:])
	}
	cw.write(buf)

	next := 0
	for i, t := range in.chunks {
		cw.writeAligned(records[i])
		for range in.named[t] {
			cw.writeAligned(payloads[next])
			next++
		}
	}
	for _, data := range blocks {
		if data == nil {
			continue
		}
		cw.pad()
		cw.write(data)
	}
	return cw.n, cw.err
}

// encodeChunk returns the record of chunk t and the payloads that follow
// it, advancing cursor past both.
func encodeChunk(in *linearInput, t ChunkType, cursor *uint64) (record []byte, payloads [][]byte, err error) {
	switch {
	case t.IsNamed():
		items := in.named[t]
		entries := make([]layout.NamedEntry, len(items))
		for i, item := range items {
			entries[i] = layout.NamedEntry{Name: item.name}
		}
		dataStart := *cursor + uint64(layout.NamedResourcesSize(entries))
		for i, item := range items {
			off, err := sizing.ToUint32(dataStart, errArchiveTooLarge)
			if err != nil {
				return nil, nil, err
			}
			entries[i].Offset = off
			entries[i].Size = uint32(len(item.data)) //nolint:gosec // bounded by the offset check
			payloads = append(payloads, item.data)
			dataStart = sizing.AlignUp(dataStart + uint64(len(item.data)))
		}
		record = layout.EncodeNamedResources(entries)
		*cursor = dataStart
		return record, payloads, nil

	case t == ChunkShaders:
		if in.shaders == nil {
			return nil, nil, fmt.Errorf("%w: shaders chunk without a header", ErrMalformedHeader)
		}
		record = make([]byte, layout.DataHeaderSize)
		in.shaders.EncodeTo(record)

	case t == ChunkArchiveDebugInfo:
		if in.debugInfo == nil {
			return nil, nil, fmt.Errorf("%w: debug info chunk without a record", ErrMalformedHeader)
		}
		record, err = in.debugInfo.MarshalBinary()
		if err != nil {
			return nil, nil, err
		}

	default:
		return nil, nil, fmt.Errorf("%w: chunk type %d", ErrUnknownCategory, uint32(t))
	}
	*cursor += sizing.AlignUp(uint64(len(record)))
	return record, nil, nil
}

// countingWriter tracks bytes written and keeps the first error.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

var zeros [sizing.Align]byte

func (cw *countingWriter) write(p []byte) {
	if cw.err != nil {
		return
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	cw.err = err
}

func (cw *countingWriter) pad() {
	if rem := cw.n % sizing.Align; rem != 0 {
		cw.write(zeros[:sizing.Align-rem])
	}
}

func (cw *countingWriter) writeAligned(p []byte) {
	cw.write(p)
	cw.pad()
}

// linearInput captures the archive's current state.
func (a *Archive) linearInput() (*linearInput, error) {
	in := &linearInput{}
	for _, c := range a.chunks {
		in.chunks = append(in.chunks, c.Type)
		switch {
		case c.Type.IsNamed():
			for name, region := range a.resources.All(c.Type) {
				data, err := a.readCommon(region)
				if err != nil {
					return nil, &ResourceError{Op: "serialize", Category: c.Type, Name: name, Err: err}
				}
				in.named[c.Type] = append(in.named[c.Type], namedData{name: name, data: data})
			}
		case c.Type == ChunkShaders:
			hdr := a.shaders
			in.shaders = &hdr
		case c.Type == ChunkArchiveDebugInfo:
			info := a.debugInfo
			in.debugInfo = &info
		}
	}
	for i := range a.devices {
		if a.devices[i].valid() {
			in.blocks[i] = &a.devices[i]
		}
	}
	return in, nil
}

// Serialize writes the archive's current state to w in canonical layout and
// returns the number of bytes written. The result loads with Open and holds
// the same resources, payload bytes and device data.
//
// Serialize must not run concurrently with a mutation.
func (a *Archive) Serialize(w io.Writer) (int64, error) {
	in, err := a.linearInput()
	if err != nil {
		return 0, err
	}
	n, err := linearize(in, w)
	if err != nil {
		return n, fmt.Errorf("serialize: %w", err)
	}
	a.log().Debug("archive serialized", "bytes", n)
	return n, nil
}

// Bytes returns the serialized archive.
func (a *Archive) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := a.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile serializes the archive to path. The file is written to a
// temporary file in the same directory and renamed into place.
func (a *Archive) WriteFile(path string, opts ...WriteOption) (err error) {
	cfg := writeConfig{mode: 0o644}
	for _, opt := range opts {
		opt(&cfg)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".devarchive-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if cfg.compress {
		enc, encErr := zstd.NewWriter(tmp, zstd.WithEncoderLevel(cfg.level))
		if encErr != nil {
			return fmt.Errorf("create zstd encoder: %w", encErr)
		}
		if _, err = a.Serialize(enc); err != nil {
			enc.Close()
			return err
		}
		if err = enc.Close(); err != nil {
			return fmt.Errorf("flush zstd stream: %w", err)
		}
	} else if _, err = a.Serialize(tmp); err != nil {
		return err
	}

	if err = tmp.Chmod(cfg.mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
