package devarchive

import (
	"errors"
	"fmt"

	"github.com/meigma/devarchive/internal/serial"
)

// ResourceHeader is the fixed record at the start of every named resource.
// *DataHeader and *RenderPassHeader implement it.
type ResourceHeader interface {
	Category() ChunkType
	DecodeFrom(buf []byte) error
	EncodedSize() int
}

// DecodeFunc decodes the backend-independent payload that follows a
// resource's header. It must consume r exactly to its end.
type DecodeFunc[H any] func(name string, hdr *H, r *PayloadReader) error

// Resource is a named resource read through the typed loader.
type Resource[H any] struct {
	Category ChunkType
	Name     string
	Region   Region
	Header   H

	// Payload holds the bytes following the header.
	Payload []byte
}

// LoadResource looks up name in category, decodes its header, checks the
// stored category tag and hands the remaining bytes to decode. A nil decode
// takes the payload verbatim.
//
// Every resource is read into a fresh allocation; the returned Resource
// shares no memory with the archive.
func LoadResource[H any, PH interface {
	*H
	ResourceHeader
}](a *Archive, category ChunkType, name string, decode DecodeFunc[H]) (*Resource[H], error) {
	fail := func(err error) (*Resource[H], error) {
		return nil, &ResourceError{Op: "load", Category: category, Name: name, Err: err}
	}

	if !category.IsNamed() {
		return fail(ErrUnknownCategory)
	}
	region, ok := a.resources.Lookup(category, name)
	if !ok {
		return fail(ErrResourceNotFound)
	}

	res := &Resource[H]{Category: category, Name: name, Region: region}
	hdr := PH(&res.Header)
	data, err := a.readHeader(region, hdr)
	if err != nil {
		return fail(err)
	}
	if got := hdr.Category(); got != category {
		return fail(fmt.Errorf("%w: stored tag %q", ErrCategoryMismatch, got))
	}

	res.Payload = data[hdr.EncodedSize():]
	r := serial.NewReader(res.Payload)
	if decode == nil {
		r.Rest()
	} else if err := decode(name, &res.Header, r); err != nil {
		if errors.Is(err, serial.ErrOverrun) {
			return fail(errors.Join(ErrTruncatedPayload, err))
		}
		return fail(err)
	}
	if !r.Done() {
		return fail(fmt.Errorf("%w: %d of %d payload bytes left unread", ErrTruncatedPayload, r.Remaining(), r.Len()))
	}
	return res, nil
}

// LoadSignature loads a resource signature.
func (a *Archive) LoadSignature(name string, decode DecodeFunc[DataHeader]) (*Resource[DataHeader], error) {
	return LoadResource(a, ChunkResourceSignature, name, decode)
}

// LoadPipeline loads a pipeline state of one of the pipeline categories.
func (a *Archive) LoadPipeline(category ChunkType, name string, decode DecodeFunc[DataHeader]) (*Resource[DataHeader], error) {
	if !category.IsPipeline() {
		return nil, &ResourceError{Op: "load", Category: category, Name: name, Err: ErrUnknownCategory}
	}
	return LoadResource(a, category, name, decode)
}

// LoadRenderPass loads a render pass.
func (a *Archive) LoadRenderPass(name string, decode DecodeFunc[RenderPassHeader]) (*Resource[RenderPassHeader], error) {
	return LoadResource(a, ChunkRenderPass, name, decode)
}

// GetDeviceSpecificData returns dev's payload referenced by hdr. ok is false,
// with a nil error, when hdr has no payload for dev.
func (a *Archive) GetDeviceSpecificData(dev DeviceType, hdr *DataHeader, expected ChunkType) (data []byte, ok bool, err error) {
	if err := checkDevice(dev); err != nil {
		return nil, false, err
	}
	if hdr.Type != expected {
		return nil, false, fmt.Errorf("%w: header tag %q, expected %q", ErrCategoryMismatch, hdr.Type, expected)
	}
	if !hdr.Has(dev) {
		return nil, false, nil
	}

	block := &a.devices[BlockOffsetTypeOf(dev)]
	if !block.valid() {
		return nil, false, fmt.Errorf("%w: %s payload referenced but the archive has no %s block", ErrNoDeviceData, expected, dev)
	}
	if hdr.EndOffset(dev) > uint64(block.length()) {
		return nil, false, outOfBounds("read "+dev.String()+" data", uint64(hdr.Offset(dev)), uint64(hdr.Size(dev)), uint64(block.length()))
	}
	data, err = block.read(hdr.Offset(dev), hdr.Size(dev))
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// DeviceRegion resolves dev's payload in hdr to an absolute region of the
// source. ok is false when the payload is absent or the device block no
// longer mirrors the source.
func (a *Archive) DeviceRegion(dev DeviceType, hdr *DataHeader) (Region, bool) {
	if !dev.Valid() || !hdr.Has(dev) {
		return Region{}, false
	}
	block := &a.devices[BlockOffsetTypeOf(dev)]
	if hdr.EndOffset(dev) > uint64(block.length()) {
		return Region{}, false
	}
	abs, ok := block.absolute(hdr.Offset(dev))
	if !ok {
		return Region{}, false
	}
	return Region{Offset: uint32(abs), Size: hdr.Size(dev)}, true //nolint:gosec // inside a 32-bit source
}

// readDataHeader decodes the data header of a resource region.
func (a *Archive) readDataHeader(region Region) (DataHeader, error) {
	var hdr DataHeader
	if _, err := a.readHeader(region, &hdr); err != nil {
		return DataHeader{}, err
	}
	return hdr, nil
}

// writeDataHeader stores hdr at the start of a resource region. The common
// block must be loaded.
func (a *Archive) writeDataHeader(region Region, hdr *DataHeader) error {
	buf := make([]byte, DataHeaderSize)
	hdr.EncodeTo(buf)
	return a.writeCommon(region.Offset, buf)
}
