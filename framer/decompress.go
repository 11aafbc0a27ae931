package framer

import (
	"compress/bzip2"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/lukemcguire/retriever/wireproto"
)

// Decompressor adapts a streaming decoder to the push-style BodySink
// contract: DeliverBody calls Write as bytes arrive off the wire, and
// Close once the body is exhausted. Per spec §9 the codec itself is an
// opaque external collaborator; this file only supplies the adapter and
// the stdlib-backed default for the codecs the standard library covers.
type Decompressor interface {
	io.WriteCloser
}

// identityDecompressor passes bytes straight through, used for
// Content-Encoding: identity (the common case) and as the fallback for a
// codec this build does not support.
type identityDecompressor struct {
	sink io.Writer
}

func (d *identityDecompressor) Write(p []byte) (int, error) { return d.sink.Write(p) }
func (d *identityDecompressor) Close() error                { return nil }

// pipeDecompressor turns a pull-based compress/* Reader into the push
// interface DeliverBody expects, by running the decoder in a goroutine fed
// through an io.Pipe.
type pipeDecompressor struct {
	pw   *io.PipeWriter
	done chan error
}

func newPipeDecompressor(sink io.Writer, open func(io.Reader) (io.Reader, error)) (*pipeDecompressor, error) {
	pr, pw := io.Pipe()
	d := &pipeDecompressor{pw: pw, done: make(chan error, 1)}

	go func() {
		reader, err := open(pr)
		if err != nil {
			pr.CloseWithError(err)
			d.done <- err
			return
		}
		_, copyErr := io.Copy(sink, reader)
		pr.CloseWithError(copyErr)
		d.done <- copyErr
	}()

	return d, nil
}

func (d *pipeDecompressor) Write(p []byte) (int, error) {
	return d.pw.Write(p)
}

func (d *pipeDecompressor) Close() error {
	closeErr := d.pw.Close()
	decodeErr := <-d.done
	if decodeErr != nil && decodeErr != io.EOF {
		return decodeErr
	}
	return closeErr
}

// NewDecompressor returns the Decompressor for the given Content-Encoding,
// writing decoded bytes to sink. LZMA has no standard-library decoder and
// no such decoder appears anywhere in the reference stack either, so it
// falls back to identity passthrough — callers that care can detect this
// via enc and surface a warning, matching the spec's "unsupported codec
// degrades to raw bytes" note.
func NewDecompressor(enc wireproto.ContentEncoding, sink io.Writer) (Decompressor, error) {
	switch enc {
	case wireproto.EncodingIdentity:
		return &identityDecompressor{sink: sink}, nil
	case wireproto.EncodingGzip:
		return newPipeDecompressor(sink, func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		})
	case wireproto.EncodingDeflate:
		return newPipeDecompressor(sink, func(r io.Reader) (io.Reader, error) {
			return flate.NewReader(r), nil
		})
	case wireproto.EncodingBzip2:
		return newPipeDecompressor(sink, func(r io.Reader) (io.Reader, error) {
			return bzip2.NewReader(r), nil
		})
	case wireproto.EncodingLZMA:
		return &identityDecompressor{sink: sink}, nil
	default:
		return nil, fmt.Errorf("framer: unknown content encoding %d", enc)
	}
}
