// File: internal/engine/decode.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Content-Encoding decoders. Compressed bodies accumulate in encoded form
// and decode in one pass at completion; identity bodies never pass through
// here.

package engine

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

type encoding int

const (
	encIdentity encoding = iota
	encGzip
	encDeflate
)

func (e encoding) String() string {
	switch e {
	case encGzip:
		return "gzip"
	case encDeflate:
		return "deflate"
	}
	return "identity"
}

func decodeBody(enc encoding, data []byte) ([]byte, error) {
	switch enc {
	case encGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		out, err := io.ReadAll(zr)
		if cerr := zr.Close(); err == nil {
			err = cerr
		}
		return out, err
	case encDeflate:
		// Servers ship both RFC 1950 zlib streams and bare RFC 1951
		// deflate under this token; accept either.
		if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
			out, rerr := io.ReadAll(zr)
			zr.Close()
			if rerr == nil {
				return out, nil
			}
		}
		fr := flate.NewReader(bytes.NewReader(data))
		defer fr.Close()
		return io.ReadAll(fr)
	}
	return data, nil
}
