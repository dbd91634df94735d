package fetch

import (
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// decodeReader decodes a Content-Encoding chain (gzip, deflate, br), undoing
// the codings in reverse of the order the header lists them (the order in
// which they were applied), so a response transparently yields its
// decompressed body regardless of which codec the server used.
func decodeReader(encoding string, reader io.Reader) (io.Reader, error) {
	bodyReader := reader
	var err error
	encodings := strings.Split(encoding, ",")
	for i := len(encodings) - 1; i >= 0; i-- {
		encode := encodings[i]
		switch strings.TrimSpace(encode) {
		case "", "identity":
			continue
		case "deflate":
			bodyReader, err = zlib.NewReader(bodyReader)
		case "gzip":
			bodyReader, err = gzip.NewReader(bodyReader)
		case "br":
			bodyReader = brotli.NewReader(bodyReader)
		default:
			err = fmt.Errorf("unsupported compression type %s", encode)
		}
		if err != nil {
			return nil, err
		}
	}
	return bodyReader, nil
}
