package transport

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/talentbridge/go-apiclient/envelope"
	"github.com/tidwall/gjson"
)

// Setting Accept-Encoding explicitly turns off net/http's transparent gzip
// handling, so both encodings are decoded here.
const acceptEncoding = "gzip, zstd"

func readBody(resp *http.Response) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	switch encoding {
	case "", "identity":
		return io.ReadAll(resp.Body)
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unsupported content encoding: %s", encoding)
	}
}

// serverError builds the failure for a non-2xx response. The message is
// taken from the body's message field when there is one.
func serverError(status int, body []byte) envelope.ErrorDetail {
	opts := []envelope.Option{envelope.WithStatus(status)}

	message := msgServerError
	if len(body) > 0 && gjson.ValidBytes(body) {
		if m := firstString(body, "message", "error.message", "error"); m != "" {
			message = m
		}
		if code := firstString(body, "code", "error.code"); code != "" {
			opts = append(opts, envelope.WithCode(code))
		}
		opts = append(opts, envelope.WithPayload(body))
	}

	return envelope.NewError(envelope.KindServer, message, opts...)
}

func firstString(body []byte, paths ...string) string {
	for _, p := range paths {
		r := gjson.GetBytes(body, p)
		if r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return ""
}
