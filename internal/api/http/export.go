package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/termengine/internal/stream"
)

// rendering of a scrollback export
type rendering struct {
	body        []byte
	contentType string
	ext         string
}

func render(chunks []stream.Chunk, format string) (rendering, error) {
	switch format {
	case "", "text":
		return rendering{[]byte(stream.Plain(chunks)), "text/plain; charset=utf-8", "txt"}, nil
	case "raw":
		return rendering{stream.RawBytes(chunks), "application/octet-stream", "log"}, nil
	case "json":
		body, err := sonic.Marshal(gin.H{"chunks": chunks, "count": len(chunks)})
		if err != nil {
			return rendering{}, err
		}
		return rendering{body, "application/json", "json"}, nil
	default:
		return rendering{}, fmt.Errorf("unknown format %q (text, raw, json)", format)
	}
}

func compress(body []byte, method string) ([]byte, string, string, error) {
	var (
		buf bytes.Buffer
		w   io.WriteCloser
		err error
	)
	switch method {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "zstd":
		w, err = zstd.NewWriter(&buf)
		if err != nil {
			return nil, "", "", err
		}
	default:
		return nil, "", "", fmt.Errorf("unknown compression %q (gzip, zstd)", method)
	}

	if _, err := w.Write(body); err != nil {
		return nil, "", "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", "", err
	}

	if method == "gzip" {
		return buf.Bytes(), "application/gzip", "gz", nil
	}
	return buf.Bytes(), "application/zstd", "zst", nil
}

// Scrollback exports the retained output. It is readable in every state.
func (h *Handlers) Scrollback(c *gin.Context) {
	s, err := h.dispatcher.Lookup(sessionID(c))
	if err != nil {
		fail(c, err)
		return
	}

	out, err := render(s.Scrollback(), c.Query("format"))
	if err != nil {
		badRequest(c, err)
		return
	}

	method := c.Query("compress")
	if method == "" {
		c.Data(http.StatusOK, out.contentType, out.body)
		return
	}

	body, contentType, ext, err := compress(out.body, method)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s.%s.%s", s.ID(), out.ext, ext)))
	c.Data(http.StatusOK, contentType, body)
}
