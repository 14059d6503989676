package webserver

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/chunkstore/internal/model"
	"github.com/mdouchement/chunkstore/internal/service"
	"github.com/mdouchement/chunkstore/internal/webserver/serializer"
	"github.com/mdouchement/chunkstore/internal/webserver/weberror"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
)

// uploadField is the multipart field holding the uploaded file.
const uploadField = "file"

var errBodyTooLarge = errors.New("request body too large")

type file struct {
	logger          logger.Logger
	catalog         *service.Catalog
	writer          *service.ObjectWriter
	reader          *service.ObjectReader
	extractor       service.TextExtractor
	maxUploadBytes  int64
	maxExtractBytes int64
}

func (h *file) Upload(c echo.Context) error {
	c.Set("handler_method", "file.Upload")

	req := c.Request()

	var body *limitedBody
	if h.maxUploadBytes > 0 {
		if req.ContentLength > h.maxUploadBytes {
			return h.tooLarge()
		}
		body = &limitedBody{ReadCloser: req.Body, remaining: h.maxUploadBytes}
		req.Body = body
	}

	mr, err := req.MultipartReader()
	if err != nil {
		return weberror.New(http.StatusBadRequest, err.Error())
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return weberror.New(http.StatusBadRequest, fmt.Sprintf("missing multipart field %q", uploadField))
		}
		if err != nil {
			if body.overflowed() {
				return h.tooLarge()
			}
			return weberror.New(http.StatusBadRequest, err.Error())
		}

		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		contentType := part.Header.Get(echo.HeaderContentType)
		if contentType == "" {
			contentType = echo.MIMEOctetStream
		}

		manifest, err := h.writer.Write(req.Context(), part, part.FileName(), contentType)
		part.Close()
		if err != nil {
			if body.overflowed() {
				return h.tooLarge()
			}
			return err
		}

		h.logger.Infof("file.Upload: stored %s (%s, %d bytes, %d chunks)", manifest.ID, manifest.Filename, manifest.Length, manifest.ChunkCount)

		c.Response().Header().Set(echo.HeaderLocation, "/file/"+manifest.ID)
		c.Response().Header().Set("Etag", manifest.Checksum)
		return c.JSON(http.StatusCreated, serializer.File(manifest))
	}
}

func (h *file) Show(c echo.Context) error {
	c.Set("handler_method", "file.Show")

	manifest, err := h.catalog.Stat(c.Param("id"))
	if err != nil {
		return err
	}

	h.setHeaders(c, manifest)
	return c.NoContent(http.StatusOK)
}

func (h *file) Download(c echo.Context) error {
	c.Set("handler_method", "file.Download")

	o, err := h.reader.Open(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	defer o.Close()

	// The first chunk is read before the response is committed,
	// so an unreadable object is still answered with an error status.
	data, err := o.Next()
	if err != nil && err != io.EOF {
		return err
	}

	h.setHeaders(c, o.Manifest)
	res := c.Response()
	res.WriteHeader(http.StatusOK)

	for err == nil {
		if _, werr := res.Write(data); werr != nil {
			return errors.Wrapf(werr, "file.Download: %s", o.Manifest.ID)
		}
		data, err = o.Next()
	}

	if err != io.EOF {
		// Headers and part of the body are gone, abort the connection
		// so the client cannot take the truncated body for the whole file.
		h.logger.Errorf("file.Download: %s aborted after %d bytes: %+v", o.Manifest.ID, res.Size, err)
		panic(http.ErrAbortHandler)
	}
	return nil
}

func (h *file) Text(c echo.Context) error {
	c.Set("handler_method", "file.Text")

	manifest, text, err := h.reader.Text(c.Request().Context(), c.Param("id"), h.maxExtractBytes, h.extractor)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, serializer.Text(manifest, text))
}

func (h *file) List(c echo.Context) error {
	c.Set("handler_method", "file.List")

	manifests, err := h.catalog.List()
	if err != nil {
		return err
	}

	if c.Request().Header.Get(echo.HeaderAccept) == echo.MIMETextPlain {
		return c.String(http.StatusOK, serializer.TextFiles(manifests))
	}
	return c.JSON(http.StatusOK, serializer.Files(manifests))
}

func (h *file) setHeaders(c echo.Context, manifest *model.Manifest) {
	contentType := manifest.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, contentType)
	header.Set(echo.HeaderContentLength, strconv.FormatInt(manifest.Length, 10))
	header.Set("Etag", manifest.Checksum)
	if manifest.CreatedAt != nil {
		header.Set(echo.HeaderLastModified, manifest.CreatedAt.UTC().Format(http.TimeFormat))
	}
	if manifest.Filename != "" {
		header.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{
			"filename": manifest.Filename,
		}))
	}
}

func (h *file) tooLarge() error {
	return weberror.New(http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", h.maxUploadBytes))
}

// limitedBody fails reads going past remaining bytes and remembers it did.
type limitedBody struct {
	io.ReadCloser
	remaining int64
	exceeded  bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.exceeded {
		return 0, errBodyTooLarge
	}

	// One extra byte tells a body of exactly remaining bytes from a larger one.
	if int64(len(p))-1 > b.remaining {
		p = p[:b.remaining+1]
	}

	n, err := b.ReadCloser.Read(p)
	if int64(n) > b.remaining {
		n = int(b.remaining)
		b.remaining = 0
		b.exceeded = true
		return n, errBodyTooLarge
	}
	b.remaining -= int64(n)
	return n, err
}

func (b *limitedBody) overflowed() bool {
	return b != nil && b.exceeded
}
