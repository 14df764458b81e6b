package handler

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/intellivoid/coffeehouse-api/internal/coffeehouse"
	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// Image processing constants
const (
	// MaxImageDimension is the longest side sent to the classifier
	MaxImageDimension = 512

	// DefaultMaxImageBytes is the default upload limit
	DefaultMaxImageBytes = 8 << 20

	// jpegQuality is used when re-encoding downscaled images
	jpegQuality = 90

	imageParam = "image"
)

// ImageHandler serves the image classification endpoints.
type ImageHandler struct {
	engine        coffeehouse.Engine
	meter         *Meter
	responder     *Responder
	logger        *slog.Logger
	maxImageBytes int64
	timeout       time.Duration
}

// NewImageHandler creates a new ImageHandler. maxImageBytes <= 0 selects
// DefaultMaxImageBytes.
func NewImageHandler(
	engine coffeehouse.Engine,
	meter *Meter,
	responder *Responder,
	logger *slog.Logger,
	maxImageBytes int64,
	timeout time.Duration,
) *ImageHandler {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &ImageHandler{
		engine:        engine,
		meter:         meter,
		responder:     responder,
		logger:        logger,
		maxImageBytes: maxImageBytes,
		timeout:       timeout,
	}
}

// RegisterRoutes registers the image routes.
//
// Routes:
// - POST /v1/coffeehouse/image/nsfw_classification -> NSFWClassification
func (h *ImageHandler) RegisterRoutes(mux *http.ServeMux, requireAccess func(http.Handler) http.Handler) {
	mux.Handle("POST /v1/coffeehouse/image/nsfw_classification", requireAccess(http.HandlerFunc(h.NSFWClassification)))
}

// NSFWClassification handles POST /v1/coffeehouse/image/nsfw_classification
//
// The image is read from a multipart file field or a base64 parameter, both
// named "image". It is decoded to reject anything that is not an image and
// downscaled before classification.
func (h *ImageHandler) NSFWClassification(w http.ResponseWriter, r *http.Request) {
	const op = "image.nsfw_classification"

	req, err := h.meter.Begin(r, domain.FeatureNSFW)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	raw, err := h.readImage(r)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	data, contentType, err := prepareImage(raw)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	h.logger.Debug("classifying image",
		"access_record_id", req.Record.ID,
		"original_bytes", len(raw),
		"sent_bytes", len(data),
		"content_type", contentType,
	)

	ctx, cancel := callContext(r.Context(), h.timeout)
	result, err := h.engine.ClassifyNSFW(ctx, data, contentType)
	cancel()
	if err != nil {
		h.responder.Error(w, r, EngineError(op, err))
		return
	}

	if err := h.meter.Commit(r.Context(), req, domain.FeatureNSFW); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	h.responder.Results(w, http.StatusOK, result)
}

// readImage returns the raw image bytes of the request.
func (h *ImageHandler) readImage(r *http.Request) ([]byte, error) {
	const op = "image.read"

	params, err := RequestParams(r)
	if err != nil {
		return nil, err
	}

	if r.MultipartForm != nil {
		if files := r.MultipartForm.File[imageParam]; len(files) > 0 {
			header := files[0]
			if header.Size > h.maxImageBytes {
				return nil, h.tooLarge(op)
			}
			f, err := header.Open()
			if err != nil {
				return nil, domain.Internal(err, op, "failed to open uploaded image")
			}
			defer f.Close()

			raw, err := io.ReadAll(io.LimitReader(f, h.maxImageBytes+1))
			if err != nil {
				return nil, domain.Internal(err, op, "failed to read uploaded image")
			}
			if int64(len(raw)) > h.maxImageBytes {
				return nil, h.tooLarge(op)
			}
			return raw, nil
		}
	}

	encoded := strings.TrimSpace(params.Get(imageParam))
	if encoded == "" {
		return nil, domain.Invalid(op, domain.ErrCodeImageInvalid, "An image is required")
	}
	// Accept data URLs as produced by browsers.
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}
	if int64(base64.StdEncoding.DecodedLen(len(encoded))) > h.maxImageBytes+2 {
		return nil, h.tooLarge(op)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, domain.Invalid(op, domain.ErrCodeImageInvalid, "The image is not valid base64 data")
	}
	if int64(len(raw)) > h.maxImageBytes {
		return nil, h.tooLarge(op)
	}
	return raw, nil
}

func (h *ImageHandler) tooLarge(op string) error {
	return domain.Errorf(domain.ETOOLARGE, op, "The image exceeds the maximum size of %d bytes", h.maxImageBytes).
		WithAPICode(domain.ErrCodeImageTooLarge)
}

// prepareImage decodes raw and returns the bytes to classify with their
// content type. Images within MaxImageDimension are passed through as is.
func prepareImage(raw []byte) ([]byte, string, error) {
	const op = "image.prepare"

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", domain.Invalid(op, domain.ErrCodeImageInvalid, "The image could not be decoded")
	}

	bounds := img.Bounds()
	if bounds.Dx() <= MaxImageDimension && bounds.Dy() <= MaxImageDimension {
		return raw, http.DetectContentType(raw), nil
	}

	resized := imaging.Fit(img, MaxImageDimension, MaxImageDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, "", domain.Internal(fmt.Errorf("encode jpeg: %w", err), op, "failed to resize image")
	}
	return buf.Bytes(), "image/jpeg", nil
}
