// Package handlers provides HTTP request handlers.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/goclaw/intersection/config"
	"github.com/goclaw/intersection/pkg/api/middleware"
	"github.com/goclaw/intersection/pkg/api/models"
	"github.com/goclaw/intersection/pkg/api/response"
	"github.com/goclaw/intersection/pkg/controller"
	"github.com/goclaw/intersection/pkg/intersection"
	"github.com/goclaw/intersection/pkg/logger"
	"github.com/goclaw/intersection/pkg/storage"
)

// DefaultMaxUploadBytes limits a road image when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

// imageField is the multipart form field carrying a road image.
const imageField = "image"

var acceptedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// IntersectionHandler serves the control surface of one intersection.
type IntersectionHandler struct {
	ctrl      *controller.Controller
	log       logger.Logger
	maxUpload int64
}

// NewIntersectionHandler creates a handler for ctrl. A non-positive
// maxUpload uses DefaultMaxUploadBytes.
func NewIntersectionHandler(ctrl *controller.Controller, log logger.Logger, maxUpload int64) *IntersectionHandler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &IntersectionHandler{ctrl: ctrl, log: log, maxUpload: maxUpload}
}

// GetStatus handles GET /api/v1/intersection
// @Summary Get intersection status
// @Description Lifecycle, round, active phase, current frame and stored road images
// @Tags intersection
// @Produce json
// @Success 200 {object} controller.Status
// @Router /api/v1/intersection [get]
func (h *IntersectionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.ctrl.Status(r.Context()))
}

// GetFrame handles GET /api/v1/intersection/frame
// @Summary Get the current signal frame
// @Tags intersection
// @Produce json
// @Success 200 {object} models.FrameResponse
// @Router /api/v1/intersection/frame [get]
func (h *IntersectionHandler) GetFrame(w http.ResponseWriter, r *http.Request) {
	st := h.ctrl.Status(r.Context())
	response.JSON(w, http.StatusOK, models.FrameResponse{
		Intersection: st.Intersection,
		Lifecycle:    st.Lifecycle,
		Tick:         st.Tick,
		Frame:        st.Frame,
	})
}

// Start handles POST /api/v1/intersection/start
// @Summary Start or resume the signal cycle
// @Description From idle a new session begins and stored road images are scanned for emergency vehicles. From stopped the frozen session resumes.
// @Tags intersection
// @Produce json
// @Success 200 {object} models.CommandResponse
// @Failure 503 {object} response.ErrorResponse
// @Router /api/v1/intersection/start [post]
func (h *IntersectionHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	changed, err := h.ctrl.Start(ctx)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to start intersection", "error", err)
		response.HandleError(w, err, middleware.GetRequestID(ctx))
		return
	}
	h.command(w, r, changed)
}

// Stop handles POST /api/v1/intersection/stop
// @Summary Freeze the signal cycle
// @Tags intersection
// @Produce json
// @Success 200 {object} models.CommandResponse
// @Router /api/v1/intersection/stop [post]
func (h *IntersectionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.ctrl.Stop(r.Context()))
}

// Reset handles POST /api/v1/intersection/reset
// @Summary Reset to idle all-red and discard uploaded images
// @Tags intersection
// @Produce json
// @Success 200 {object} models.CommandResponse
// @Router /api/v1/intersection/reset [post]
func (h *IntersectionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Reset(r.Context())
	h.command(w, r, true)
}

func (h *IntersectionHandler) command(w http.ResponseWriter, r *http.Request, changed bool) {
	response.JSON(w, http.StatusOK, models.CommandResponse{
		Changed: changed,
		Status:  h.ctrl.Status(r.Context()),
	})
}

// GetConfig handles GET /api/v1/intersection/config
// @Summary Get the signal plan
// @Tags config
// @Produce json
// @Success 200 {object} controller.Settings
// @Router /api/v1/intersection/config [get]
func (h *IntersectionHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, controller.SettingsOf(h.ctrl.Config()))
}

// UpdateConfig handles PUT /api/v1/intersection/config. A new configuration
// resets the intersection.
// @Summary Replace the signal plan
// @Tags config
// @Accept json
// @Produce json
// @Param config body models.ConfigRequest true "Signal plan"
// @Success 200 {object} controller.Settings
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/intersection/config [put]
func (h *IntersectionHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req models.ConfigRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid request body: "+err.Error(), requestID)
		return
	}
	if err := config.ValidateStruct(&req); err != nil {
		h.log.WarnContext(ctx, "Rejected intersection configuration", "error", err)
		response.HandleError(w, err, requestID)
		return
	}

	cfg, err := req.Build()
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}
	if err := h.ctrl.Reconfigure(ctx, cfg); err != nil {
		h.log.ErrorContext(ctx, "Failed to reconfigure intersection", "error", err)
		response.HandleError(w, err, requestID)
		return
	}

	response.JSON(w, http.StatusOK, controller.SettingsOf(h.ctrl.Config()))
}

// ListImages handles GET /api/v1/intersection/roads/images
// @Summary List stored road images
// @Tags images
// @Produce json
// @Success 200 {object} models.ImageListResponse
// @Router /api/v1/intersection/roads/images [get]
func (h *IntersectionHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	images, err := h.ctrl.Images(ctx)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to list road images", "error", err)
		response.HandleError(w, err, middleware.GetRequestID(ctx))
		return
	}
	response.JSON(w, http.StatusOK, models.ImageListResponse{Images: images, Total: len(images)})
}

// UploadImage handles PUT /api/v1/intersection/roads/{road}/image. The image
// is either the "image" field of a multipart form or the raw request body.
// Only JPEG and PNG images are accepted.
// @Summary Upload the camera image of a road
// @Tags images
// @Accept multipart/form-data,image/jpeg,image/png
// @Produce json
// @Param road path string true "Road name"
// @Param image formData file false "JPEG or PNG image"
// @Success 201 {object} controller.ImageInfo
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 413 {object} response.ErrorResponse
// @Failure 415 {object} response.ErrorResponse
// @Router /api/v1/intersection/roads/{road}/image [put]
func (h *IntersectionHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	road, err := roadParam(r)
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	data, filename, err := readImage(r, h.maxUpload)
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}

	contentType := http.DetectContentType(data)
	if _, ok := acceptedImageTypes[contentType]; !ok {
		response.HandleError(w, fmt.Errorf("%w: %s, expected image/jpeg or image/png", response.ErrUnsupportedMedia, contentType), requestID)
		return
	}

	img := &storage.RoadImage{
		Road:        road,
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
		UploadedAt:  time.Now().UTC(),
	}
	if err := h.ctrl.UploadImage(ctx, img); err != nil {
		if response.HTTPStatusFromError(err) >= http.StatusInternalServerError {
			h.log.ErrorContext(ctx, "Failed to store road image", "road", road, "error", err)
		}
		response.HandleError(w, err, requestID)
		return
	}

	response.JSON(w, http.StatusCreated, controller.ImageInfo{
		Road:        img.Road,
		Filename:    img.Filename,
		ContentType: img.ContentType,
		Size:        img.Size(),
		UploadedAt:  img.UploadedAt,
	})
}

// DeleteImage handles DELETE /api/v1/intersection/roads/{road}/image
// @Summary Delete the image of a road
// @Tags images
// @Param road path string true "Road name"
// @Success 204
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/intersection/roads/{road}/image [delete]
func (h *IntersectionHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	road, err := roadParam(r)
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}
	if err := h.ctrl.DeleteImage(ctx, road); err != nil {
		response.HandleError(w, err, requestID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func roadParam(r *http.Request) (intersection.Road, error) {
	raw := chi.URLParam(r, "road")
	name, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: road %q", response.ErrInvalidInput, raw)
	}
	return intersection.Road(name), nil
}

func readImage(r *http.Request, limit int64) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", uploadError(err, limit)
		}
		if len(data) == 0 {
			return nil, "", fmt.Errorf("%w: empty image", response.ErrInvalidInput)
		}
		return data, r.URL.Query().Get("filename"), nil
	}

	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, "", uploadError(err, limit)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(imageField)
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing %q form field", response.ErrInvalidInput, imageField)
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, "", uploadError(err, limit)
	}
	if buf.Len() == 0 {
		return nil, "", fmt.Errorf("%w: empty image", response.ErrInvalidInput)
	}
	return buf.Bytes(), header.Filename, nil
}

func uploadError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return fmt.Errorf("%w: limit is %d bytes", response.ErrPayloadTooLarge, limit)
	}
	return fmt.Errorf("%w: %v", response.ErrInvalidInput, err)
}
