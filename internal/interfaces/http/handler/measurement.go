package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	measurementapp "github.com/medview/backend/internal/application/measurement"
	"github.com/medview/backend/internal/domain/measurement"
	"github.com/medview/backend/internal/domain/shared"
	"github.com/medview/backend/internal/infrastructure/logger"
	"github.com/medview/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// AnnotationDecoder turns a request body into the annotation payload a
// source's converters expect
type AnnotationDecoder func(annotationType string, raw []byte) (measurement.Annotation, error)

// decodeGenericAnnotation keeps the payload as a JSON object. Converters
// registered for such sources receive a map[string]any.
func decodeGenericAnnotation(annotationType string, raw []byte) (measurement.Annotation, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode %s annotation: %s", shared.ErrInvalidInput, annotationType, err.Error())
	}
	return payload, nil
}

// MeasurementHandler exposes the measurement service to panels, exporters
// and tool bridges
type MeasurementHandler struct {
	BaseHandler
	service  *measurementapp.Service
	decoders map[string]AnnotationDecoder
}

// MeasurementHandlerOption configures a MeasurementHandler
type MeasurementHandlerOption func(*MeasurementHandler)

// WithAnnotationDecoder sets the decoder for annotations posted on behalf of
// the source with the given id
func WithAnnotationDecoder(sourceID string, decoder AnnotationDecoder) MeasurementHandlerOption {
	return func(h *MeasurementHandler) {
		if decoder != nil {
			h.decoders[sourceID] = decoder
		}
	}
}

// NewMeasurementHandler creates a new MeasurementHandler
func NewMeasurementHandler(service *measurementapp.Service, opts ...MeasurementHandlerOption) *MeasurementHandler {
	h := &MeasurementHandler{
		service:  service,
		decoders: make(map[string]AnnotationDecoder),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateSource registers a source. Registering an existing name and version
// returns the existing source.
//
//	POST /sources
func (h *MeasurementHandler) CreateSource(c *gin.Context) {
	var req dto.CreateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	source, err := h.service.CreateSource(req.Name, req.Version)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, dto.ToSourceResponse(source, h.service.Mappings(source)))
}

// ListSources lists the registered sources and their mappings
//
//	GET /sources
func (h *MeasurementHandler) ListSources(c *gin.Context) {
	sources := h.service.Sources()
	resp := make([]dto.SourceResponse, len(sources))
	for i, source := range sources {
		resp[i] = dto.ToSourceResponse(source, h.service.Mappings(source))
	}
	c.JSON(http.StatusOK, dto.NewListResponse(resp))
}

// GetSource returns one source
//
//	GET /sources/:id
func (h *MeasurementHandler) GetSource(c *gin.Context) {
	source, ok := h.lookupSource(c)
	if !ok {
		return
	}
	h.Success(c, dto.ToSourceResponse(source, h.service.Mappings(source)))
}

// AddAnnotation converts a new annotation into a measurement
//
//	POST /sources/:id/annotations/:type
func (h *MeasurementHandler) AddAnnotation(c *gin.Context) {
	h.convertAnnotation(c, false)
}

// UpdateAnnotation converts an edited annotation, replacing the measurement
// with the annotation's uid
//
//	PUT /sources/:id/annotations/:type
func (h *MeasurementHandler) UpdateAnnotation(c *gin.Context) {
	h.convertAnnotation(c, true)
}

func (h *MeasurementHandler) convertAnnotation(c *gin.Context, isUpdate bool) {
	source, ok := h.lookupSource(c)
	if !ok {
		return
	}
	annotationType := c.Param("type")

	raw, ok := h.readBody(c)
	if !ok {
		return
	}
	if isEmptyBody(raw) {
		h.BadRequest(c, "Annotation body is required")
		return
	}

	annotation, err := h.decoderFor(source)(annotationType, raw)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	measurementID, err := source.AnnotationToMeasurement(annotationType, annotation, isUpdate)
	if err != nil {
		logger.GetGinLogger(c).Warn("Annotation conversion rejected",
			zap.String("source", source.String()),
			zap.String("annotation_type", annotationType),
			zap.Error(err))
		h.HandleDomainError(c, err)
		return
	}
	if measurementID == "" {
		h.ErrorWithCode(c, dto.ErrCodeNoMapping,
			fmt.Sprintf("No mapping of %s applies to this %s annotation", source, annotationType))
		return
	}

	resp := dto.AnnotationResponse{MeasurementID: measurementID}
	if isUpdate {
		h.Success(c, resp)
		return
	}
	h.Created(c, resp)
}

// GetAnnotation rebuilds the source annotation for a stored measurement
//
//	GET /sources/:id/annotations/:type/:measurementId
func (h *MeasurementHandler) GetAnnotation(c *gin.Context) {
	source, ok := h.lookupSource(c)
	if !ok {
		return
	}

	annotation, err := source.GetAnnotation(c.Param("type"), c.Param("measurementId"))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	if annotation == nil {
		h.NotFound(c, "No annotation for this measurement")
		return
	}
	h.Success(c, annotation)
}

// ListMeasurements lists stored measurements in insertion order. Optional
// filters: source_id, annotation_type, selected.
//
//	GET /measurements
func (h *MeasurementHandler) ListMeasurements(c *gin.Context) {
	var filters []measurementapp.Predicate
	if sourceID := c.Query("source_id"); sourceID != "" {
		filters = append(filters, func(m measurement.Measurement) bool {
			return m.Source != nil && m.Source.ID == sourceID
		})
	}
	if annotationType := c.Query("annotation_type"); annotationType != "" {
		filters = append(filters, func(m measurement.Measurement) bool {
			return m.AnnotationType == annotationType
		})
	}
	if selected := c.Query("selected"); selected != "" {
		want, err := strconv.ParseBool(selected)
		if err != nil {
			h.BadRequest(c, "selected must be a boolean")
			return
		}
		filters = append(filters, func(m measurement.Measurement) bool {
			return m.Selected == want
		})
	}

	measurements := h.service.GetMeasurements(filters...)
	c.JSON(http.StatusOK, dto.NewListResponse(dto.ToMeasurementResponses(measurements)))
}

// GetMeasurement returns one measurement
//
//	GET /measurements/:id
func (h *MeasurementHandler) GetMeasurement(c *gin.Context) {
	m, ok := h.service.GetMeasurement(c.Param("id"))
	if !ok {
		h.NotFound(c, "Measurement not found")
		return
	}
	h.Success(c, dto.ToMeasurementResponse(m))
}

// UpdateMeasurement applies a partial update. Fields a measurement does not
// define are rejected.
//
//	PATCH /measurements/:id
func (h *MeasurementHandler) UpdateMeasurement(c *gin.Context) {
	id := c.Param("id")

	raw, ok := h.readBody(c)
	if !ok {
		return
	}
	var req dto.UpdateMeasurementRequest
	if isEmptyBody(raw) {
		h.BadRequest(c, "Update body is required")
		return
	}
	if err := decodeStrictJSON(raw, &req); err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidJSON, err.Error())
		return
	}
	if req.IsEmpty() {
		h.BadRequest(c, "Update changes no fields")
		return
	}

	if _, ok := h.service.GetMeasurement(id); !ok {
		h.NotFound(c, "Measurement not found")
		return
	}
	if err := h.service.Update(id, req.MeasurementPatch, req.NotYetUpdatedAtSource); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	m, ok := h.service.GetMeasurement(id)
	if !ok {
		h.NotFound(c, "Measurement not found")
		return
	}
	h.Success(c, dto.ToMeasurementResponse(m))
}

// SelectMeasurement sets the selected flag
//
//	PUT /measurements/:id/selection
func (h *MeasurementHandler) SelectMeasurement(c *gin.Context) {
	id := c.Param("id")

	var req dto.SelectMeasurementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if _, ok := h.service.GetMeasurement(id); !ok {
		h.NotFound(c, "Measurement not found")
		return
	}

	h.service.SetMeasurementSelected(id, *req.Selected)
	h.NoContent(c)
}

// RemoveMeasurement removes a measurement or an unmapped record. The optional
// body names the removing source and details for listeners.
//
//	DELETE /measurements/:id
func (h *MeasurementHandler) RemoveMeasurement(c *gin.Context) {
	id := c.Param("id")

	raw, ok := h.readBody(c)
	if !ok {
		return
	}
	var req dto.RemoveMeasurementRequest
	if !isEmptyBody(raw) {
		if err := decodeStrictJSON(raw, &req); err != nil {
			h.ErrorWithCode(c, dto.ErrCodeInvalidJSON, err.Error())
			return
		}
	}

	var source *measurement.Source
	if req.SourceID != "" {
		found, ok := h.service.GetSourceByID(req.SourceID)
		if !ok {
			h.ErrorWithCode(c, dto.ErrCodeInvalidSource, "Source is not registered")
			return
		}
		source = found
	}

	_, stored := h.service.GetMeasurement(id)
	_, unmapped := h.service.GetUnmapped(id)
	if !stored && !unmapped {
		h.NotFound(c, "Measurement not found")
		return
	}

	if err := h.service.Remove(source, id, req.Details); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.NoContent(c)
}

// ClearMeasurements discards every stored and unmapped measurement
//
//	DELETE /measurements
func (h *MeasurementHandler) ClearMeasurements(c *gin.Context) {
	h.service.ClearMeasurements()
	h.NoContent(c)
}

// JumpToMeasurement asks viewers to navigate to a measurement
//
//	POST /measurements/:id/jump
func (h *MeasurementHandler) JumpToMeasurement(c *gin.Context) {
	id := c.Param("id")

	raw, ok := h.readBody(c)
	if !ok {
		return
	}
	var req dto.JumpRequest
	if !isEmptyBody(raw) {
		if err := decodeStrictJSON(raw, &req); err != nil {
			h.ErrorWithCode(c, dto.ErrCodeInvalidJSON, err.Error())
			return
		}
	}

	if _, ok := h.service.GetMeasurement(id); !ok {
		h.NotFound(c, "Measurement not found")
		return
	}

	consumed := h.service.JumpToMeasurement(req.ViewportID, id)
	h.Success(c, dto.JumpResponse{MeasurementID: id, Consumed: consumed})
}

// ListUnmapped lists annotations that failed conversion
//
//	GET /unmapped
func (h *MeasurementHandler) ListUnmapped(c *gin.Context) {
	records := h.service.GetUnmappedMeasurements()
	c.JSON(http.StatusOK, dto.NewListResponse(dto.ToUnmappedResponses(records)))
}

// GetUnmapped returns one unmapped record
//
//	GET /unmapped/:id
func (h *MeasurementHandler) GetUnmapped(c *gin.Context) {
	record, ok := h.service.GetUnmapped(c.Param("id"))
	if !ok {
		h.NotFound(c, "Unmapped measurement not found")
		return
	}
	h.Success(c, dto.ToUnmappedResponse(record))
}

func (h *MeasurementHandler) lookupSource(c *gin.Context) (*measurement.Source, bool) {
	source, ok := h.service.GetSourceByID(c.Param("id"))
	if !ok {
		h.NotFound(c, "Source not found")
		return nil, false
	}
	return source, true
}

func (h *MeasurementHandler) decoderFor(source *measurement.Source) AnnotationDecoder {
	if decoder, ok := h.decoders[source.ID]; ok {
		return decoder
	}
	return decodeGenericAnnotation
}
