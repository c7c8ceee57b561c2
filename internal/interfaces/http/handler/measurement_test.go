package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	measurementapp "github.com/medview/backend/internal/application/measurement"
	"github.com/medview/backend/internal/domain/measurement"
	"github.com/medview/backend/internal/domain/shared"
	"github.com/medview/backend/internal/infrastructure/event"
	"github.com/medview/backend/internal/infrastructure/tools"
	"github.com/medview/backend/internal/interfaces/http/dto"
	"github.com/medview/backend/internal/interfaces/http/router"
	"github.com/medview/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const lengthAnnotation = `{
	"annotationUID": "len-1",
	"label": "Lesion",
	"handles": [{"x": 0, "y": 0, "z": 0}, {"x": 3, "y": 4, "z": 0}],
	"cachedStats": {"length": 5.004, "unit": "mm"}
}`

type measurementFixture struct {
	engine  *gin.Engine
	service *measurementapp.Service
	source  *measurement.Source
	events  *testutil.EventRecorder
}

func newMeasurementFixture(t *testing.T) *measurementFixture {
	t.Helper()

	bus := event.NewInMemoryEventBus(zap.NewNop())
	svc := measurementapp.NewService(bus, zap.NewNop())
	source, err := svc.CreateSource("Cornerstone3DTools", "0.1")
	require.NoError(t, err)
	require.NoError(t, tools.RegisterMappings(svc, source, nil))
	events := testutil.NewEventRecorder()
	svc.Subscribe("", events)

	h := NewMeasurementHandler(svc, WithAnnotationDecoder(source.ID,
		func(annotationType string, raw []byte) (measurement.Annotation, error) {
			return tools.DecodeAnnotation(annotationType, raw)
		}))

	engine := gin.New()
	router.NewRouter(engine).
		Register(SourceRoutes(h)).
		Register(MeasurementRoutes(h)).
		Register(UnmappedRoutes(h)).
		Setup()

	return &measurementFixture{engine: engine, service: svc, source: source, events: events}
}

func (f *measurementFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.DoJSON(t, f.engine, method, path, body)
}

func (f *measurementFixture) annotationsPath(annotationType string) string {
	return "/api/v1/sources/" + f.source.ID + "/annotations/" + annotationType
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	return testutil.JSONResponseAs[dto.Response](t, w)
}

func dataAs[T any](t *testing.T, resp dto.Response) T {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestMeasurementHandler_Sources(t *testing.T) {
	f := newMeasurementFixture(t)

	t.Run("create is idempotent", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/sources", `{"name":"Cornerstone3DTools","version":"0.1"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		created := dataAs[dto.SourceResponse](t, decodeResponse(t, w))
		assert.Equal(t, f.source.ID, created.ID)
		assert.Len(t, created.Mappings, len(tools.Tools()))
	})

	t.Run("missing version", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/sources", `{"name":"Other"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("list in registration order", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/sources", `{"name":"Importer","version":"2"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		w = f.do(t, http.MethodGet, "/api/v1/sources", "")
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		sources := dataAs[[]dto.SourceResponse](t, resp)
		require.Len(t, sources, 2)
		assert.Equal(t, "Cornerstone3DTools", sources[0].Name)
		assert.Equal(t, "Importer", sources[1].Name)
		assert.Empty(t, sources[1].Mappings)
		assert.Equal(t, 2, resp.Meta.Total)
	})

	t.Run("unknown source", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/sources/nope", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestMeasurementHandler_AddAnnotation(t *testing.T) {
	f := newMeasurementFixture(t)

	w := f.do(t, http.MethodPost, f.annotationsPath(tools.ToolLength), lengthAnnotation)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := dataAs[dto.AnnotationResponse](t, decodeResponse(t, w))
	assert.Equal(t, "len-1", created.MeasurementID)

	w = f.do(t, http.MethodGet, "/api/v1/measurements/len-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	m := dataAs[map[string]any](t, decodeResponse(t, w))
	assert.Equal(t, "Lesion", m["label"])
	assert.Equal(t, "5 mm", m["display_text"])
	assert.Equal(t, string(measurement.ValueTypePolyline), m["type"])
	assert.Equal(t, tools.ToolLength, m["annotation_type"])
}

func TestMeasurementHandler_AddAnnotationErrors(t *testing.T) {
	f := newMeasurementFixture(t)

	bare, err := f.service.CreateSource("Bare", "1")
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown field in annotation",
			path:       f.annotationsPath(tools.ToolLength),
			body:       `{"handles":[{"x":1,"y":1,"z":0}],"colour":"red"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeInvalidInput,
		},
		{
			name:       "empty body",
			path:       f.annotationsPath(tools.ToolLength),
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeBadRequest,
		},
		{
			name:       "no mapping applies",
			path:       f.annotationsPath("Unknown"),
			body:       `{"toolName":"Unknown","handles":[{"x":1,"y":1,"z":0}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   dto.ErrCodeNoMapping,
		},
		{
			name:       "source without mappings",
			path:       "/api/v1/sources/" + bare.ID + "/annotations/Length",
			body:       `{"uid":"x"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   dto.ErrCodeNoMappings,
		},
		{
			name:       "unknown source",
			path:       "/api/v1/sources/missing/annotations/Length",
			body:       lengthAnnotation,
			wantStatus: http.StatusNotFound,
			wantCode:   dto.ErrCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}

	assert.Empty(t, f.service.GetMeasurements())
}

func TestMeasurementHandler_ConversionFailureIsKeptUnmapped(t *testing.T) {
	f := newMeasurementFixture(t)

	// a negative frame number decodes but fails measurement validation
	body := `{
		"annotationUID": "bad-1",
		"handles": [{"x": 0, "y": 0, "z": 0}, {"x": 1, "y": 1, "z": 0}],
		"frameNumber": -1
	}`
	w := f.do(t, http.MethodPost, f.annotationsPath(tools.ToolLength), body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeConversionFailed, resp.Error.Code)
	assert.Contains(t, resp.Error.Detail, "bad-1")

	w = f.do(t, http.MethodGet, "/api/v1/unmapped", "")
	require.Equal(t, http.StatusOK, w.Code)
	unmapped := dataAs[[]dto.UnmappedResponse](t, decodeResponse(t, w))
	require.Len(t, unmapped, 1)
	assert.Equal(t, "bad-1", unmapped[0].ID)
	assert.Equal(t, tools.ToolLength, unmapped[0].AnnotationType)
	assert.Equal(t, f.source.ID, unmapped[0].Source.ID)

	w = f.do(t, http.MethodGet, "/api/v1/unmapped/bad-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/measurements/bad-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/unmapped/bad-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMeasurementHandler_UpdateAnnotation(t *testing.T) {
	f := newMeasurementFixture(t)

	w := f.do(t, http.MethodPost, f.annotationsPath(tools.ToolLength), lengthAnnotation)
	require.Equal(t, http.StatusCreated, w.Code)

	edited := strings.Replace(lengthAnnotation, `"length": 5.004`, `"length": 7.5`, 1)
	w = f.do(t, http.MethodPut, f.annotationsPath(tools.ToolLength), edited)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	m, ok := f.service.GetMeasurement("len-1")
	require.True(t, ok)
	require.NotNil(t, m.Length)
	assert.Equal(t, 7.5, *m.Length)
	assert.Len(t, f.service.GetMeasurements(), 1)
}

func TestMeasurementHandler_GetAnnotation(t *testing.T) {
	f := newMeasurementFixture(t)

	w := f.do(t, http.MethodPost, f.annotationsPath(tools.ToolLength), lengthAnnotation)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, f.annotationsPath(tools.ToolLength)+"/len-1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	annotation := dataAs[tools.Annotation](t, decodeResponse(t, w))
	assert.Equal(t, "len-1", annotation.UID)
	assert.Equal(t, tools.ToolLength, annotation.ToolName)
	assert.Len(t, annotation.Handles, 2)

	w = f.do(t, http.MethodGet, f.annotationsPath(tools.ToolLength)+"/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMeasurementHandler_ListMeasurementsFilters(t *testing.T) {
	f := newMeasurementFixture(t)

	for _, uid := range []string{"a", "b", "c"} {
		body := strings.Replace(lengthAnnotation, "len-1", uid, 1)
		w := f.do(t, http.MethodPost, f.annotationsPath(tools.ToolLength), body)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	probe := `{"annotationUID":"p","handles":[{"x":1,"y":2,"z":3}],"cachedStats":{"value":-1000,"unit":"HU"}}`
	w := f.do(t, http.MethodPost, f.annotationsPath(tools.ToolProbe), probe)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	f.service.SetMeasurementSelected("b", true)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all in insertion order", "", []string{"a", "b", "c", "p"}},
		{"by annotation type", "?annotation_type=Probe", []string{"p"}},
		{"selected only", "?selected=true", []string{"b"}},
		{"by source", "?source_id=" + f.source.ID, []string{"a", "b", "c", "p"}},
		{"by other source", "?source_id=other", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/v1/measurements"+tt.query, "")
			require.Equal(t, http.StatusOK, w.Code)
			items := dataAs[[]map[string]any](t, decodeResponse(t, w))
			ids := make([]string, 0, len(items))
			for _, item := range items {
				ids = append(ids, item["uid"].(string))
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	t.Run("bad selected value", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/measurements?selected=maybe", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMeasurementHandler_UpdateMeasurement(t *testing.T) {
	f := newMeasurementFixture(t)
	w := f.do(t, http.MethodPost, f.annotationsPath(tools.ToolLength), lengthAnnotation)
	require.Equal(t, http.StatusCreated, w.Code)

	var updates []*measurement.MeasurementUpdatedEvent
	f.service.Subscribe(measurement.EventTypeMeasurementUpdated, shared.EventHandlerFunc(
		func(_ context.Context, e shared.DomainEvent) error {
			updates = append(updates, e.(*measurement.MeasurementUpdatedEvent))
			return nil
		}))

	t.Run("patches fields", func(t *testing.T) {
		body := `{"label":"Renamed","finding":{"code_value":"T-1","coding_scheme_designator":"SRT"},"not_yet_updated_at_source":true}`
		w := f.do(t, http.MethodPatch, "/api/v1/measurements/len-1", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		m := dataAs[map[string]any](t, decodeResponse(t, w))
		assert.Equal(t, "Renamed", m["label"])
		require.Len(t, updates, 1)
		assert.True(t, updates[0].NotYetUpdatedAtSource)
	})

	t.Run("rejects fields outside the measurement", func(t *testing.T) {
		w := f.do(t, http.MethodPatch, "/api/v1/measurements/len-1", `{"colour":"red"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, decodeResponse(t, w).Error.Code)
	})

	t.Run("rejects an invalid result", func(t *testing.T) {
		w := f.do(t, http.MethodPatch, "/api/v1/measurements/len-1", `{"extensions":{"1bad":true}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidMeasurement, decodeResponse(t, w).Error.Code)

		m, _ := f.service.GetMeasurement("len-1")
		assert.Empty(t, m.Extensions)
	})

	t.Run("empty patch", func(t *testing.T) {
		w := f.do(t, http.MethodPatch, "/api/v1/measurements/len-1", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		w := f.do(t, http.MethodPatch, "/api/v1/measurements/missing", `{"label":"x"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	assert.Len(t, updates, 1)
}

func TestMeasurementHandler_SelectAndRemove(t *testing.T) {
	f := newMeasurementFixture(t)
	w := f.do(t, http.MethodPost, f.annotationsPath(tools.ToolLength), lengthAnnotation)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPut, "/api/v1/measurements/len-1/selection", `{"selected":true}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	m, _ := f.service.GetMeasurement("len-1")
	assert.True(t, m.Selected)

	w = f.do(t, http.MethodPut, "/api/v1/measurements/len-1/selection", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var removed []*measurement.MeasurementRemovedEvent
	f.service.Subscribe(measurement.EventTypeMeasurementRemoved, shared.EventHandlerFunc(
		func(_ context.Context, e shared.DomainEvent) error {
			removed = append(removed, e.(*measurement.MeasurementRemovedEvent))
			return nil
		}))

	w = f.do(t, http.MethodDelete, "/api/v1/measurements/len-1", `{"source_id":"unknown"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidSource, decodeResponse(t, w).Error.Code)

	body := `{"source_id":"` + f.source.ID + `","details":{"reason":"user"}}`
	w = f.do(t, http.MethodDelete, "/api/v1/measurements/len-1", body)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, removed, 1)
	assert.Equal(t, "len-1", removed[0].MeasurementID)
	assert.Equal(t, "user", removed[0].Details["reason"])
	assert.Same(t, f.source, removed[0].Source)

	w = f.do(t, http.MethodDelete, "/api/v1/measurements/len-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, removed, 1)
}

func TestMeasurementHandler_ClearMeasurements(t *testing.T) {
	f := newMeasurementFixture(t)
	w := f.do(t, http.MethodPost, f.annotationsPath(tools.ToolLength), lengthAnnotation)
	require.Equal(t, http.StatusCreated, w.Code)

	var cleared []*measurement.MeasurementsClearedEvent
	f.service.Subscribe(measurement.EventTypeMeasurementsCleared, shared.EventHandlerFunc(
		func(_ context.Context, e shared.DomainEvent) error {
			cleared = append(cleared, e.(*measurement.MeasurementsClearedEvent))
			return nil
		}))

	w = f.do(t, http.MethodDelete, "/api/v1/measurements", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, cleared, 1)
	assert.Len(t, cleared[0].Measurements, 1)
	assert.Empty(t, f.service.GetMeasurements())
}

func TestMeasurementHandler_JumpToMeasurement(t *testing.T) {
	f := newMeasurementFixture(t)
	w := f.do(t, http.MethodPost, f.annotationsPath(tools.ToolLength), lengthAnnotation)
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("not consumed without viewport listeners", func(t *testing.T) {
		f.events.Reset()
		w := f.do(t, http.MethodPost, "/api/v1/measurements/len-1/jump", `{"viewport_id":"vp-1"}`)
		require.Equal(t, http.StatusOK, w.Code)
		resp := dataAs[dto.JumpResponse](t, decodeResponse(t, w))
		assert.False(t, resp.Consumed)
		assert.Equal(t, []string{
			measurement.EventTypeJumpToMeasurementViewport,
			measurement.EventTypeJumpToMeasurementLayout,
		}, f.events.Types())
	})

	t.Run("consumed by a viewport listener", func(t *testing.T) {
		sub := f.service.Subscribe(measurement.EventTypeJumpToMeasurementViewport, shared.EventHandlerFunc(
			func(_ context.Context, e shared.DomainEvent) error {
				e.(*measurement.JumpToMeasurementEvent).Consume()
				return nil
			}))
		defer sub.Unsubscribe()

		w := f.do(t, http.MethodPost, "/api/v1/measurements/len-1/jump", "")
		require.Equal(t, http.StatusOK, w.Code)
		resp := dataAs[dto.JumpResponse](t, decodeResponse(t, w))
		assert.True(t, resp.Consumed)
		assert.Equal(t, "len-1", resp.MeasurementID)
	})

	t.Run("unknown id", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/measurements/missing/jump", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
