package handler

import (
	"github.com/medview/backend/internal/interfaces/http/router"
)

// SourceRoutes creates the route group for sources and their annotations
func SourceRoutes(h *MeasurementHandler) *router.DomainGroup {
	group := router.NewDomainGroup("sources", "/sources")

	group.POST("", h.CreateSource)
	group.GET("", h.ListSources)
	group.GET("/:id", h.GetSource)

	// Annotation conversion through the source's mappings
	group.POST("/:id/annotations/:type", h.AddAnnotation)
	group.PUT("/:id/annotations/:type", h.UpdateAnnotation)
	group.GET("/:id/annotations/:type/:measurementId", h.GetAnnotation)

	return group
}

// MeasurementRoutes creates the route group for the measurement store
func MeasurementRoutes(h *MeasurementHandler) *router.DomainGroup {
	group := router.NewDomainGroup("measurements", "/measurements")

	group.GET("", h.ListMeasurements)
	group.DELETE("", h.ClearMeasurements)
	group.GET("/:id", h.GetMeasurement)
	group.PATCH("/:id", h.UpdateMeasurement)
	group.DELETE("/:id", h.RemoveMeasurement)
	group.PUT("/:id/selection", h.SelectMeasurement)
	group.POST("/:id/jump", h.JumpToMeasurement)

	return group
}

// UnmappedRoutes creates the route group for annotations that failed conversion
func UnmappedRoutes(h *MeasurementHandler) *router.DomainGroup {
	group := router.NewDomainGroup("unmapped", "/unmapped")

	group.GET("", h.ListUnmapped)
	group.GET("/:id", h.GetUnmapped)

	return group
}

// EventRoutes creates the route group for the server-sent event stream
func EventRoutes(h *EventStreamHandler) *router.DomainGroup {
	group := router.NewDomainGroup("events", "/events")
	group.GET("/stream", h.Stream)
	return group
}
