package httpgin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/velykodnyi/corridor/internal/repository"
	"github.com/velykodnyi/corridor/internal/service/region"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewRegionRouter builds the Regional Reservation Service API.
func NewRegionRouter(
	svc *region.Service,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "region": svc.Name()})
	})

	r.POST("/segments/process", handleProcessSegment(svc))
	r.POST("/segments/match", handleMatchSegments(svc))
	r.POST("/capacity/check", handleCheckCapacity(svc))
	r.POST("/reservations", handleReserve(svc))

	r.POST("/bookings/:id/confirm", handleRegionConfirm(svc))
	r.POST("/bookings/:id/cancel", handleRegionCancel(svc))
	r.GET("/bookings/:id/segments", handleRegionSegments(svc))

	return r
}

// @Summary  Match a coordinate run to segments and reserve them atomically
// @Param    req body  ProcessSegmentRequest true "payload"
// @Success  200 {object} ProcessSegmentResponse
// @Failure  404 {object} ErrorResponse "no segments matched"
// @Failure  409 {object} ErrorResponse "at capacity"
// @Router   /segments/process [post]
func handleProcessSegment(svc *region.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProcessSegmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		bookingID, err := uuid.Parse(req.BookingID)
		if err != nil {
			badRequest(c, "invalid booking_id")
			return
		}

		segmentIDs, err := svc.ProcessAndReserve(
			c.Request.Context(),
			bookingID,
			toCoordinates(req.Coordinates),
		)
		if err != nil {
			respondRegionErr(c, err)
			return
		}

		c.JSON(http.StatusOK, ProcessSegmentResponse{
			Status:     "reserved",
			SegmentIDs: segmentIDs,
		})
	}
}

// @Summary  Match a coordinate run to ordered segment IDs
// @Param    req body  MatchSegmentsRequest true "payload"
// @Success  200 {object} MatchSegmentsResponse
// @Router   /segments/match [post]
func handleMatchSegments(svc *region.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MatchSegmentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		segmentIDs, err := svc.MatchSegments(c.Request.Context(), toCoordinates(req.Coordinates))
		if err != nil {
			respondRegionErr(c, err)
			return
		}

		c.JSON(http.StatusOK, MatchSegmentsResponse{SegmentIDs: segmentIDs})
	}
}

// @Summary  Read-only capacity pre-flight
// @Param    req body  CheckCapacityRequest true "payload"
// @Success  200 {object} domain.CapacityReport
// @Router   /capacity/check [post]
func handleCheckCapacity(svc *region.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckCapacityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		report, err := svc.CheckCapacity(c.Request.Context(), req.SegmentIDs)
		if err != nil {
			respondRegionErr(c, err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

// @Summary  Reserve an explicit segment batch
// @Param    req body  ReserveRequest true "payload"
// @Success  200 {object} ProcessSegmentResponse
// @Failure  409 {object} ErrorResponse "at capacity"
// @Router   /reservations [post]
func handleReserve(svc *region.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReserveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		bookingID, err := uuid.Parse(req.BookingID)
		if err != nil {
			badRequest(c, "invalid booking_id")
			return
		}

		if err := svc.Reserve(c.Request.Context(), bookingID, req.SegmentIDs); err != nil {
			respondRegionErr(c, err)
			return
		}

		c.JSON(http.StatusOK, ProcessSegmentResponse{
			Status:     "reserved",
			SegmentIDs: req.SegmentIDs,
		})
	}
}

// @Summary  Confirm a booking's waiting reservations (idempotent)
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} ConfirmResponse
// @Router   /bookings/{id}/confirm [post]
func handleRegionConfirm(svc *region.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		updated, err := svc.Confirm(c.Request.Context(), bookingID)
		if err != nil {
			respondRegionErr(c, err)
			return
		}

		c.JSON(http.StatusOK, ConfirmResponse{Updated: updated})
	}
}

// @Summary  Cancel a booking's reservations and free load (idempotent)
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} domain.CancelResult
// @Router   /bookings/{id}/cancel [post]
func handleRegionCancel(svc *region.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		res, err := svc.Cancel(c.Request.Context(), bookingID)
		if err != nil {
			respondRegionErr(c, err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

// @Summary  List a booking's reservations with segment detail
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {array} domain.ReservedSegment
// @Router   /bookings/{id}/segments [get]
func handleRegionSegments(svc *region.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		segs, err := svc.Segments(c.Request.Context(), bookingID)
		if err != nil {
			respondRegionErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, segs, "public, max-age=5", true)
	}
}

func respondRegionErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, region.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "insufficient capacity on one or more segments",
			Code:  "at_capacity",
		})
	case errors.Is(err, region.ErrNoSegmentsFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "route intersects no segments in this region",
			Code:  "no_segments_found",
		})
	case errors.Is(err, region.ErrSegmentMissing):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "segment missing from inventory",
			Code:  "segment_missing",
		})
	case errors.Is(err, region.ErrLedgerInvariant):
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "segment ledger invariant violated",
			Code:  "ledger_invariant",
		})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
