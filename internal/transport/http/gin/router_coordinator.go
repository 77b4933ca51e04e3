package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/velykodnyi/corridor/internal/domain"
	redisx "github.com/velykodnyi/corridor/internal/redis"
	redisrepo "github.com/velykodnyi/corridor/internal/repository/redis"
	"github.com/velykodnyi/corridor/internal/service/booking"
)

// NewCoordinatorRouter builds the central booking API.
func NewCoordinatorRouter(
	svc *booking.Service,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
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
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/bookings", handleCreateBooking(svc, idem, limiter))
	r.GET("/bookings/:id", handleGetBooking(svc))
	r.GET("/bookings/:id/segments", handleBookingSegments(svc))
	r.POST("/bookings/:id/cancel", handleCancelBooking(svc))

	return r
}

// @Summary  Submit a booking (idempotent via Idempotency-Key)
// @Param    req body  CreateBookingRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} booking.Result
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "no route between endpoints"
// @Failure  409 {object} ErrorResponse "booking failed / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /bookings [post]
func handleCreateBooking(
	svc *booking.Service,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		origin, err := parseLatLon(req.StartCoordinates)
		if err != nil {
			badRequest(c, "start_coordinates: "+err.Error())
			return
		}

		destination, err := parseLatLon(req.DestinationCoordinates)
		if err != nil {
			badRequest(c, "destination_coordinates: "+err.Error())
			return
		}

		if limiter != nil {
			ok, _, retry, err := limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP())
			if err == nil && !ok {
				c.Header("Retry-After", retry.Round(time.Second).String())
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
				return
			}
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisx.KeyIdemBooking(idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
				return
			}
			if !locked {
				// Another request holds the key: either its result landed
				// between our read and the lock attempt, or it is still
				// in flight.
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				if inFlight, _ := idem.IsLocked(c.Request.Context(), idemStorageKey); inFlight {
					c.Header("Retry-After", "1")
					c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
					return
				}
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key contention"})
				return
			}
		}

		result, err := svc.Book(c.Request.Context(), origin, destination)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondBookingErr(c, err)
			return
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(result)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		status := http.StatusCreated
		if result.Status == domain.BookingFailure {
			status = http.StatusConflict
		}

		c.JSON(status, result)
	}
}

// @Summary  Get a booking record
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svc *booking.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		b, err := svc.Get(c.Request.Context(), bookingID)
		if err != nil {
			respondBookingErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, b, "public, max-age=5", true)
	}
}

// @Summary  List a booking's reservations across regions
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} map[string][]domain.ReservedSegment
// @Router   /bookings/{id}/segments [get]
func handleBookingSegments(svc *booking.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		segs, err := svc.Segments(c.Request.Context(), bookingID)
		if err != nil {
			respondBookingErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, segs, "public, max-age=5", true)
	}
}

// @Summary  Cancel a booking everywhere (idempotent)
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} booking.Result
// @Router   /bookings/{id}/cancel [post]
func handleCancelBooking(svc *booking.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		result, err := svc.Cancel(c.Request.Context(), bookingID)
		if err != nil {
			respondBookingErr(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondBookingErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrRouteNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no route between endpoints", Code: "route_not_found"})
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
