package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kiesman99/orthocrop/internal/api"
	"github.com/kiesman99/orthocrop/internal/catalog"
	"github.com/kiesman99/orthocrop/internal/extract"
	"github.com/kiesman99/orthocrop/internal/mosaic"
	"github.com/kiesman99/orthocrop/internal/selector"
	"github.com/kiesman99/orthocrop/internal/stitcher"
	"github.com/kiesman99/orthocrop/pkg/tile"
)

// Server implements the ServerInterface from the generated API
type Server struct {
	startTime time.Time
	version   string
	dataRoot  string
	stitcher  *stitcher.Stitcher
	limiter   *rate.Limiter
	log       *zap.Logger
}

// Option configures a Server
type Option func(*Server)

// WithRateLimit limits crop requests to rps per second with the given burst.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger sets the logger for errors and access logs
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer creates a new server instance serving the datasets below dataRoot
func NewServer(version, dataRoot string, st *stitcher.Stitcher, opts ...Option) *Server {
	s := &Server{
		startTime: time.Now(),
		version:   version,
		dataRoot:  dataRoot,
		stitcher:  st,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router with the API mounted at /api/v1
func (s *Server) Routes(timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  zap.NewStdLog(s.log),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(deadline(timeout))
	r.Use(cors)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			w.Write(api.Spec)
		})
		api.HandlerWithOptions(s, api.ChiServerOptions{
			BaseRouter:       r,
			ErrorHandlerFunc: s.handleParamError,
		})
	})

	// Legacy health endpoint (without /api/v1 prefix for backward compatibility)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/v1/health", http.StatusMovedPermanently)
	})
	return r
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}
	s.writeJSON(w, http.StatusOK, response)
}

// GetCrop implements the crop endpoint
func (s *Server) GetCrop(w http.ResponseWriter, r *http.Request, params api.GetCropParams) {
	requestID := middleware.GetReqID(r.Context())

	if s.limiter != nil && !s.limiter.Allow() {
		s.writeErrorResponse(w, http.StatusTooManyRequests, "RATE_LIMITED",
			"Too many crop requests, retry later", &requestID, nil)
		return
	}

	format := tile.FormatPNG
	contentType := "image/png"
	if params.Format != nil {
		switch *params.Format {
		case api.Png:
		case api.Jpeg:
			format = tile.FormatJPEG
			contentType = "image/jpeg"
		default:
			s.writeValidationErrorResponse(w, "format", fmt.Sprintf("unsupported format %q, expected png or jpeg", *params.Format), &requestID)
			return
		}
	}

	dir, err := s.datasetDir(params.Dataset)
	if err != nil {
		s.writeValidationErrorResponse(w, "dataset", err.Error(), &requestID)
		return
	}

	result, err := s.stitcher.GetCrop(r.Context(), stitcher.Request{
		X:      params.X,
		Y:      params.Y,
		Radius: params.Radius,
		Dir:    dir,
	})
	if err != nil {
		s.handleCropError(w, err, params.Dataset, &requestID)
		return
	}

	data, err := tile.EncodeBytes(result.Image, format)
	if err != nil {
		s.log.Error("encoding crop", zap.String("request_id", requestID), zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", &requestID, nil)
		return
	}

	ext := result.Extent()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Tile-Count", strconv.Itoa(len(result.Selection.Tiles)))
	w.Header().Set("X-Crop-Extent", fmt.Sprintf("%g,%g,%g,%g", ext.MinX(), ext.MinY(), ext.MaxX(), ext.MaxY()))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log.Warn("writing response", zap.String("request_id", requestID), zap.Error(err))
	}
}

// GetDatasetCatalog implements the catalog endpoint
func (s *Server) GetDatasetCatalog(w http.ResponseWriter, r *http.Request, dataset string) {
	requestID := middleware.GetReqID(r.Context())

	dir, err := s.datasetDir(dataset)
	if err != nil {
		s.writeValidationErrorResponse(w, "dataset", err.Error(), &requestID)
		return
	}
	cat, err := s.stitcher.Catalog(dir)
	if err != nil {
		s.handleCropError(w, err, dataset, &requestID)
		return
	}

	b := cat.Bounds()
	ext := b.ToGeomExtent()
	response := api.CatalogResponse{
		Dataset: dataset,
		Bbox:    []float32{float32(ext.MinX()), float32(ext.MinY()), float32(ext.MaxX()), float32(ext.MaxY())},
		MinX:    b.MinX,
		MaxX:    b.MaxX,
		MinY:    b.MinY,
		MaxY:    b.MaxY,
		Tiles:   make([]api.CatalogTile, len(cat.Tiles)),
	}
	for i, t := range cat.Tiles {
		response.Tiles[i] = api.CatalogTile{Name: filepath.Base(t.Path), X: t.XOrigin, Y: t.YOrigin}
	}
	if len(cat.Skipped) > 0 {
		skipped := make([]string, len(cat.Skipped))
		for i, m := range cat.Skipped {
			skipped[i] = m.Name
		}
		response.Skipped = &skipped
	}
	s.writeJSON(w, http.StatusOK, response)
}

// datasetDir resolves a dataset name below the data root. Names escaping the
// root are rejected.
func (s *Server) datasetDir(dataset string) (string, error) {
	if dataset == "" || !filepath.IsLocal(dataset) {
		return "", fmt.Errorf("dataset %q must be a relative path inside the data root", dataset)
	}
	return filepath.Join(s.dataRoot, dataset), nil
}

// handleCropError maps pipeline errors to HTTP responses
func (s *Server) handleCropError(w http.ResponseWriter, err error, dataset string, requestID *string) {
	var (
		radiusErr  *selector.InvalidRadiusError
		rangeErr   *selector.OutOfRangeError
		missingErr *selector.MissingTileError
		decodeErr  *mosaic.DecodeError
		shapeErr   *mosaic.InconsistentTileShapeError
		boundsErr  *extract.CropOutOfBoundsError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, "TIMEOUT",
			"Crop request timed out", requestID, nil)
	case errors.Is(err, context.Canceled):
		// client went away, nobody reads the response
		s.log.Debug("crop cancelled", zap.Stringp("request_id", requestID))
	case errors.As(err, &radiusErr):
		s.writeValidationErrorResponse(w, "radius", radiusErr.Error(), requestID)
	case errors.As(err, &rangeErr):
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, "OUT_OF_RANGE",
			rangeErr.Error(), requestID, map[string]interface{}{
				"axis":          rangeErr.Axis,
				"requested":     rangeErr.Requested,
				"available_min": rangeErr.AvailableMin,
				"available_max": rangeErr.AvailableMax,
			})
	case errors.As(err, &missingErr):
		s.writeErrorResponse(w, http.StatusNotFound, "MISSING_TILE",
			missingErr.Error(), requestID, map[string]interface{}{
				"x_origin": missingErr.XOrigin,
				"y_origin": missingErr.YOrigin,
			})
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, catalog.ErrEmptyCatalog):
		s.writeErrorResponse(w, http.StatusNotFound, "DATASET_NOT_FOUND",
			fmt.Sprintf("No tiles found for dataset %q", dataset), requestID, nil)
	case errors.As(err, &decodeErr):
		s.log.Error("tile decode failed", zap.Stringp("request_id", requestID), zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "DECODE_ERROR",
			fmt.Sprintf("Tile %s could not be decoded", decodeErr.Tile), requestID, map[string]interface{}{
				"x_origin": decodeErr.Tile.XOrigin,
				"y_origin": decodeErr.Tile.YOrigin,
			})
	case errors.As(err, &shapeErr):
		s.log.Error("inconsistent tile", zap.Stringp("request_id", requestID), zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "INCONSISTENT_TILE_SHAPE",
			shapeErr.Error(), requestID, nil)
	case errors.As(err, &boundsErr):
		s.log.Error("crop outside mosaic", zap.Stringp("request_id", requestID), zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", requestID, nil)
	default:
		s.log.Error("crop failed", zap.Stringp("request_id", requestID), zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", requestID, nil)
	}
}

// handleParamError reports query and path parameters the generated wrapper
// could not bind
func (s *Server) handleParamError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())
	field := "request"
	var (
		required *api.RequiredParamError
		invalid  *api.InvalidParamFormatError
	)
	switch {
	case errors.As(err, &required):
		field = required.ParamName
	case errors.As(err, &invalid):
		field = invalid.ParamName
	}
	s.writeValidationErrorResponse(w, field, err.Error(), &requestID)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encoding response", zap.Error(err))
	}
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}
	if details != nil {
		response.Details = &details
	}
	s.writeJSON(w, statusCode, response)
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, field, message string, requestID *string) {
	response := api.ValidationErrorResponse{
		Error:     api.VALIDATIONERROR,
		Message:   message,
		RequestId: requestID,
		ValidationErrors: []struct {
			Code    *string `json:"code,omitempty"`
			Field   string  `json:"field"`
			Message string  `json:"message"`
		}{
			{
				Field:   field,
				Message: message,
			},
		},
	}
	s.writeJSON(w, http.StatusBadRequest, response)
}

// requestID propagates the caller's X-Request-Id or generates one
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = generateRequestID()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deadline bounds the context of every request. It writes nothing, an expired
// crop is answered by handleCropError.
func deadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return "req_" + uuid.NewString()
}

// cors allows browser clients from any origin
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
