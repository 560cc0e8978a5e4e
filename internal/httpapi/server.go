// Package httpapi: административный HTTP API витрины: магазины, меню,
// изображения, сотрудники и заказы, плюс служебные эндпоинты.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/tracing"
)

const maxJSONBody = 1 << 20

// Catalog: операции с профилем магазина.
type Catalog interface {
	GetShop(ctx context.Context, shopID string) (domain.Shop, error)
	CreateShop(ctx context.Context, shop domain.Shop) (domain.Shop, error)
	SaveShop(ctx context.Context, shopID string, patch domain.Shop) (domain.Shop, error)
	AddMenuItem(ctx context.Context, shopID string, item domain.MenuItem) (domain.Shop, error)
	UpdateMenuItem(ctx context.Context, shopID string, index int, item domain.MenuItem) (domain.Shop, error)
	RemoveMenuItem(ctx context.Context, shopID string, index int) (domain.Shop, error)
	UploadMenuImage(ctx context.Context, shopID, fileName, contentType string, body io.Reader, size int64) (string, error)
}

// Clerks: вход сотрудников.
type Clerks interface {
	SignIn(ctx context.Context, identity domain.Clerk) (domain.Clerk, error)
	Get(ctx context.Context, id string) (domain.Clerk, error)
}

// Orders: разовые чтения и смена статуса заказов.
type Orders interface {
	ChangeStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, []domain.TimelineEvent, error)
	ListOrders(ctx context.Context, shopID string) ([]domain.Order, error)
}

// Config: зависимости HTTP API. Health и TracerProvider необязательны.
type Config struct {
	Catalog        Catalog
	Clerks         Clerks
	Orders         Orders
	Health         *health.Handler
	Logger         *log.Entry
	TracerProvider trace.TracerProvider
}

type server struct {
	catalog Catalog
	clerks  Clerks
	orders  Orders
	logger  *log.Entry
	tracer  trace.Tracer
}

// NewRouter собирает маршруты API.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	s := &server{
		catalog: cfg.Catalog,
		clerks:  cfg.Clerks,
		orders:  cfg.Orders,
		logger:  logger,
		tracer:  tracing.Tracer(cfg.TracerProvider, "storefront/httpapi"),
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/livez", health.LivenessHandler).Methods(http.MethodGet)
	if cfg.Health != nil {
		r.Handle("/healthz", cfg.Health).Methods(http.MethodGet)
		r.HandleFunc("/readyz", cfg.Health.ReadinessHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.traceMiddleware)

	if s.catalog != nil {
		api.HandleFunc("/shops", s.createShop).Methods(http.MethodPost)
		api.HandleFunc("/shops/{shopID}", s.getShop).Methods(http.MethodGet)
		api.HandleFunc("/shops/{shopID}", s.saveShop).Methods(http.MethodPatch)
		api.HandleFunc("/shops/{shopID}/menu", s.addMenuItem).Methods(http.MethodPost)
		api.HandleFunc("/shops/{shopID}/menu/{index:[0-9]+}", s.updateMenuItem).Methods(http.MethodPut)
		api.HandleFunc("/shops/{shopID}/menu/{index:[0-9]+}", s.removeMenuItem).Methods(http.MethodDelete)
		api.HandleFunc("/shops/{shopID}/images", s.uploadImage).Methods(http.MethodPost)
	}
	if s.orders != nil {
		api.HandleFunc("/shops/{shopID}/orders", s.listOrders).Methods(http.MethodGet)
		api.HandleFunc("/orders/{orderID}", s.getOrder).Methods(http.MethodGet)
		api.HandleFunc("/orders/{orderID}/status", s.changeStatus).Methods(http.MethodPut)
	}
	if s.clerks != nil {
		api.HandleFunc("/clerks/sign-in", s.signIn).Methods(http.MethodPost)
		api.HandleFunc("/clerks/{clerkID}", s.getClerk).Methods(http.MethodGet)
	}

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// traceMiddleware открывает span на запрос и пишет access-лог.
func (s *server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", rec.status),
		)
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
		s.logger.WithFields(log.Fields{
			"method":   r.Method,
			"route":    route,
			"status":   rec.status,
			"duration": time.Since(started),
		}).Debug("http request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// StatusCode сопоставляет доменную ошибку с HTTP-статусом.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case domain.IsMalformed(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsInvalidTransition(err), domain.IsAlreadyExists(err):
		return http.StatusConflict
	case domain.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		message = "internal error"
	}
	if code >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(log.Fields{"method": r.Method, "path": r.URL.Path}).Warn("http request failed")
		trace.SpanFromContext(r.Context()).RecordError(err)
	}
	writeJSON(w, code, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.Join(domain.ErrMalformedInput, err)
	}
	return nil
}
