package rpc

import (
	"net/http"
	"time"

	"github.com/blocknode-org/blocknode/internal/logger"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	headerContentType = "Content-Type"
	applicationJson   = "application/json"
	applicationCBOR   = "application/cbor"

	pathMetrics = "/metrics"
)

var (
	allowedCORSHeaders = []string{"Accept", "Accept-Language", "Content-Language", "Origin", headerContentType}

	log = logger.CreateForPackage()
)

type (
	// Registrar registers new HTTP handlers for given router.
	Registrar interface {
		Register(r *mux.Router)
	}

	// RegistrarFunc type is an adapter to allow the use of ordinary function as Registrar.
	RegistrarFunc func(r *mux.Router)

	Observability interface {
		Registry() *prometheus.Registry
		PrometheusHandler() http.Handler
	}
)

/*
NewRESTServer returns server with the endpoints of registrars under /api/v1.
When obs is not nil the API calls are instrumented and the metrics are served
at /metrics.
*/
func NewRESTServer(addr string, maxBodySize int64, obs Observability, registrars ...Registrar) *http.Server {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(http.NotFound)
	apiV1Router := r.PathPrefix("/api/v1").Subrouter()
	apiV1Router.Use(handlers.CORS(handlers.AllowedHeaders(allowedCORSHeaders)))
	if obs != nil {
		apiV1Router.Use(instrumentHTTP(obs.Registry()))
		r.Handle(pathMetrics, obs.PrometheusHandler()).Methods(http.MethodGet)
	}

	for _, registrar := range registrars {
		registrar.Register(apiV1Router)
	}

	var h http.Handler = r
	if maxBodySize > 0 {
		h = http.MaxBytesHandler(r, maxBodySize)
	}
	return &http.Server{
		Addr:              addr,
		ReadTimeout:       3 * time.Second,
		ReadHeaderTimeout: time.Second,
		// streaming endpoints lift the deadline of their response
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
		Handler:      handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(h),
	}
}

func (f RegistrarFunc) Register(r *mux.Router) {
	f(r)
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...any) {
	log.Error("recovered from panic in HTTP handler: %v", v)
}
