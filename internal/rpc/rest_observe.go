package rpc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

/*
instrumentHTTP returns http middleware which instruments the incoming handler with two metrics:
  - number of calls: how many times the endpoint has been called;
  - request duration: how long it took to serve the request.
*/
func instrumentHTTP(reg prometheus.Registerer) func(next http.Handler) http.Handler {
	callCnt := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blocknode",
		Subsystem: "rest_api",
		Name:      "calls_total",
		Help:      "How many times the endpoint has been called",
	}, []string{"route", "code"})
	callDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blocknode",
		Subsystem: "rest_api",
		Name:      "duration_seconds",
		Help:      "How long it took to serve the request",
	}, []string{"route", "code"})
	if err := registerAll(reg, callCnt, callDur); err != nil {
		log.Error("registering REST API metrics: %v", err)
		return passthroughMW
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			route := "unknown"
			if cr := mux.CurrentRoute(req); cr != nil {
				if path, err := cr.GetPathTemplate(); err == nil {
					route = path
				} else {
					log.Warning("reading route path: %v", err)
				}
			}

			start := time.Now()
			rsp := newStatusResponseWriter(w)
			next.ServeHTTP(rsp, req)

			code := strconv.Itoa(rsp.statusCode)
			callCnt.WithLabelValues(route, code).Inc()
			callDur.WithLabelValues(route, code).Observe(time.Since(start).Seconds())
		})
	}
}

func registerAll(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

/*
passthroughMW is NOP middleware.
*/
func passthroughMW(next http.Handler) http.Handler {
	return next
}

/*
statusResponseWriter is a http.ResponseWriter wrapper which allows to capture
status code of the response.
*/
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode    int
	headerWritten bool
}

func newStatusResponseWriter(w http.ResponseWriter) *statusResponseWriter {
	return &statusResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (mw *statusResponseWriter) WriteHeader(statusCode int) {
	mw.ResponseWriter.WriteHeader(statusCode)

	if !mw.headerWritten {
		mw.statusCode = statusCode
		mw.headerWritten = true
	}
}

func (mw *statusResponseWriter) Write(b []byte) (int, error) {
	mw.headerWritten = true
	return mw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach Flush and SetWriteDeadline of the wrapped writer.
func (mw *statusResponseWriter) Unwrap() http.ResponseWriter {
	return mw.ResponseWriter
}
