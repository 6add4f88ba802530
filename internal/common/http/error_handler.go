package http

import (
	"net/http"
	"strconv"

	commonerrors "github.com/fieldsync/backend/internal/common/errors"
	"github.com/fieldsync/backend/internal/common/httpmetrics"
	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/internal/observability/metrics"
)

// HandleError maps a domain error to its HTTP status and envelope; anything
// else becomes an opaque 500.
func HandleError(w http.ResponseWriter, r *http.Request, err error, log *logger.Logger) {
	if err == nil {
		return
	}

	ctx := r.Context()
	traceID := TraceIDFromContext(ctx)

	if domainErr, ok := commonerrors.AsDomainError(err); ok {
		status := domainErr.HTTPStatus()

		if log.ShouldLog(logger.DEBUG) {
			log.WithFields(ctx, logger.Fields{
				"error_code": domainErr.Code(),
				"category":   string(domainErr.Category()),
				"status":     status,
				"action":     "domain_error",
			}).Debugf("domain error: %s", domainErr.Error())
		}

		metrics.DomainErrorsTotal.WithLabelValues(
			string(domainErr.Category()),
			domainErr.Code(),
			strconv.Itoa(status),
		).Inc()
		metrics.HTTPErrorsTotal.WithLabelValues(
			strconv.Itoa(status),
			httpmetrics.NormalizePath(r.URL.Path),
			r.Method,
		).Inc()

		WriteErrorEnvelope(w, status, domainErr.Code(), domainErr.Message(), nil, traceID)
		return
	}

	log.WithFields(ctx, logger.Fields{
		"error":  err.Error(),
		"action": "unhandled_error",
	}).Errorf("unhandled error: %v", err)

	metrics.HTTPErrorsTotal.WithLabelValues(
		strconv.Itoa(http.StatusInternalServerError),
		httpmetrics.NormalizePath(r.URL.Path),
		r.Method,
	).Inc()

	WriteError(w, http.StatusInternalServerError, "internal server error")
}
