package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/trogers1052/positions-dashboard/internal/utils"
)

// RequestIDHeader carries the request id in and out of the API
const RequestIDHeader = "X-Request-ID"

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestID)

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Rent routes
	api.HandleFunc("/rent", handler.CalculateRent).Methods("POST")
	api.HandleFunc("/rent/batch", handler.CalculateRents).Methods("POST")
	api.HandleFunc("/rent/cache", handler.ClearRentCache).Methods("DELETE")
	api.HandleFunc("/rent/cache/{conid}/{account}", handler.ForgetTradeOpenDate).Methods("DELETE")
	api.HandleFunc("/accounts/{account}/rent", handler.GetAccountRents).Methods("GET")
	api.HandleFunc("/positions/{conid}/accounts/{account}/trade-open-date", handler.GetTradeOpenDate).Methods("GET")

	// Rebalance routes
	settings := api.PathPrefix("/users/{userID}/rebalance-settings").Subrouter()
	settings.HandleFunc("", handler.ListRebalanceSettings).Methods("GET")
	settings.HandleFunc("/{positionKey}", handler.GetRebalanceSettings).Methods("GET")
	settings.HandleFunc("/{positionKey}", handler.SaveRebalanceSettings).Methods("PUT")
	settings.HandleFunc("/{positionKey}", handler.DeleteRebalanceSettings).Methods("DELETE")
	settings.HandleFunc("/{positionKey}/disable", handler.DisableRebalance).Methods("POST")
	settings.HandleFunc("/{positionKey}/range", handler.CheckDeltaRange).Methods("GET")

	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := utils.CtxWithRqID(r.Context(), r.Header.Get(RequestIDHeader))
		rqID := utils.GetRequestIDFromCtx(ctx)
		w.Header().Set(RequestIDHeader, rqID)

		next.ServeHTTP(w, r.WithContext(ctx))

		slog.Debug("request handled",
			slog.String("rqID", rqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)))
	})
}
