// Package roomrest provides REST API utilities with CORS support and common middleware.
package roomrest

import (
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/savaki/apigateway"

	roomcli "github.com/douglasnaphas/room-app-1/room-cli"
)

func Middlewares(service roomcli.Service, routes chi.Router) chi.Router {
	routes.Use(
		withCORS(),
		withLogger(roomcli.Logger(service)),
		middleware.Recoverer,
	)
	return routes
}

func Webserver(service roomcli.Service, routes chi.Router) error {
	logger := roomcli.Logger(service)

	if roomcli.CommonOpts.Console {
		logger.Info().Int("port", roomcli.CommonOpts.Port).Msg("starting http server")
		addr := fmt.Sprintf(":%v", roomcli.CommonOpts.Port)
		return http.ListenAndServe(addr, routes)
	}

	lambda.Start(apigateway.Wrap(routes, roomcli.CommonOpts.Env))
	return nil
}

func withCORS() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.WithContext(req.Context())
			req = req.WithContext(ctx)
			handler.ServeHTTP(w, req)
		})
	}
}
