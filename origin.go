/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"

	"github.com/rs/cors"
)

type corsLogger struct {
	cfg *Config
}

func (l corsLogger) Printf(format string, args ...any) {
	logf(l.cfg, "CORS: "+format, args...)
}

// newCORS builds the single origin policy shared by the HTTP API and the
// socket upgrader.
func newCORS(cfg *Config) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: cfg.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
		Debug:          cfg.verbose,
		Logger:         corsLogger{cfg: cfg},
	})
}
