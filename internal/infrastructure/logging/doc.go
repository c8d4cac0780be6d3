// Package logging provides structured logging for FinBoard Core.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same shape and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "./data/finboard.log"
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("widget created", "id", id)
//
// Never log widget API URLs with embedded credentials in full.
package logging
