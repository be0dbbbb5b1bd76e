// Package logging provides structured logging for keeper.
//
// The package wraps log/slog:
//   - JSON, text and console handlers
//   - optional masking of client ids and vmess:// share links
//   - context fields (request id plus the otel trace and span ids)
//   - component-scoped child loggers
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//	slog.SetDefault(logger.Slog())
//
//	log := logger.Component("provision")
//	log.Info("binary ready", "strategy", "curl", "path", "./v2ray")
//
// # Redaction
//
// With RedactIDs set, attributes keyed uuid, client_id, id, uri or link and
// any string value containing a UUID or a vmess:// link are masked:
//
//   - de04add9-5c68-8bab-950c-08cd5320df18 → de04add9-****
//   - vmess://eyJ2IjoiMiIs... → vmess://***
//
// The startup banner exists to show operators the link, so redaction is off
// by default.
package logging
