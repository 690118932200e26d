// Package logger builds the zap logger shared by every package.
//
// Level selects the minimum severity (debug, info, warn, error). Format picks
// json for machines or console for humans; debug switches to the development
// config with ISO8601 timestamps.
//
// Request scoped loggers carry correlation fields: WithRayID adds the ray id
// assigned by the rayid middleware and WithSession the grid session id.
//
//	l := logger.WithSession(logger.WithRayID(log, c), sessionID)
//	l.Debug("Viewport changed", zap.Int("start", start))
package logger
