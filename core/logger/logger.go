package logger

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// rayIDKey is the fiber locals key the rayid middleware stores ids under.
const rayIDKey = "ray_id"

// New creates a zap logger from cfg. The debug level selects zap's
// development config.
func New(cfg *Config) (*zap.Logger, error) {
	config, err := zapConfig(cfg)
	if err != nil {
		return nil, err
	}
	return config.Build()
}

func zapConfig(cfg *Config) (zap.Config, error) {
	config := zap.NewProductionConfig()
	switch cfg.Level {
	case "debug":
		config = zap.NewDevelopmentConfig()
	case "":
	default:
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return config, err
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}

	if cfg.Format == "console" {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.DisableStacktrace = true
	} else {
		config.Encoding = "json"
	}

	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.MessageKey = "message"
	return config, nil
}

// WithRayID returns a logger with the ray_id field set from the Fiber context.
func WithRayID(l *zap.Logger, c *fiber.Ctx) *zap.Logger {
	if id, ok := c.Locals(rayIDKey).(string); ok && id != "" {
		return l.With(zap.String("ray_id", id))
	}
	return l
}

// WithSession returns a logger with the session field set.
func WithSession(l *zap.Logger, id string) *zap.Logger {
	if id == "" {
		return l
	}
	return l.With(zap.String("session", id))
}
