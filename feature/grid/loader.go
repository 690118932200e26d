package grid

import (
	"github.com/gofiber/fiber/v2"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	cfg     Config
	service *Service
	handler *Handler
}

// NewFeature creates the grid feature over an existing service.
func NewFeature(cfg Config, service *Service, encoding string) *Feature {
	return &Feature{cfg: cfg, service: service, handler: NewHandler(service, encoding)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "grid"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return f.cfg.Enabled
}

// Service returns the session service behind the routes.
func (f *Feature) Service() *Service {
	return f.service
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
