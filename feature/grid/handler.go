package grid

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"databinding/core/database"
	"databinding/core/logger"
	"databinding/core/query"
	"databinding/core/reconcile"
	"databinding/core/server"
	"databinding/core/storage"
	"databinding/core/wire"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// maxWait caps the long poll of the updates route.
const maxWait = 30 * time.Second

// Handler handles HTTP requests for grid sessions.
type Handler struct {
	service  *Service
	encoding string
}

// NewHandler creates a new HTTP handler. encoding is the default response
// encoding, overridden per request by an Accept header naming CBOR.
func NewHandler(service *Service, encoding string) *Handler {
	return &Handler{service: service, encoding: encoding}
}

// RegisterRoutes registers the grid routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/grid")
	group.Post("/sessions", h.HandleCreate)
	group.Delete("/sessions/:id", h.HandleClose)
	group.Put("/sessions/:id/viewport", h.HandleViewport)
	group.Put("/sessions/:id/filter", h.HandleFilter)
	group.Put("/sessions/:id/sort", h.HandleSort)
	group.Post("/sessions/:id/ack", h.HandleAck)
	group.Post("/sessions/:id/refresh", h.HandleRefresh)
	group.Get("/sessions/:id/count", h.HandleCount)
	group.Get("/sessions/:id/items/:index", h.HandleItem)
	group.Get("/sessions/:id/updates", h.HandleUpdates)
}

type viewportRequest struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

type filterRequest struct {
	Filters []database.Where `json:"filters"`
}

type sortOrder struct {
	Property  string `json:"property"`
	Direction string `json:"direction"`
}

type sortRequest struct {
	Orders []sortOrder `json:"orders"`
}

// HandleCreate opens a session.
// @Summary Create Grid Session
// @Tags grid
// @Produce json
// @Success 201 {object} Update
// @Router /grid/sessions [post]
func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	u, err := h.service.Create(c.UserContext())
	if err != nil {
		return h.fail(c, "Grid session creation failed", err)
	}
	logger.WithRayID(h.service.logger, c).Debug("Grid session opened", zap.String("session", u.Session))
	c.Status(fiber.StatusCreated)
	return h.send(c, u)
}

// HandleClose ends a session.
// @Summary Close Grid Session
// @Tags grid
// @Param id path string true "Session ID"
// @Success 204
// @Router /grid/sessions/{id} [delete]
func (h *Handler) HandleClose(c *fiber.Ctx) error {
	if !h.service.Close(c.Params("id")) {
		return h.fail(c, "Grid session close failed", ErrSessionNotFound)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleViewport sets the rendered range.
// @Summary Set Viewport
// @Tags grid
// @Accept json
// @Param id path string true "Session ID"
// @Router /grid/sessions/{id}/viewport [put]
func (h *Handler) HandleViewport(c *fiber.Ctx) error {
	var req viewportRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, "Invalid viewport body", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}
	u, err := h.service.SetViewport(c.UserContext(), c.Params("id"), req.Start, req.Length)
	if err != nil {
		return h.fail(c, "Set viewport failed", err)
	}
	return h.send(c, u)
}

// HandleFilter replaces the filter.
// @Summary Set Filter
// @Tags grid
// @Accept json
// @Param id path string true "Session ID"
// @Router /grid/sessions/{id}/filter [put]
func (h *Handler) HandleFilter(c *fiber.Ctx) error {
	var req filterRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, "Invalid filter body", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}
	u, err := h.service.SetFilter(c.UserContext(), c.Params("id"), req.Filters)
	if err != nil {
		return h.fail(c, "Set filter failed", err)
	}
	return h.send(c, u)
}

// HandleSort replaces the sort orders.
// @Summary Set Sort Orders
// @Tags grid
// @Accept json
// @Param id path string true "Session ID"
// @Router /grid/sessions/{id}/sort [put]
func (h *Handler) HandleSort(c *fiber.Ctx) error {
	var req sortRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, "Invalid sort body", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}
	orders := make([]query.SortOrder, 0, len(req.Orders))
	for _, o := range req.Orders {
		switch strings.ToLower(o.Direction) {
		case "", "asc":
			orders = append(orders, query.Asc(o.Property))
		case "desc":
			orders = append(orders, query.Desc(o.Property))
		default:
			return h.fail(c, "Invalid sort body", fmt.Errorf("%w: direction %q", ErrInvalidRequest, o.Direction))
		}
	}
	u, err := h.service.SetSort(c.UserContext(), c.Params("id"), orders)
	if err != nil {
		return h.fail(c, "Set sort failed", err)
	}
	return h.send(c, u)
}

// HandleAck confirms an applied update. The body is JSON or a MsgAck frame.
// @Summary Acknowledge Update
// @Tags grid
// @Accept json
// @Param id path string true "Session ID"
// @Router /grid/sessions/{id}/ack [post]
func (h *Handler) HandleAck(c *fiber.Ctx) error {
	var ack wire.Ack
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), wire.ContentType) {
		header, payload, err := wire.DecodeFrame(c.Body())
		if err == nil && header.Type != wire.MsgAck {
			err = fmt.Errorf("unexpected %s frame", header.Type)
		}
		if err == nil {
			err = wire.Unmarshal(payload, &ack)
		}
		if err != nil {
			return h.fail(c, "Invalid ack frame", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		}
	} else if err := c.BodyParser(&ack); err != nil {
		return h.fail(c, "Invalid ack body", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}

	u, err := h.service.Acknowledge(c.UserContext(), c.Params("id"), ack.UpdateID)
	if err != nil {
		return h.fail(c, "Acknowledge failed", err)
	}
	return h.send(c, u)
}

// HandleRefresh reloads the session from the backend.
// @Summary Refresh Session
// @Tags grid
// @Param id path string true "Session ID"
// @Router /grid/sessions/{id}/refresh [post]
func (h *Handler) HandleRefresh(c *fiber.Ctx) error {
	u, err := h.service.Refresh(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Refresh failed", err)
	}
	return h.send(c, u)
}

// HandleCount returns the size of the filtered data.
// @Summary Count Rows
// @Tags grid
// @Produce json
// @Param id path string true "Session ID"
// @Router /grid/sessions/{id}/count [get]
func (h *Handler) HandleCount(c *fiber.Ctx) error {
	n, err := h.service.Count(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Count failed", err)
	}
	return c.JSON(fiber.Map{"count": n})
}

// HandleItem returns a single row.
// @Summary Get Row
// @Tags grid
// @Produce json
// @Param id path string true "Session ID"
// @Param index path int true "Row index"
// @Router /grid/sessions/{id}/items/{index} [get]
func (h *Handler) HandleItem(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil {
		return h.fail(c, "Invalid item index", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}
	item, err := h.service.Item(c.UserContext(), c.Params("id"), index)
	if err != nil {
		return h.fail(c, "Item lookup failed", err)
	}
	return c.JSON(fiber.Map{"index": index, "item": item})
}

// HandleUpdates returns what background fetches produced, waiting up to the
// wait query parameter for them.
// @Summary Poll Updates
// @Tags grid
// @Param id path string true "Session ID"
// @Param wait query string false "Long poll duration (e.g. '2s')"
// @Router /grid/sessions/{id}/updates [get]
func (h *Handler) HandleUpdates(c *fiber.Ctx) error {
	var wait time.Duration
	if raw := c.Query("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return h.fail(c, "Invalid wait", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		}
		wait = min(d, maxWait)
	}
	u, err := h.service.Poll(c.UserContext(), c.Params("id"), wait)
	if err != nil {
		return h.fail(c, "Poll failed", err)
	}
	return h.send(c, u)
}

func (h *Handler) wantsFrames(c *fiber.Ctx) bool {
	accept := c.Get(fiber.HeaderAccept)
	if strings.Contains(accept, wire.ContentType) {
		return true
	}
	if strings.Contains(accept, fiber.MIMEApplicationJSON) {
		return false
	}
	return h.encoding == server.EncodingCBOR
}

func (h *Handler) send(c *fiber.Ctx, u *Update) error {
	if !h.wantsFrames(c) {
		return c.JSON(u)
	}
	data, err := u.Frames()
	if err != nil {
		return h.fail(c, "Update encoding failed", err)
	}
	c.Set(fiber.HeaderContentType, wire.ContentType)
	c.Set("X-Last-Update-ID", fmt.Sprint(u.LastUpdateID))
	return c.Send(data)
}

func (h *Handler) fail(c *fiber.Ctx, msg string, err error) error {
	status := statusOf(err)
	l := logger.WithRayID(h.service.logger, c)
	if status >= fiber.StatusInternalServerError {
		l.Error(msg, zap.Error(err))
	} else {
		l.Debug(msg, zap.Error(err))
	}

	c.Status(status)
	if h.wantsFrames(c) {
		frame, ferr := wire.EncodeFrame(wire.MsgError, wire.Failure{Status: status, Message: err.Error()})
		if ferr == nil {
			c.Set(fiber.HeaderContentType, wire.ContentType)
			return c.Send(frame)
		}
	}
	return c.JSON(fiber.Map{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, reconcile.ErrConfig),
		errors.Is(err, reconcile.ErrState),
		errors.Is(err, reconcile.ErrOutOfBounds),
		errors.Is(err, database.ErrUnknownColumn),
		errors.Is(err, database.ErrUnsupportedFilter),
		errors.Is(err, storage.ErrUnsupportedSort),
		errors.Is(err, storage.ErrUnsupportedFilter):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
