package mgmt

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/santa-bot/internal/coordinator"
	serrors "github.com/p-blackswan/santa-bot/internal/errors"
	"github.com/p-blackswan/santa-bot/internal/health"
	"github.com/p-blackswan/santa-bot/internal/notify"
	"github.com/p-blackswan/santa-bot/internal/requestid"
	"github.com/p-blackswan/santa-bot/internal/santa"
)

// Sessions is the coordinator surface exposed to operators.
type Sessions interface {
	List(ctx context.Context) ([]*santa.Session, error)
	Get(ctx context.Context, room string) (*santa.Session, error)
	Stats(ctx context.Context) (coordinator.Stats, error)
	Expired(s *santa.Session) bool
	Now() time.Time
	Cancel(ctx context.Context, room string, actor coordinator.Actor) (coordinator.Result, error)
	Migrate(ctx context.Context, oldRoom string, newRoom coordinator.Room, actor coordinator.Actor) (coordinator.Result, error)
}

// Runner delivers notification plans.
type Runner interface {
	Run(ctx context.Context, plan []coordinator.Notification) notify.Report
}

// defaultActor names operator actions when the caller gives no identity.
const defaultActor = "operator"

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	sessions  Sessions
	runner    Runner
	checker   *health.Checker
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions Sessions, runner Runner, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		sessions:  sessions,
		runner:    runner,
		checker:   checker,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

func (h *Handlers) view(s *santa.Session) SessionView {
	return SessionView{
		Session: s,
		Age:     humanize.RelTime(s.CreatedAt, h.sessions.Now(), "", ""),
		Expired: h.sessions.Expired(s),
	}
}

// ListSessions handles GET /api/v1/sessions.
func (h *Handlers) ListSessions(c *fiber.Ctx) error {
	sessions, err := h.sessions.List(c.UserContext())
	if err != nil {
		return storeProblem(c, err)
	}

	state := santa.State(c.Query("state"))
	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		if state != "" && s.State != state {
			continue
		}
		views = append(views, h.view(s))
	}
	return c.JSON(SessionListResponse{Sessions: views, Total: len(views)})
}

// GetSession handles GET /api/v1/sessions/:room.
func (h *Handlers) GetSession(c *fiber.Ctx) error {
	room := c.Params("room")
	s, err := h.sessions.Get(c.UserContext(), room)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return problemResponse(c, fiber.StatusNotFound,
				"session_not_found", "Not Found",
				"No active session in room "+room)
		}
		return storeProblem(c, err)
	}
	return c.JSON(SessionResponse{Session: h.view(s)})
}

// CancelSession handles DELETE /api/v1/sessions/:room.
func (h *Handlers) CancelSession(c *fiber.Ctx) error {
	room := c.Params("room")
	res, err := h.sessions.Cancel(c.UserContext(), room, h.actor(c, c.Query("actor")))
	if err != nil {
		return storeProblem(c, err)
	}
	return h.respond(c, "cancel", room, res)
}

// MigrateSession handles POST /api/v1/sessions/:room/migrate.
func (h *Handlers) MigrateSession(c *fiber.Ctx) error {
	var req MigrateRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.NewRoom == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_new_room", "Bad Request",
			"new_room is required")
	}

	room := c.Params("room")
	res, err := h.sessions.Migrate(c.UserContext(), room,
		coordinator.Room{ID: req.NewRoom, Title: req.NewRoomTitle},
		h.actor(c, req.Actor))
	if err != nil {
		return storeProblem(c, err)
	}
	return h.respond(c, "migrate", room, res)
}

// Stats handles GET /api/v1/stats.
func (h *Handlers) Stats(c *fiber.Ctx) error {
	st, err := h.sessions.Stats(c.UserContext())
	if err != nil {
		return storeProblem(c, err)
	}
	return c.JSON(StatsResponse{
		Stats:  st,
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.UserContext())
	checks := make(map[string]string, len(results))
	for name, status := range results {
		checks[name] = string(status)
	}

	resp := ReadinessResponse{Status: "ready", Checks: checks, Time: time.Now().UTC()}
	if !health.Ready(results) {
		resp.Status = "not_ready"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

// actor builds the operator identity: the jwt subject, else the given name.
func (h *Handlers) actor(c *fiber.Ctx, name string) coordinator.Actor {
	id, _ := c.Locals("subject").(string)
	if id == "" {
		id = name
	}
	if id == "" {
		id = defaultActor
	}
	return coordinator.Actor{ID: id, DisplayName: id, Operator: true}
}

func (h *Handlers) respond(c *fiber.Ctx, op, room string, res coordinator.Result) error {
	log := requestid.Logger(c.UserContext(), h.logger)
	if !res.OK() {
		log.Info().Str("op", op).Str("room", room).Str("status", string(res.Status)).Msg("operation rejected")
		code := statusCode(res.Status)
		return problemResponse(c, code, string(res.Status), utils.StatusMessage(code), res.Notice)
	}

	out := OperationResponse{Status: res.Status, Notice: res.Notice, Session: res.Session}
	if h.runner != nil {
		report := h.runner.Run(c.UserContext(), res.Plan)
		out.Delivered = report.Delivered
		for _, f := range report.Failures {
			out.Failures = append(out.Failures, f.Error())
		}
	}
	log.Info().Str("op", op).Str("room", room).Int("delivered", out.Delivered).Int("failed", len(out.Failures)).Msg("operation applied")
	return c.JSON(out)
}

func statusCode(s coordinator.Status) int {
	switch s {
	case coordinator.StatusOK:
		return fiber.StatusOK
	case coordinator.StatusNotFound:
		return fiber.StatusNotFound
	case coordinator.StatusAlreadyExists, coordinator.StatusGuardFailed, coordinator.StatusPartialFailure:
		return fiber.StatusConflict
	case coordinator.StatusNotAuthorized:
		return fiber.StatusForbidden
	case coordinator.StatusUnavailable:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// storeProblem maps an operation error to a problem response.
func storeProblem(c *fiber.Ctx, err error) error {
	if errors.Is(err, serrors.ErrUnavailable) {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"store_unavailable", "Service Unavailable",
			"The session store is unavailable, try again later")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"timeout", "Service Unavailable",
			"The request was canceled before it completed")
	}
	return err
}
