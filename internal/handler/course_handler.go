package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/samg2014/VirtualHand/internal/dto"
	"github.com/samg2014/VirtualHand/internal/middleware"
	"github.com/samg2014/VirtualHand/internal/models"
	"github.com/samg2014/VirtualHand/internal/service"
	"github.com/samg2014/VirtualHand/internal/utils"
)

// CourseHandler exposes course management and request history over REST.
type CourseHandler struct {
	courses    service.CourseService
	assistance service.RequestService
	hallPass   service.RequestService
	logger     zerolog.Logger
}

// NewCourseHandler constructs a course handler.
func NewCourseHandler(courses service.CourseService, assistance, hallPass service.RequestService, logger zerolog.Logger) *CourseHandler {
	return &CourseHandler{
		courses:    courses,
		assistance: assistance,
		hallPass:   hallPass,
		logger:     logger.With().Str("component", "course_handler").Logger(),
	}
}

// Register binds course routes. The router must already be behind JWT authentication.
func (h *CourseHandler) Register(router fiber.Router) {
	teacher := middleware.AuthOptions{Role: middleware.AuthRoleTeacher}

	router.Get("/", middleware.WithAuth(h.list, middleware.AuthOptions{RequireUser: true}))
	router.Post("/", middleware.WithAuth(h.create, teacher))
	router.Post("/join", middleware.WithAuth(h.join, middleware.AuthOptions{Role: middleware.AuthRoleStudent}))
	router.Patch("/:id", middleware.WithAuth(h.rename, teacher))
	router.Delete("/:id", middleware.WithAuth(h.delete, teacher))
	router.Get("/:id/key", middleware.WithAuth(h.retrieveKey, teacher))
	router.Post("/:id/key", middleware.WithAuth(h.rotateKey, teacher))

	history := router.Group("/:id/history", middleware.RequireRole(models.RoleTeacher))
	history.Get("/assistance", h.history(h.assistance))
	history.Get("/hallpass", h.history(h.hallPass))
}

func (h *CourseHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	ctx := requestContext(c)

	switch userRoleFromContext(c) {
	case models.RoleTeacher, models.RoleAdmin:
		courses, err := h.courses.ListTaught(ctx, userID)
		if err != nil {
			return respondError(c, h.logger, err, "list courses")
		}
		return utils.OK(c, courses, "courses retrieved", fiber.Map{"count": len(courses)})
	default:
		enrollments, err := h.courses.ListEnrolled(ctx, userID)
		if err != nil {
			return respondError(c, h.logger, err, "list courses")
		}
		return utils.OK(c, enrollments, "courses retrieved", fiber.Map{"count": len(enrollments)})
	}
}

func (h *CourseHandler) create(c *fiber.Ctx) error {
	var payload dto.CourseCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	resp, err := h.courses.Create(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "create course")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, resp.Message, resp)
}

func (h *CourseHandler) rename(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err, "rename course")
	}

	var payload dto.CourseRenameRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	payload.CourseID = courseID

	resp, err := h.courses.Rename(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "rename course")
	}

	return utils.SendSuccess(c, resp.Message, resp)
}

func (h *CourseHandler) delete(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err, "delete course")
	}

	resp, err := h.courses.Delete(requestContext(c), userIDFromContext(c), courseID)
	if err != nil {
		return respondError(c, h.logger, err, "delete course")
	}

	return utils.SendSuccess(c, resp.Message, resp)
}

func (h *CourseHandler) retrieveKey(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err, "retrieve course key")
	}

	resp, err := h.courses.RetrieveKey(requestContext(c), userIDFromContext(c), courseID)
	if err != nil {
		return respondError(c, h.logger, err, "retrieve course key")
	}

	return utils.SendSuccess(c, "course key", resp)
}

func (h *CourseHandler) rotateKey(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err, "assign course key")
	}

	if err := h.courses.RotateKey(requestContext(c), userIDFromContext(c), courseID); err != nil {
		return respondError(c, h.logger, err, "assign course key")
	}

	return utils.SendSuccess(c, service.MsgCourseKeyAssigned, nil)
}

func (h *CourseHandler) join(c *fiber.Ctx) error {
	var payload dto.CourseJoinRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	enrollment, err := h.courses.Join(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "join course")
	}

	return utils.SendSuccess(c, service.MsgCourseJoined, enrollment)
}

func (h *CourseHandler) history(svc service.RequestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, err := parseIDParam(c, "id")
		if err != nil {
			return respondError(c, h.logger, err, "load history")
		}

		requests, err := svc.History(requestContext(c), userIDFromContext(c), courseID)
		if err != nil {
			return respondError(c, h.logger, err, "load history")
		}

		return utils.OK(c, requests, "request history", fiber.Map{"count": len(requests)})
	}
}
