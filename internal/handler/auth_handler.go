package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/samg2014/VirtualHand/internal/dto"
	"github.com/samg2014/VirtualHand/internal/service"
	"github.com/samg2014/VirtualHand/internal/utils"
)

// AuthHandler exposes signup, login and password management.
type AuthHandler struct {
	service service.AccountService
	logger  zerolog.Logger
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(service service.AccountService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register binds the public auth routes. limiter guards every route when provided.
func (h *AuthHandler) Register(router fiber.Router, limiter fiber.Handler) {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Post("/signup", limiter, h.signup)
	router.Post("/login", limiter, h.login)
	router.Post("/recover-password", limiter, h.recoverPassword)
}

// RegisterAccount binds the authenticated account routes.
func (h *AuthHandler) RegisterAccount(router fiber.Router) {
	router.Put("/password", h.changePassword)
}

func (h *AuthHandler) signup(c *fiber.Ctx) error {
	var payload dto.SignupRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	user, err := h.service.Signup(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "create account")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "account created", user)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	resp, err := h.service.Login(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "log in")
	}

	return utils.SendSuccess(c, "logged in", resp)
}

func (h *AuthHandler) recoverPassword(c *fiber.Ctx) error {
	var payload dto.RecoverPasswordRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	resp, err := h.service.RecoverPassword(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "recover password")
	}

	return utils.SendSuccess(c, resp.Message, resp)
}

func (h *AuthHandler) changePassword(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.ChangePasswordRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	resp, err := h.service.ChangePassword(requestContext(c), userID, payload)
	if err != nil {
		return respondError(c, h.logger, err, "change password")
	}

	return utils.SendSuccess(c, resp.Message, resp)
}
