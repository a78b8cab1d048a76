package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/samg2014/VirtualHand/internal/dto"
	"github.com/samg2014/VirtualHand/internal/models"
	"github.com/samg2014/VirtualHand/internal/repository"
	appErrors "github.com/samg2014/VirtualHand/pkg/errors"
)

// Account messages shown to users.
const (
	MsgUsernameTaken           = "That username is already taken."
	MsgLoginFailed             = "Incorrect username or password."
	MsgInvalidUserID           = "Error: invalid user id"
	MsgIncorrectOldPassword    = "Error: incorrect old password"
	MsgPasswordChanged         = "Password changed successfully"
	MsgStudentPasswordChanged  = "Successfully changed the password"
	MsgStudentPasswordFailed   = "Unable to change the students password!"
	MsgRecoveryUnavailable     = "Cannot recover password: either user does not exist or the user has no email on record."
	MsgRecoverySent            = "Your password has been reset. Please check your email for your new password."
	MsgRecoveryThrottled       = "A password reset was requested recently. Please check your email or try again later."
	recoveryEmailSubject       = "Virtual Hand Password Reset"
	recoveryEmailTextFormat    = "Virtual Hand has received a request for your account's password to be reset. Your new password is: %s \nPlease change it right away."
	defaultRecoveryThrottleTTL = 10 * time.Minute
)

// MembershipChecker confirms course ownership and enrollment.
type MembershipChecker interface {
	VerifyCourseTaughtBy(ctx context.Context, courseID, teacherID uint) error
	ConfirmStudentInClass(ctx context.Context, studentID, courseID uint) error
}

// AccountConfig tunes token issuing and password recovery.
type AccountConfig struct {
	JWTSecret        string
	JWTTTL           time.Duration
	RecoveryThrottle time.Duration
}

// AccountService exposes signup, login and password management.
type AccountService interface {
	Signup(ctx context.Context, req dto.SignupRequest) (dto.UserResponse, error)
	Login(ctx context.Context, req dto.LoginRequest) (dto.LoginResponse, error)
	ChangePassword(ctx context.Context, userID uint, req dto.ChangePasswordRequest) (dto.OperationResponse, error)
	ChangeStudentPassword(ctx context.Context, teacherID uint, req dto.ChangeStudentPasswordRequest) (dto.OperationResponse, error)
	RecoverPassword(ctx context.Context, req dto.RecoverPasswordRequest) (dto.OperationResponse, error)
}

type accountService struct {
	users      repository.UserRepository
	membership MembershipChecker
	mailer     Mailer
	cache      *redis.Client
	validator  *validator.Validate
	passwords  KeyGenerator
	cfg        AccountConfig
	hashCost   int
	now        func() time.Time
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewAccountService constructs the account service. cache may be nil, which disables recovery throttling.
func NewAccountService(users repository.UserRepository, membership MembershipChecker, mailer Mailer, cache *redis.Client, validate *validator.Validate, cfg AccountConfig, logger zerolog.Logger) AccountService {
	if cfg.JWTTTL <= 0 {
		cfg.JWTTTL = 24 * time.Hour
	}
	if cfg.RecoveryThrottle <= 0 {
		cfg.RecoveryThrottle = defaultRecoveryThrottleTTL
	}

	return &accountService{
		users:      users,
		membership: membership,
		mailer:     mailer,
		cache:      cache,
		validator:  validate,
		passwords:  NewPasswordGenerator(),
		cfg:        cfg,
		hashCost:   bcrypt.DefaultCost,
		now:        time.Now,
		logger:     logger.With().Str("component", "account_service").Logger(),
		tracer:     otel.Tracer("github.com/samg2014/VirtualHand/internal/service/account"),
	}
}

func (s *accountService) Signup(ctx context.Context, req dto.SignupRequest) (dto.UserResponse, error) {
	ctx, span := s.tracer.Start(ctx, "account.signup")
	defer span.End()

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.UserResponse{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	if _, err := s.users.GetByUsername(ctx, req.Username); err == nil {
		return dto.UserResponse{}, appErrors.Clone(appErrors.ErrConflict, MsgUsernameTaken)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		return dto.UserResponse{}, err
	}

	hash, err := s.hash(req.Password)
	if err != nil {
		span.RecordError(err)
		return dto.UserResponse{}, err
	}

	user := models.User{
		Username:     req.Username,
		PasswordHash: hash,
		Email:        req.Email,
		Role:         req.Role,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		span.RecordError(err)
		return dto.UserResponse{}, err
	}

	s.logger.Info().Uint("user_id", user.ID).Str("role", user.Role).Msg("account created")
	return dto.NewUserResponse(user), nil
}

func (s *accountService) Login(ctx context.Context, req dto.LoginRequest) (dto.LoginResponse, error) {
	ctx, span := s.tracer.Start(ctx, "account.login")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.LoginResponse{}, appErrors.Clone(appErrors.ErrUnauthorized, MsgLoginFailed)
	}

	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.LoginResponse{}, appErrors.Clone(appErrors.ErrUnauthorized, MsgLoginFailed)
		}
		span.RecordError(err)
		return dto.LoginResponse{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		span.SetStatus(codes.Error, "password mismatch")
		return dto.LoginResponse{}, appErrors.Clone(appErrors.ErrUnauthorized, MsgLoginFailed)
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.cfg.JWTTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(user.ID), 10),
		"role": user.Role,
		"iat":  issuedAt.Unix(),
		"exp":  expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		span.RecordError(err)
		return dto.LoginResponse{}, err
	}

	return dto.LoginResponse{Token: signed, ExpiresAt: expiresAt, User: dto.NewUserResponse(user)}, nil
}

func (s *accountService) ChangePassword(ctx context.Context, userID uint, req dto.ChangePasswordRequest) (dto.OperationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "account.change_password", trace.WithAttributes(attribute.Int64("account.user_id", int64(userID))))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.OperationResponse{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.OperationResponse{}, appErrors.Clone(appErrors.ErrValidation, MsgInvalidUserID)
		}
		span.RecordError(err)
		return dto.OperationResponse{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)) != nil {
		return dto.OperationResponse{}, appErrors.Clone(appErrors.ErrValidation, MsgIncorrectOldPassword)
	}

	if err := s.setPassword(ctx, user.ID, req.NewPassword); err != nil {
		span.RecordError(err)
		return dto.OperationResponse{}, err
	}

	return dto.OperationResponse{Success: true, Message: MsgPasswordChanged}, nil
}

func (s *accountService) ChangeStudentPassword(ctx context.Context, teacherID uint, req dto.ChangeStudentPasswordRequest) (dto.OperationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "account.change_student_password", trace.WithAttributes(
		attribute.Int64("account.teacher_id", int64(teacherID)),
		attribute.Int64("account.student_id", int64(req.StudentID)),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.OperationResponse{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	refused := appErrors.Clone(appErrors.ErrForbidden, MsgStudentPasswordFailed)
	if err := s.membership.VerifyCourseTaughtBy(ctx, req.CourseID, teacherID); err != nil {
		return dto.OperationResponse{}, domainOr(err, refused)
	}
	if err := s.membership.ConfirmStudentInClass(ctx, req.StudentID, req.CourseID); err != nil {
		return dto.OperationResponse{}, domainOr(err, refused)
	}

	student, err := s.users.GetByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.OperationResponse{}, refused
		}
		span.RecordError(err)
		return dto.OperationResponse{}, err
	}
	if student.Role != models.RoleStudent {
		return dto.OperationResponse{}, refused
	}

	if err := s.setPassword(ctx, student.ID, req.Password); err != nil {
		span.RecordError(err)
		return dto.OperationResponse{}, err
	}

	s.logger.Info().Uint("teacher_id", teacherID).Uint("student_id", student.ID).Msg("student password changed by teacher")
	return dto.OperationResponse{Success: true, Message: MsgStudentPasswordChanged}, nil
}

func (s *accountService) RecoverPassword(ctx context.Context, req dto.RecoverPasswordRequest) (dto.OperationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "account.recover_password")
	defer span.End()

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return dto.OperationResponse{}, appErrors.Clone(appErrors.ErrValidation, MsgRecoveryUnavailable)
	}

	throttleKey := ""
	if s.cache != nil {
		throttleKey = fmt.Sprintf("recovery:throttle:%s", strings.ToLower(username))
		ok, err := s.cache.SetNX(ctx, throttleKey, 1, s.cfg.RecoveryThrottle).Result()
		if err != nil {
			span.RecordError(err)
			return dto.OperationResponse{}, err
		}
		if !ok {
			span.SetStatus(codes.Error, "throttled")
			return dto.OperationResponse{}, appErrors.Clone(appErrors.ErrTooMany, MsgRecoveryThrottled)
		}
	}

	if err := s.resetAndMail(ctx, username); err != nil {
		span.RecordError(err)
		s.releaseRecoveryThrottle(ctx, throttleKey)
		return dto.OperationResponse{}, err
	}

	return dto.OperationResponse{Success: true, Message: MsgRecoverySent}, nil
}

// resetAndMail stores a generated password and emails it. The previous hash is restored when
// the email cannot be delivered.
func (s *accountService) resetAndMail(ctx context.Context, username string) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err != nil || strings.TrimSpace(user.Email) == "" {
		return appErrors.Clone(appErrors.ErrValidation, MsgRecoveryUnavailable)
	}

	password, err := s.passwords.Generate()
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, user.ID, password); err != nil {
		return err
	}

	msg := MailMessage{
		To:      user.Email,
		Subject: recoveryEmailSubject,
		Text:    fmt.Sprintf(recoveryEmailTextFormat, password),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		log := s.logger.With().Uint("user_id", user.ID).Str("email", maskEmail(user.Email)).Logger()
		if restoreErr := s.users.UpdatePassword(ctx, user.ID, user.PasswordHash); restoreErr != nil {
			log.Error().Err(restoreErr).Msg("failed to restore password after recovery email failed")
		}
		log.Error().Err(err).Msg("recovery email failed")
		return appErrors.Internal(err, "failed to send recovery email")
	}

	s.logger.Info().Uint("user_id", user.ID).Str("email", maskEmail(user.Email)).Msg("password recovered")
	return nil
}

func (s *accountService) releaseRecoveryThrottle(ctx context.Context, key string) {
	if s.cache == nil || key == "" {
		return
	}
	if err := s.cache.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to release recovery throttle")
	}
}

func (s *accountService) setPassword(ctx context.Context, userID uint, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

func (s *accountService) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// domainOr replaces tagged domain failures with fallback and passes infrastructure errors through.
func domainOr(err error, fallback *appErrors.Error) error {
	var tagged *appErrors.Error
	if errors.As(err, &tagged) {
		return fallback
	}
	return err
}
