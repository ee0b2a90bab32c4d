// Package server exposes the OTP relay over HTTP.
package server

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nhle/otp-relay/internal/model"
)

const pkgName = "server"

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Client-facing validation messages.
const (
	msgInvalidRequest    = "Invalid request format"
	msgReferenceRequired = "Reference code is required"
	msgReferenceCharset  = "Reference code must contain only letters and numbers"
	msgInvalidTimeout    = "Timeout must be a positive number of milliseconds"
	msgInternal          = "Internal server error"
)

var referenceCodePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Retriever runs one OTP retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, req model.Request) model.Outcome
}

// AccountLister lists the accounts currently available for search.
type AccountLister interface {
	ListActive() []model.Account
}

// New builds the fiber app with middleware and routes registered.
func New(retriever Retriever, accounts AccountLister) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "otprelay",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		AllowMethods:  "GET, POST, PUT, DELETE, OPTIONS",
		ExposeHeaders: fiber.HeaderXRequestID,
	}))
	app.Use(requestLogger)

	h := &handlers{retriever: retriever, accounts: accounts}
	app.Get("/", h.health)
	app.Get("/accounts", h.listAccounts)
	app.Post("/otp", h.postOTP)
	app.Get("/otp/:referenceCode", h.getOTP)

	return app
}

type handlers struct {
	retriever Retriever
	accounts  AccountLister
}

func (h *handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "OK",
		"message":   "Email OTP Retrieval API (IMAP)",
		"version":   Version,
		"timestamp": time.Now().UTC(),
	})
}

type accountView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	IsActive bool   `json:"isActive"`
}

// listAccounts reports only the accounts a retrieval would search, so
// every entry is active.
func (h *handlers) listAccounts(c *fiber.Ctx) error {
	active := h.accounts.ListActive()

	views := make([]accountView, 0, len(active))
	for _, acc := range active {
		views = append(views, accountView{
			ID:       acc.ID,
			Email:    acc.Email,
			IsActive: true,
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"accounts": views,
		"count":    len(views),
	})
}

func (h *handlers) postOTP(c *fiber.Ctx) error {
	var req model.Request
	if err := c.App().Config().JSONDecoder(c.Body(), &req); err != nil {
		log.Debug().
			Str("pkg", pkgName).
			Err(err).
			Msg("rejecting malformed OTP request")
		return badRequest(c, msgInvalidRequest)
	}
	if req.TimeoutMillis < 0 {
		return badRequest(c, msgInvalidTimeout)
	}

	return h.retrieve(c, req)
}

// getOTP copies path and query values out of the request buffer, which
// fasthttp reuses once the handler returns while abandoned searches may
// still hold them.
func (h *handlers) getOTP(c *fiber.Ctx) error {
	req := model.Request{
		ReferenceCode: utils.CopyString(c.Params("referenceCode")),
		AccountIDs:    splitList(utils.CopyString(c.Query("accounts"))),
	}

	if raw := c.Query("timeout"); raw != "" {
		timeout, err := strconv.Atoi(raw)
		if err != nil || timeout <= 0 {
			return badRequest(c, msgInvalidTimeout)
		}
		req.TimeoutMillis = timeout
	}

	return h.retrieve(c, req)
}

// retrieve validates the reference code and maps the outcome to a
// status: 200 on success, 404 otherwise.
func (h *handlers) retrieve(c *fiber.Ctx, req model.Request) error {
	if msg, ok := validateReferenceCode(req.ReferenceCode); !ok {
		return badRequest(c, msg)
	}

	result := h.retriever.Retrieve(c.UserContext(), req)
	if !result.Success {
		return c.Status(fiber.StatusNotFound).JSON(result)
	}
	return c.JSON(result)
}

func validateReferenceCode(ref string) (string, bool) {
	switch {
	case ref == "":
		return msgReferenceRequired, false
	case utf8.RuneCountInString(ref) != model.ReferenceCodeLength:
		return model.MsgInvalidReferenceCode, false
	case !referenceCodePattern.MatchString(ref):
		return msgReferenceCharset, false
	}
	return "", true
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(model.Failure(msg))
}

// requestLogger logs one line per request with its id and latency.
func requestLogger(c *fiber.Ctx) error {
	started := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	} else if err != nil {
		status = fiber.StatusInternalServerError
	}

	log.Info().
		Str("pkg", pkgName).
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("latency", time.Since(started)).
		Msg("request handled")

	return err
}

// errorHandler turns errors escaping handlers into JSON failures.
// Errors raised by fiber itself keep their status; everything else is
// reported as a 500 without details.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(model.Failure(fe.Message))
	}

	log.Error().
		Str("pkg", pkgName).
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("path", c.Path()).
		Err(err).
		Msg("request failed")

	return c.Status(fiber.StatusInternalServerError).JSON(model.Failure(msgInternal))
}
