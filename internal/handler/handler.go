// Package handler exposes the ticketing API over HTTP.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/eventpass/internal/domain/auth"
	"github.com/xenking/eventpass/internal/domain/catalog"
	"github.com/xenking/eventpass/internal/domain/checkout"
	"github.com/xenking/eventpass/internal/domain/promo"
	"github.com/xenking/eventpass/internal/domain/ticket"
)

// Checkout is implemented by *checkout.Service.
type Checkout interface {
	Quote(ctx context.Context, scope promo.Scope, lines []checkout.LineRequest, code string) (promo.Quote, promo.Cart, error)
	Start(ctx context.Context, req checkout.StartRequest) (*checkout.StartResult, error)
	Complete(ctx context.Context, token string) (*checkout.Result, error)
	Abort(ctx context.Context, token string) error
	PlaceBoxOffice(ctx context.Context, req checkout.BoxOfficeRequest) (*checkout.Result, error)
}

// CodeAdmin is implemented by *promo.Admin.
type CodeAdmin interface {
	CreateDiscountCode(ctx context.Context, scope promo.Scope, in promo.NewDiscountCode) (*promo.DiscountCode, error)
	ListDiscountCodes(ctx context.Context, scope promo.Scope) ([]promo.DiscountCode, error)
	SetActive(ctx context.Context, scope promo.Scope, id int64, active bool) error
}

// Tickets is implemented by *ticket.Service.
type Tickets interface {
	Validate(ctx context.Context, scan ticket.Scan) (*ticket.Outcome, error)
	Reissue(ctx context.Context, accountID int64, code, actor string) (*ticket.Ticket, error)
	Cancel(ctx context.Context, accountID int64, code, actor, reason string) (*ticket.Ticket, error)
}

// Authenticator is implemented by *auth.Authenticator.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// PublicBaseURL is where the gateway sends buyers back to, e.g.
	// https://tickets.example.com. The return path is appended.
	PublicBaseURL string
}

// Handler serves public checkout and admin endpoints.
type Handler struct {
	catalog  catalog.Repository
	checkout Checkout
	codes    CodeAdmin
	tickets  Tickets
	auth     Authenticator
	validate *validator.Validate
	cfg      Config
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	catalog catalog.Repository,
	checkout Checkout,
	codes CodeAdmin,
	tickets Tickets,
	authenticator Authenticator,
) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &Handler{
		catalog:  catalog,
		checkout: checkout,
		codes:    codes,
		tickets:  tickets,
		auth:     authenticator,
		validate: v,
		cfg:      cfg,
	}
}

const returnPath = "/api/checkout/return"

// Scopes an API key needs for the admin routes.
const (
	ScopeCodes   = "codes"
	ScopeOrders  = "orders"
	ScopeTickets = "tickets"
)

// Routes registers all API routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/events/{eventID}/ticket-types", h.listTicketTypes)
		r.Post("/events/{eventID}/promo/preview", h.previewCode)
		r.Post("/events/{eventID}/checkout", h.startCheckout)
		r.Get("/checkout/return", h.completeCheckout)
		r.Post("/checkout/return", h.completeCheckout)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAPIKey)

			r.With(requireScope(ScopeCodes)).Route("/events/{eventID}/discount-codes", func(r chi.Router) {
				r.Get("/", h.listDiscountCodes)
				r.Post("/", h.createDiscountCode)
				r.Patch("/{codeID}", h.setDiscountCodeActive)
			})
			r.With(requireScope(ScopeOrders)).Post("/events/{eventID}/orders", h.placeBoxOffice)
			r.With(requireScope(ScopeTickets)).Route("/tickets/{code}", func(r chi.Router) {
				r.Post("/validate", h.validateTicket)
				r.Post("/reissue", h.reissueTicket)
				r.Post("/cancel", h.cancelTicket)
			})
		})
	})
}

// NotFound answers unknown routes with the API error shape.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

// MethodNotAllowed answers known routes hit with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
