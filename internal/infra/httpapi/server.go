package httpapi

import (
	"context"
	"net/http"
	"time"

	"stockpile_manager/internal/app"
	"stockpile_manager/internal/domain/family"
	"stockpile_manager/internal/domain/labeldate"
	"stockpile_manager/internal/domain/stock"
	"stockpile_manager/internal/infra/scheduler"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// Inventory is the item and bag use case set behind /api/items and /api/bags.
type Inventory interface {
	ListItems(ctx context.Context, userID string) ([]*stock.Item, error)
	CreateItem(ctx context.Context, userID string, in stock.ItemInput) (*stock.Item, error)
	UpdateItem(ctx context.Context, userID, itemID string, in stock.ItemInput) (*stock.Item, error)
	DeleteItem(ctx context.Context, userID, itemID string) error
	ListBags(ctx context.Context, userID string) ([]*stock.Bag, error)
	CreateBag(ctx context.Context, userID, name string) (*stock.Bag, error)
	DeleteBag(ctx context.Context, userID, bagID string) error
	ImportItems(ctx context.Context, userID string, rows []app.ImportRow) (*app.ImportSummary, error)
}

// Families is the account and family use case set behind /api/user and /api/family.
type Families interface {
	Profile(ctx context.Context, id app.Identity) (*app.Profile, error)
	CreateFamily(ctx context.Context, id app.Identity, name string) (*family.Family, error)
	JoinFamily(ctx context.Context, id app.Identity, code string) (*family.Family, error)
	GetFamily(ctx context.Context, userID string) (*app.FamilyView, error)
	UpdateNotificationSettings(ctx context.Context, userID string, in app.NotificationSettings) error
}

// LabelScanner reads dates from photographed labels.
type LabelScanner interface {
	Scan(ctx context.Context, userID string, img labeldate.Image) (*app.ScanResult, error)
}

// Deps are the collaborators of the HTTP API. Labels and LineWebhook are
// optional; their routes answer 503 and 404 respectively when unset.
type Deps struct {
	Inventory   Inventory
	Families    Families
	Labels      LabelScanner
	Notifier    scheduler.BatchRunner
	LineWebhook http.Handler
}

// Options carry the security and CORS settings.
type Options struct {
	JWTSecret      string
	CronSecret     string
	CronAuthExempt bool
	AllowedOrigins []string
}

type Server struct {
	deps Deps
	opts Options
	log  *logrus.Entry
}

func NewServer(deps Deps, opts Options, log *logrus.Logger) *Server {
	return &Server{deps: deps, opts: opts, log: log.WithField("component", "http")}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Machine callers with their own authentication.
		r.Get("/cron/notify", s.handleCronNotify)
		r.Post("/cron/notify", s.handleCronNotify)
		if s.deps.LineWebhook != nil {
			r.Handle("/line/webhook", s.deps.LineWebhook)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/user", s.handleGetUser)

			r.Get("/family", s.handleGetFamily)
			r.Post("/family", s.handleFamilyAction)
			r.Put("/family/notifications", s.handleUpdateNotifications)

			r.Get("/items", s.handleListItems)
			r.Post("/items", s.handleCreateItem)
			r.Put("/items", s.handleUpdateItem)
			r.Delete("/items", s.handleDeleteItem)
			r.Post("/items/import", s.handleImportItems)

			r.Get("/bags", s.handleListBags)
			r.Post("/bags", s.handleCreateBag)
			r.Delete("/bags", s.handleDeleteBag)

			r.Post("/ocr", s.handleScanLabel)
		})
	})

	return r
}

// NewHTTPServer wraps the router with the timeouts used in production.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      6 * time.Minute, // Cron trigger waits for the whole batch
		IdleTimeout:       2 * time.Minute,
	}
}
