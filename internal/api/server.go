// Package api serves the read-only book view and the instrument switch
// entry point over HTTP.
package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/infra"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
)

const switchTimeout = 2 * time.Second

// BookReader is the part of the book service the API needs.
type BookReader interface {
	View() domain.BookView
	Rows(rows int) domain.BookView
	RequestSwitch(ctx context.Context, inst domain.Instrument) error
	Toggle(ctx context.Context) error
}

type FiberServer struct {
	*fiber.App

	books   BookReader
	metrics *infra.Metrics
}

// New builds the server and registers its routes. reg may be nil to skip /metrics.
func New(books BookReader, metrics *infra.Metrics, reg *prometheus.Registry) *FiberServer {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:          "orderbook",
			AppName:               "orderbook",
			DisableStartupMessage: true,
		}),
		books:   books,
		metrics: metrics,
	}
	server.RegisterRoutes(reg)
	return server
}

func (s *FiberServer) RegisterRoutes(reg *prometheus.Registry) {
	s.App.Use(recover.New())

	s.App.Get("/healthz", s.healthHandler)

	api := s.App.Group("/api")
	api.Get("/book", s.bookHandler)
	api.Get("/status", s.statusHandler)
	api.Get("/instruments", s.instrumentsHandler)
	api.Post("/instrument/:symbol", s.switchHandler)
	api.Post("/toggle", s.toggleHandler)

	if reg != nil {
		s.App.Get("/metrics", adaptor.HTTPHandler(infra.MetricsHandler(reg)))
	}
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// bookHandler returns the last published view. ?rows=N limits the levels per side.
func (s *FiberServer) bookHandler(c *fiber.Ctx) error {
	rows := 0
	if q := c.Query("rows"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "rows must be a non-negative integer")
		}
		rows = n
	}
	return c.JSON(s.books.Rows(rows))
}

type statusResponse struct {
	Tracking  domain.Instrument     `json:"tracking"`
	Status    domain.FeedStatus     `json:"status"`
	Connected bool                  `json:"connected"`
	Crossed   bool                  `json:"crossed"`
	Seq       uint64                `json:"seq"`
	UpdatedAt time.Time             `json:"updated_at"`
	Metrics   infra.MetricsSnapshot `json:"metrics"`
}

func (s *FiberServer) statusHandler(c *fiber.Ctx) error {
	view := s.books.View()
	return c.JSON(statusResponse{
		Tracking:  view.Tracking,
		Status:    view.Status,
		Connected: view.Connected,
		Crossed:   view.Crossed,
		Seq:       view.Seq,
		UpdatedAt: view.UpdatedAt,
		Metrics:   s.metrics.Snapshot(),
	})
}

type instrumentInfo struct {
	Symbol    domain.Instrument `json:"symbol"`
	ProductID string            `json:"product_id"`
	Tick      string            `json:"tick"`
}

func (s *FiberServer) instrumentsHandler(c *fiber.Ctx) error {
	out := make([]instrumentInfo, 0, 2)
	for _, inst := range domain.Instruments() {
		out = append(out, instrumentInfo{
			Symbol:    inst,
			ProductID: inst.ProductID(),
			Tick:      inst.TickIncrement().String(),
		})
	}
	return c.JSON(out)
}

func (s *FiberServer) switchHandler(c *fiber.Ctx) error {
	inst, err := domain.ParseInstrument(c.Params("symbol"))
	if err != nil {
		return errorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), switchTimeout)
	defer cancel()
	if err := s.books.RequestSwitch(ctx, inst); err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"tracking": inst})
}

func (s *FiberServer) toggleHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), switchTimeout)
	defer cancel()
	if err := s.books.Toggle(ctx); err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"tracking": s.books.View().Tracking})
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidSymbol):
		status = fiber.StatusBadRequest
	case errors.Is(err, domain.ErrSwitchPending):
		status = fiber.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), domain.IsRetriable(err):
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
