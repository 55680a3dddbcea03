package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yourselfhosted/slash-sub001/internal/cdpnav"
	"github.com/yourselfhosted/slash-sub001/internal/controller"
	"github.com/yourselfhosted/slash-sub001/internal/relay"
)

type Service interface {
	Health(ctx context.Context) controller.Health
	GetInstance(ctx context.Context) (controller.InstanceSettings, error)
	SetInstance(ctx context.Context, rawURL string) (controller.InstanceSettings, error)
	ClearInstance(ctx context.Context) error
	Resolve(ctx context.Context, rawURL string) (controller.ResolvePreview, error)
	ListTabs(ctx context.Context) ([]cdpnav.TabInfo, error)
	Stats(ctx context.Context) controller.Stats
}

// NewServer builds the control API. broker may be nil, in which case the
// event stream is not mounted.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Slash Resolver API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", staticPage(docsHTML))
	router.Get("/docs/events", staticPage(eventsDocsHTML))
	if broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(broker, "outcomes"))
	}

	registerStatusHandlers(api, svc)
	registerSettingsHandlers(api, svc)
	registerResolveHandlers(api, svc)

	return router
}

func staticPage(html string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(html)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *controller.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case controller.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case controller.CodeNotConfigured:
			return huma.Error404NotFound(coded.Message)
		case controller.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		case controller.CodeStoreUnavailable:
			return huma.Error503ServiceUnavailable(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
