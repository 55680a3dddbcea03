package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/yourselfhosted/slash-sub001/internal/controller"
)

func registerSettingsHandlers(api huma.API, svc Service) {
	type instanceOutput struct {
		Body controller.InstanceSettings
	}

	huma.Register(api, huma.Operation{OperationID: "get-instance", Method: http.MethodGet, Path: "/api/v1/settings/instance", Summary: "Get the configured instance URL", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*instanceOutput, error) {
			settings, err := svc.GetInstance(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &instanceOutput{Body: settings}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-instance", Method: http.MethodPut, Path: "/api/v1/settings/instance", Summary: "Set the instance URL shortcuts redirect to", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct {
			Body struct {
				InstanceURL string `json:"instance_url" required:"true" doc:"Absolute http(s) URL of the Slash instance (e.g. https://slash.example.com)"`
			}
		}) (*instanceOutput, error) {
			settings, err := svc.SetInstance(ctx, input.Body.InstanceURL)
			if err != nil {
				return nil, mapErr(err)
			}
			return &instanceOutput{Body: settings}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-instance", Method: http.MethodDelete, Path: "/api/v1/settings/instance", Summary: "Clear the instance URL; shortcuts are ignored until set again", Tags: []string{"Settings"}, DefaultStatus: http.StatusNoContent},
		func(ctx context.Context, input *struct{}) (*struct{}, error) {
			if err := svc.ClearInstance(ctx); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})
}

func registerResolveHandlers(api huma.API, svc Service) {
	type resolveOutput struct {
		Body controller.ResolvePreview
	}

	huma.Register(api, huma.Operation{OperationID: "resolve", Method: http.MethodPost, Path: "/api/v1/resolve", Summary: "Preview how a URL would be resolved without navigating", Tags: []string{"Resolve"}},
		func(ctx context.Context, input *struct {
			Body struct {
				URL string `json:"url" required:"true" doc:"Candidate navigation URL (e.g. http://s/docs or https://www.google.com/search?q=s/docs)"`
			}
		}) (*resolveOutput, error) {
			preview, err := svc.Resolve(ctx, input.Body.URL)
			if err != nil {
				return nil, mapErr(err)
			}
			return &resolveOutput{Body: preview}, nil
		})
}
