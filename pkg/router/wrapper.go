package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/mitchellh/mapstructure"
	"github.com/studymate/backend/pkg/errorx"
	"github.com/studymate/backend/pkg/xcontext"
)

func wrapHandler[Request, Response any](
	router *Router,
	method string,
	handler HandlerFunc[Request, Response],
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := router.rootCtx
		ctx = xcontext.WithHTTPRequest(ctx, r)
		ctx = xcontext.WithHTTPWriter(ctx, w)
		ctx = xcontext.WithSessionStore(ctx, router.sessionStore)

		defer func() {
			for _, closer := range router.closers {
				closer(ctx)
			}
		}()

		var err error
		ctx, err = serve(ctx, router, method, handler)
		if err != nil {
			ctx = xcontext.WithError(ctx, err)
		}
	}
}

func serve[Request, Response any](
	ctx context.Context,
	router *Router,
	method string,
	handler HandlerFunc[Request, Response],
) (context.Context, error) {
	r := xcontext.HTTPRequest(ctx)
	if r.Method != method {
		return ctx, errorx.New(errorx.BadRequest, "Method %s is not allowed", r.Method)
	}

	ctx, err := runMiddlewares(ctx, router.befores)
	if err != nil {
		return ctx, err
	}

	var req Request
	if err := parseRequest(r, method, &req); err != nil {
		xcontext.Logger(ctx).Debugf("Cannot parse request: %v", err)
		return ctx, errorx.New(errorx.BadRequest, "Invalid request")
	}

	resp, err := handler(ctx, &req)
	if err != nil {
		return ctx, err
	}

	ctx = xcontext.WithResponse(ctx, resp)
	return runMiddlewares(ctx, router.afters)
}

func runMiddlewares(ctx context.Context, middlewares []MiddlewareFunc) (context.Context, error) {
	for _, middleware := range middlewares {
		newCtx, err := middleware(ctx)
		if err != nil {
			return ctx, err
		}

		if newCtx != nil {
			ctx = newCtx
		}
	}

	return ctx, nil
}

func parseRequest(r *http.Request, method string, req any) error {
	switch method {
	case http.MethodGet:
		return decodeQuery(r.URL.Query(), req)
	case http.MethodPost:
		if r.Body == nil {
			return nil
		}

		err := json.NewDecoder(r.Body).Decode(req)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	default:
		return errors.New("unsupported method")
	}
}

// decodeQuery maps query parameters onto the json tags of req. Repeated
// parameters become slices.
func decodeQuery(query url.Values, req any) error {
	input := make(map[string]any, len(query))
	for key, values := range query {
		if len(values) == 1 {
			input[key] = values[0]
		} else {
			input[key] = values
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           req,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}
