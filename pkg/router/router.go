package router

import (
	"context"
	"net/http"

	"github.com/rs/cors"
	"github.com/studymate/backend/pkg/session"
	"github.com/studymate/backend/pkg/xcontext"
)

type HandlerFunc[Request, Response any] func(context.Context, *Request) (*Response, error)

// MiddlewareFunc may return a nil context to keep the current one.
type MiddlewareFunc func(context.Context) (context.Context, error)

// CloserFunc always runs after the request was handled, even on error.
type CloserFunc func(context.Context)

type Router struct {
	rootCtx      context.Context
	mux          *http.ServeMux
	sessionStore *session.Store

	befores []MiddlewareFunc
	afters  []MiddlewareFunc
	closers []CloserFunc
}

// New returns a router whose handlers inherit every value of ctx (configs,
// logger, database).
func New(ctx context.Context) *Router {
	cfg := xcontext.Configs(ctx)
	return &Router{
		rootCtx:      ctx,
		mux:          http.NewServeMux(),
		sessionStore: session.NewCookieStore(cfg.Session.Name, []byte(cfg.Session.Secret)),
		closers:      []CloserFunc{handleResponse()},
	}
}

// Branch returns a router sharing the same mux. Middlewares added to the
// branch do not affect the parent.
func (r *Router) Branch() *Router {
	return &Router{
		rootCtx:      r.rootCtx,
		mux:          r.mux,
		sessionStore: r.sessionStore,
		befores:      append([]MiddlewareFunc{}, r.befores...),
		afters:       append([]MiddlewareFunc{}, r.afters...),
		closers:      append([]CloserFunc{}, r.closers...),
	}
}

func (r *Router) Before(middlewares ...MiddlewareFunc) {
	r.befores = append(r.befores, middlewares...)
}

func (r *Router) After(middlewares ...MiddlewareFunc) {
	r.afters = append(r.afters, middlewares...)
}

func (r *Router) AddCloser(closers ...CloserFunc) {
	r.closers = append(r.closers, closers...)
}

// Handle mounts a raw http.Handler, bypassing middlewares.
func (r *Router) Handle(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, handler)
}

func (r *Router) Handler(allowedOrigins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r.mux)
}

func GET[Request, Response any](r *Router, pattern string, handler HandlerFunc[Request, Response]) {
	r.mux.HandleFunc(pattern, wrapHandler(r, http.MethodGet, handler))
}

func POST[Request, Response any](r *Router, pattern string, handler HandlerFunc[Request, Response]) {
	r.mux.HandleFunc(pattern, wrapHandler(r, http.MethodPost, handler))
}
