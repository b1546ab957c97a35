package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
)

// serve adapts a core operation to a gin handler: bind the JSON body into
// Req, validate it, call, and write the outcome envelope.
func serve[Req any, Res any](call func(context.Context, Req) (Res, error)) gin.HandlerFunc {
	return handle(bindJSON, call)
}

// serveQuery is serve for GET routes that take their input from the query
// string.
func serveQuery[Req any, Res any](call func(context.Context, Req) (Res, error)) gin.HandlerFunc {
	return handle(bindQuery, call)
}

type validator interface {
	Validate() error
}

func handle[Req any, Res any](bind func(*gin.Context, any) bool, call func(context.Context, Req) (Res, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Req
		if !bind(c, &req) {
			return
		}
		if !validate(c, req) {
			return
		}
		respond(c, func(ctx context.Context) (any, error) {
			return call(ctx, req)
		})
	}
}

func respond(c *gin.Context, call func(context.Context) (any, error)) {
	res, err := call(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, apperr.Ok(res))
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, apperr.Input(apperr.CodeInvalidRequest, "invalid JSON body: %v", err))
		return false
	}
	return true
}

// validate rejects a bound request before any network or signer work when
// the request knows how to check itself.
func validate(c *gin.Context, req any) bool {
	v, ok := req.(validator)
	if !ok {
		return true
	}
	if err := v.Validate(); err != nil {
		fail(c, err)
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		fail(c, apperr.Input(apperr.CodeInvalidRequest, "invalid query: %v", err))
		return false
	}
	return true
}

func fail(c *gin.Context, err error) {
	e := apperr.From(err)
	status := apperr.HTTPStatus(e)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.FullPath(), "requestId", requestID(c), "code", e.Code, "error", err)
	} else {
		log.Info("request rejected", "path", c.FullPath(), "requestId", requestID(c), "code", e.Code, "error", e.Message)
	}
	c.JSON(status, apperr.Fail(err))
}

func notFound(c *gin.Context, format string, args ...any) {
	c.JSON(http.StatusNotFound, apperr.Fail(apperr.Input(apperr.CodeWalletNotFound, format, args...)))
}
