package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tenxcards/tenxcards-go/internal/client"
	"github.com/tenxcards/tenxcards-go/internal/model"
)

const maxProxyBody = 1 << 20

// ProxyHandler forwards /api/* to the 10xCards API with the session's
// tokens, refreshing them when needed.
type ProxyHandler struct {
	session Session
	api     client.Doer
}

func NewProxyHandler(session Session, api client.Doer) *ProxyHandler {
	return &ProxyHandler{session: session, api: api}
}

func (h *ProxyHandler) Forward(c *gin.Context) {
	if !h.session.IsAuthenticated() {
		c.JSON(http.StatusUnauthorized, model.GatewayError{Error: "not logged in"})
		return
	}

	path := "/" + strings.TrimLeft(c.Param("path"), "/")
	if strings.HasPrefix(path, "/auth/") {
		c.JSON(http.StatusForbidden, model.GatewayError{Error: "use /session for authentication"})
		return
	}

	req := client.Request{
		Method: c.Request.Method,
		Path:   path,
		Query:  c.Request.URL.Query(),
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProxyBody))
	if err != nil {
		writeBadRequest(c, "Unreadable request body")
		return
	}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if !json.Valid(raw) {
			writeBadRequest(c, "Malformed JSON request")
			return
		}
		req.Body = json.RawMessage(raw)
	}

	var out json.RawMessage
	if err := h.api.Do(c.Request.Context(), req, &out); err != nil {
		writeError(c, err)
		return
	}

	if out == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "application/json", out)
}
