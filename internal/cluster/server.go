package cluster

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/pigemm/internal/logger"
	"github.com/samcharles93/pigemm/internal/version"
)

// JoinRequest is the body of POST /v1/groups/join.
type JoinRequest struct {
	Rank int `json:"rank"`
}

// JoinResponse tells a joining rank which session to address and how large
// the group is.
type JoinResponse struct {
	Session string `json:"session"`
	Size    int    `json:"size"`
}

// Health is the body of GET /v1/health.
type Health struct {
	Status  string `json:"status"`
	Session string `json:"session"`
	Size    int    `json:"size"`
	Joined  int    `json:"joined"`
	Version string `json:"version"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Server exposes a Hub to remote ranks.
type Server struct {
	hub *Hub
	log logger.Logger
}

func NewServer(hub *Hub, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{hub: hub, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/health", s.handleHealth)
	e.POST("/v1/groups/join", s.handleJoin)
	e.POST("/v1/groups/:session/exchange", s.handleExchange)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return writeJSON(c, http.StatusOK, Health{
		Status:  "ok",
		Session: s.hub.Session(),
		Size:    s.hub.Size(),
		Joined:  s.hub.Joined(),
		Version: version.Resolve().Version,
	})
}

func (s *Server) handleJoin(c *echo.Context) error {
	req, err := decodeJSON[JoinRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid join request: "+err.Error(), "invalid_request")
	}
	if err := s.hub.Claim(req.Rank); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrRankTaken) {
			status = http.StatusConflict
		}
		return writeError(c, status, err.Error(), errorCode(err))
	}
	s.log.Info("rank joined", "rank", req.Rank, "remote", c.Request().RemoteAddr)
	return writeJSON(c, http.StatusOK, JoinResponse{Session: s.hub.Session(), Size: s.hub.Size()})
}

func (s *Server) handleExchange(c *echo.Context) error {
	if c.Param("session") != s.hub.Session() {
		return s.writeFrameError(c, http.StatusGone, ErrSessionMismatch)
	}
	h, data, err := readFrame(c.Request().Body)
	if err != nil {
		return s.writeFrameError(c, http.StatusBadRequest, err)
	}
	if h.Contribution == nil {
		return s.writeFrameError(c, http.StatusBadRequest, errBadFrame)
	}
	contrib := *h.Contribution
	contrib.Data = data

	out, err := s.hub.Exchange(c.Request().Context(), contrib)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, ErrRankOutOfRange) {
			status = http.StatusBadRequest
		}
		return s.writeFrameError(c, status, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, FrameContentType)
	res.WriteHeader(http.StatusOK)
	return writeFrame(res, frameHeader{Session: s.hub.Session()}, out)
}

func (s *Server) writeFrameError(c *echo.Context, status int, err error) error {
	s.log.Debug("exchange rejected", "status", status, "error", err)
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, FrameContentType)
	res.WriteHeader(status)
	return writeFrame(res, frameHeader{
		Session: s.hub.Session(),
		Error:   err.Error(),
		Code:    errorCode(err),
	}, nil)
}

func writeError(c *echo.Context, status int, msg, code string) error {
	var body apiError
	body.Error.Message = msg
	body.Error.Code = code
	return writeJSON(c, status, body)
}

func writeJSON(c *echo.Context, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Blob(status, echo.MIMEApplicationJSON, b)
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
