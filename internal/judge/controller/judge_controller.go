package controller

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"veloj/internal/judge/events"
	"veloj/internal/judge/model"
	"veloj/internal/judge/repository"
	appErr "veloj/pkg/errors"
	"veloj/pkg/utils/logger"
	"veloj/pkg/utils/response"
)

// JudgeController serves submission status over HTTP and pushes live
// judging events over websocket.
type JudgeController struct {
	status    *repository.StatusRepository
	subs      *repository.SubmissionRepository
	hub       *events.Hub
	jwtSecret []byte
	upgrader  websocket.Upgrader
}

// NewJudgeController creates the controller. An empty jwtSecret disables
// token checks on the websocket endpoint.
func NewJudgeController(status *repository.StatusRepository, subs *repository.SubmissionRepository, hub *events.Hub, jwtSecret string) *JudgeController {
	return &JudgeController{
		status:    status,
		subs:      subs,
		hub:       hub,
		jwtSecret: []byte(jwtSecret),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes wires the judge endpoints onto the router.
func (h *JudgeController) RegisterRoutes(r *gin.Engine) {
	group := r.Group("/api/v1/judge")
	group.GET("/submissions/:id", h.GetStatus)
	group.GET("/submissions/:id/events", h.StreamEvents)
}

// GetStatus returns the live judging state of a submission, falling back
// to the submission row once the live entry has expired.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "submission id is required")
		return
	}

	status, err := h.status.GetStatus(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if status != nil {
		response.Success(c, status)
		return
	}

	sub, err := h.subs.FetchSubmission(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if sub == nil {
		response.Error(c, appErr.Newf(appErr.SubmissionNotFound, "submission %s not found", submissionID))
		return
	}
	response.Success(c, repository.LiveStatus{
		SubmissionID: sub.ID,
		Status:       sub.Status,
	})
}

// StreamEvents upgrades to websocket and subscribes the connection to one
// submission's judging events until the client disconnects.
func (h *JudgeController) StreamEvents(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "submission id is required")
		return
	}
	if err := h.checkToken(c.Query("token")); err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf(c.Request.Context(), "websocket upgrade for %s: %v", submissionID, err)
		return
	}

	h.hub.Subscribe(submissionID, conn)
	defer func() {
		h.hub.Unsubscribe(submissionID, conn)
		_ = conn.Close()
	}()

	// Replay the current state so late subscribers see the terminal
	// verdict even when judging finished before they connected. Only this
	// connection gets the replay; the rest of the room already saw it.
	if status, err := h.status.GetStatus(c.Request.Context(), submissionID); err == nil && status != nil {
		if status.Status == model.SubmissionCompleted {
			h.hub.SendCompleted(conn, model.CompletedEvent{
				SubmissionID: submissionID,
				Verdict:      status.Verdict,
				Score:        status.Score,
				Passed:       status.Passed,
				Total:        status.Total,
			})
		}
	}

	// Drain reads to observe close frames; the hub owns all writes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *JudgeController) checkToken(token string) error {
	if len(h.jwtSecret) == 0 {
		return nil
	}
	if token == "" {
		return appErr.New(appErr.Unauthorized).WithMessage("token query parameter is required")
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return appErr.Wrapf(err, appErr.Unauthorized, "invalid token: %v", err)
	}
	if !parsed.Valid {
		return appErr.New(appErr.Unauthorized).WithMessage("invalid token")
	}
	return nil
}

// RequestLogger is the gin middleware logging each request the way the
// worker logs everything else.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infof(c.Request.Context(), "%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
