// Package api exposes the HTTP surface of the game engine: REST commands for
// hosts and players, a websocket stream of live session state, and the redis
// pubsub fan-out of leaderboard updates.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/quizdash/quizdash/internal/coordinator"
	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/errors"
	"github.com/quizdash/quizdash/internal/event"
	"github.com/quizdash/quizdash/internal/leaderboard"
	"github.com/quizdash/quizdash/internal/session"
	"github.com/quizdash/quizdash/internal/store"
)

// Callers identify themselves with these headers. There is no account system:
// the host ID is minted at session creation and the player ID at join, and
// holding one is holding the capability.
const (
	headerHostID   = "X-Host-ID"
	headerPlayerID = "X-Player-ID"
)

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Session      *session.Service
	Coordinators *coordinator.Manager
	Leaderboard  *leaderboard.Service
	Store        store.Store
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	qss    *session.Service
	coords *coordinator.Manager
	ls     *leaderboard.Service
	store  store.Store

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		qss:    c.Session,
		coords: c.Coordinators,
		ls:     c.Leaderboard,
		store:  c.Store,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	v1 := c.Router.Group("/v1")
	v1.POST("/sessions", a.createSession)
	v1.POST("/sessions/:pin/players", a.join)
	v1.POST("/sessions/:pin/start", a.startQuestion)
	v1.POST("/sessions/:pin/end-question", a.endQuestion)
	v1.POST("/sessions/:pin/next", a.nextQuestion)
	v1.POST("/sessions/:pin/end", a.endGame)
	v1.POST("/sessions/:pin/answers", a.submitAnswer)
	v1.GET("/sessions/:pin", a.getState)
	v1.GET("/sessions/:pin/leaderboard", a.getLeaderboard)
	v1.GET("/sessions/:pin/leaderboard/reveal", a.getReveal)
	v1.GET("/sessions/:pin/stream", a.stream)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

type createSessionRequest struct {
	HostID string `json:"host_id" binding:"required"`
	QuizID string `json:"quiz_id" binding:"required"`
}

func (a *API) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	ss, err := a.qss.CreateSession(c.Request.Context(), session.CreateSessionRequest{
		HostID: req.HostID,
		QuizID: req.QuizID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": hostSessionView(*ss)})
}

type joinRequest struct {
	Nickname string `json:"nickname" binding:"required"`
}

func (a *API) join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	p, err := a.qss.Join(c.Request.Context(), session.JoinRequest{
		PIN:      c.Param("pin"),
		Nickname: req.Nickname,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"player": playerView(*p)})
}

type startQuestionRequest struct {
	QuestionIndex int `json:"question_index"`
	// Duration in seconds; zero means the question's own time limit.
	Duration int `json:"duration"`
}

func (a *API) startQuestion(c *gin.Context) {
	var req startQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	co, err := a.coords.Get(c.Request.Context(), c.Param("pin"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	err = co.StartQuestion(c.Request.Context(), c.GetHeader(headerHostID), req.QuestionIndex, req.Duration)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) endQuestion(c *gin.Context) {
	a.hostCommand(c, func(ctx context.Context, co *coordinator.Coordinator, hostID string) error {
		return co.EndQuestion(ctx, hostID)
	})
}

func (a *API) nextQuestion(c *gin.Context) {
	a.hostCommand(c, func(ctx context.Context, co *coordinator.Coordinator, hostID string) error {
		return co.NextQuestion(ctx, hostID)
	})
}

func (a *API) endGame(c *gin.Context) {
	a.hostCommand(c, func(ctx context.Context, co *coordinator.Coordinator, hostID string) error {
		return co.EndGame(ctx, hostID)
	})
}

func (a *API) hostCommand(c *gin.Context, cmd func(ctx context.Context, co *coordinator.Coordinator, hostID string) error) {
	co, err := a.coords.Get(c.Request.Context(), c.Param("pin"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := cmd(c.Request.Context(), co, c.GetHeader(headerHostID)); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type submitAnswerRequest struct {
	AnswerIndex *int `json:"answer_index" binding:"required"`
}

func (a *API) submitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	playerID := c.GetHeader(headerPlayerID)
	if playerID == "" {
		abortWithError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("missing %s header", headerPlayerID)))
		return
	}

	co, err := a.coords.Get(c.Request.Context(), c.Param("pin"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := co.SubmitAnswer(c.Request.Context(), coordinator.SubmitAnswerRequest{
		PlayerID:    playerID,
		AnswerIndex: *req.AnswerIndex,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"question_index": resp.QuestionIndex,
		"is_correct":     resp.IsCorrect,
		"points":         resp.Points,
		"total_score":    resp.TotalScore,
		"streak":         resp.Streak,
	})
}

// getState returns the session snapshot. The host sees the full question
// including correctness; players get the sanitized view.
func (a *API) getState(c *gin.Context) {
	ctx := c.Request.Context()
	pin := c.Param("pin")

	sess, err := a.store.GetSession(ctx, pin)
	if err != nil {
		abortWithError(c, err)
		return
	}

	co, err := a.coords.Get(ctx, pin)
	if err != nil {
		abortWithError(c, err)
		return
	}

	asHost := c.GetHeader(headerHostID) == sess.HostID
	c.JSON(http.StatusOK, gin.H{"session": stateView(sess, co.Quiz(), asHost)})
}

func (a *API) getLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		PIN: c.Param("pin"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": leaderboardView(*l)})
}

// getReveal serves the post-question scoreboard with rank movements. Only
// meaningful once the current question has closed.
func (a *API) getReveal(c *gin.Context) {
	ctx := c.Request.Context()
	pin := c.Param("pin")

	sess, err := a.store.GetSession(ctx, pin)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if sess.Phase != domain.PhaseResults && sess.Phase != domain.PhaseFinal {
		abortWithError(c, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no results to reveal: pin=%s phase=%s", pin, sess.Phase)))
		return
	}

	players, err := a.store.ListPlayers(ctx, pin)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"question_index": sess.CurrentQuestionIndex,
		"entries":        leaderboard.ComputeReveal(players, sess.CurrentQuestionIndex),
	})
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{
		"code":    e.Code,
		"message": e.Message,
	})
}
