package http

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sujalbistaa/whispr/internal/apperr"
	"github.com/sujalbistaa/whispr/internal/auth"
	"github.com/sujalbistaa/whispr/internal/board"
	"github.com/sujalbistaa/whispr/internal/models"
)

const (
	anonCookieMaxAge = 365 * 24 * 60 * 60
	rateLimitRPS     = 1.0 / 3.0 // one sensitive request every 3 seconds
	rateLimitBurst   = 3
	writeRateRPS     = 2.0
	writeRateBurst   = 10
)

// --- Structs for request binding ---
type ActivateInput struct {
	Key string `json:"key" binding:"required"`
}

type ConfessionInput struct {
	Text string `json:"text" binding:"required"`
}

type CommentInput struct {
	Text     string  `json:"text" binding:"required"`
	ParentID *string `json:"parentId"`
}

type LoginInput struct {
	SecretKey string `json:"secretKey" binding:"required"`
}

type BanInput struct {
	AnonHash string `json:"anonHash" binding:"required"`
}

// Env carries the handlers' dependencies.
type Env struct {
	Board          *board.Service
	AdminSecretKey string
	SessionSecret  []byte
	SecureCookies  bool
}

func (e *Env) viewer(c *gin.Context) string {
	hash, _ := c.Cookie(anonCookie)
	return strings.TrimSpace(hash)
}

func (e *Env) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", e.SecureCookies, true)
}

func pageFrom(c *gin.Context) board.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return board.Page{Limit: limit, Offset: offset}
}

func bindError(c *gin.Context, what string) {
	fail(c, http.StatusBadRequest, "Invalid input: "+what+" is required.")
}

// --- User handlers ---

func (e *Env) Activate(c *gin.Context) {
	var input ActivateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, "key")
		return
	}
	act, err := e.Board.Gate().Activate(c.Request.Context(), input.Key, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, err)
		return
	}
	e.setCookie(c, anonCookie, act.AnonHash, anonCookieMaxAge)
	ok(c, http.StatusCreated, "Account activated. Welcome!", nil)
}

func (e *Env) GetConfessions(c *gin.Context) {
	views, err := e.Board.ListConfessions(c.Request.Context(), e.viewer(c), pageFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", views)
}

func (e *Env) GetConfession(c *gin.Context) {
	view, err := e.Board.GetConfession(c.Request.Context(), e.viewer(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", view)
}

func (e *Env) CreateConfession(c *gin.Context) {
	var input ConfessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, "text")
		return
	}
	confession, err := e.Board.SubmitConfession(c.Request.Context(), e.viewer(c), input.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "Your confession has been submitted for review. Thank you.", gin.H{
		"id":     confession.ID,
		"status": confession.Status,
	})
}

func (e *Env) interact(t models.InteractionType) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := e.Board.SetInteraction(c.Request.Context(), c.Param("id"), e.viewer(c), t)
		if err != nil {
			respondError(c, err)
			return
		}
		ok(c, http.StatusOK, "", res)
	}
}

func (e *Env) CreateComment(c *gin.Context) {
	var input CommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, "text")
		return
	}
	comment, err := e.Board.AddComment(c.Request.Context(), c.Param("id"), e.viewer(c), input.Text, input.ParentID)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "Comment added.", comment)
}

func (e *Env) report(t models.ContentType) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := e.Board.Report(c.Request.Context(), c.Param("id"), t, e.viewer(c)); err != nil {
			respondError(c, err)
			return
		}
		ok(c, http.StatusCreated, "Content reported for review.", nil)
	}
}

// --- Admin handlers ---

func (e *Env) AdminLogin(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, "secretKey")
		return
	}
	if subtle.ConstantTimeCompare([]byte(input.SecretKey), []byte(e.AdminSecretKey)) != 1 {
		log.Warn().Str("client_ip", c.ClientIP()).Msg("admin login failed")
		respondError(c, apperr.New(apperr.KindUnauthorized, "Invalid secret key."))
		return
	}
	token, err := auth.IssueToken(e.SessionSecret, auth.SessionTTL, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	e.setCookie(c, sessionCookie, token, int(auth.SessionTTL.Seconds()))
	ok(c, http.StatusOK, "Logged in.", nil)
}

func (e *Env) AdminLogout(c *gin.Context) {
	e.setCookie(c, sessionCookie, "", -1)
	ok(c, http.StatusOK, "Logged out.", nil)
}

func (e *Env) AdminConfessions(c *gin.Context) {
	views, err := e.Board.AdminListConfessions(c.Request.Context(), models.Status(c.Query("status")), pageFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", views)
}

func (e *Env) AdminReports(c *gin.Context) {
	reports, err := e.Board.ListReports(c.Request.Context(), models.ReportStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", reports)
}

// command adapts a request into an admin command and runs it.
func (e *Env) command(build func(c *gin.Context) (board.Command, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		cmd, valid := build(c)
		if !valid {
			return
		}
		msg, err := e.Board.Dispatch(c.Request.Context(), cmd)
		if err != nil {
			respondError(c, err)
			return
		}
		ok(c, http.StatusOK, msg, nil)
	}
}

func approveCmd(c *gin.Context) (board.Command, bool) {
	return board.Approve{ConfessionID: c.Param("id")}, true
}

func rejectCmd(c *gin.Context) (board.Command, bool) {
	return board.Reject{ConfessionID: c.Param("id")}, true
}

func deleteConfessionCmd(c *gin.Context) (board.Command, bool) {
	return board.DeleteConfession{ConfessionID: c.Param("id")}, true
}

func deleteCommentCmd(c *gin.Context) (board.Command, bool) {
	return board.DeleteComment{CommentID: c.Param("id")}, true
}

func banCmd(c *gin.Context) (board.Command, bool) {
	var input BanInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, "anonHash")
		return nil, false
	}
	return board.Ban{AnonHash: input.AnonHash}, true
}

func dismissCmd(c *gin.Context) (board.Command, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid report ID.")
		return nil, false
	}
	return board.Dismiss{ReportID: uint(id)}, true
}

// --- Service handlers ---

func (e *Env) Healthz(c *gin.Context) {
	if err := e.Board.Ping(c.Request.Context()); err != nil {
		log.Error().Err(err).Msg("health check failed")
		fail(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	ok(c, http.StatusOK, "ok", nil)
}
