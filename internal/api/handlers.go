package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"motivechat/internal/apperr"
	"motivechat/internal/auth"
	"motivechat/internal/models"
	"motivechat/internal/redis"
	"motivechat/internal/service/ai"
)

// Accounts is the credential and history store used by the handlers.
type Accounts interface {
	CreateUser(ctx context.Context, username, password string) (*models.User, error)
	VerifyCredentials(ctx context.Context, username, password string) (*models.User, error)
	ListHistory(ctx context.Context, userID int64, limit int) ([]models.ChatMessage, error)
}

// Conversations runs one chat exchange for an authenticated user.
type Conversations interface {
	Converse(ctx context.Context, userID int64, message string) (*models.ChatMessage, error)
}

// Quotes serves the daily quote.
type Quotes interface {
	Today(ctx context.Context, userID int64) (*models.DailyQuote, error)
}

// Deps groups everything the handlers need. Searcher, Agents, DB and Cache are optional.
type Deps struct {
	Accounts      Accounts
	Conversations Conversations
	Quotes        Quotes
	Auth          *auth.Service
	Searcher      ai.Searcher
	Agents        *ai.Registry
	DB            *sql.DB
	Cache         *redis.Client
}

// Handler wires HTTP routes to the services.
type Handler struct {
	accounts      Accounts
	conversations Conversations
	quotes        Quotes
	auth          *auth.Service
	searcher      ai.Searcher
	agents        *ai.Registry
	db            *sql.DB
	cache         *redis.Client
}

// NewHandler constructs a Handler instance.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		accounts:      deps.Accounts,
		conversations: deps.Conversations,
		quotes:        deps.Quotes,
		auth:          deps.Auth,
		searcher:      deps.Searcher,
		agents:        deps.Agents,
		db:            deps.DB,
		cache:         deps.Cache,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", h.health)
	api.POST("/auth/signup", h.signup)
	api.POST("/auth/login", h.login)

	authed := api.Group("")
	authed.Use(h.auth.Middleware())
	authed.POST("/chat/motivational", h.motivationalChat)
	authed.GET("/chat/history", h.chatHistory)
	authed.GET("/daily-quote", h.dailyQuote)
	if h.searcher != nil {
		authed.POST("/search", h.search)
	}
	if h.agents != nil {
		api.GET("/agents/capabilities", h.agentCapabilities)
		authed.POST("/chat", h.agentChat)
	}

	router.NoRoute(func(c *gin.Context) {
		respondError(c, apperr.ErrNotFound)
	})
}

const genericFailure = "something went wrong, please retry"

// respondError writes the failure envelope. 5xx details are logged, never returned.
func respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Str("code", apperr.Code(err)).Msg("request failed")
		msg = genericFailure
	}
	c.JSON(status, gin.H{
		"success":   false,
		"code":      apperr.Code(err),
		"error":     msg,
		"retryable": apperr.Retryable(err),
	})
}

func badRequest(c *gin.Context, reason string) {
	respondError(c, apperr.Validation(reason))
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		respondError(c, apperr.ErrInvalidToken)
		return 0, false
	}
	return userID, true
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	user, err := h.accounts.CreateUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Info().Int64("user_id", user.ID).Msg("user signed up")
	h.respondWithToken(c, user)
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	user, err := h.accounts.VerifyCredentials(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondWithToken(c, user)
}

func (h *Handler) respondWithToken(c *gin.Context, user *models.User) {
	token, expiresAt, err := h.auth.IssueToken(user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token,
		"username":   user.Username,
		"expires_at": expiresAt,
	})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *Handler) motivationalChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	msg, err := h.conversations.Converse(c.Request.Context(), userID, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   msg.Message,
		"response":  msg.Response,
		"timestamp": msg.Timestamp,
	})
}

func (h *Handler) chatHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	messages, err := h.accounts.ListHistory(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": messages})
}

func (h *Handler) dailyQuote(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	quote, err := h.quotes.Today(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quote": quote.Text, "date": quote.Date})
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func (h *Handler) search(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	summary, err := h.searcher.Search(c.Request.Context(), req.Query, req.MaxResults)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "query": req.Query, "summary": summary})
}

type agentChatRequest struct {
	Message   string `json:"message"`
	AgentType string `json:"agent_type"`
}

// agentChat answers a free-form message with the chosen agent. Nothing is persisted.
func (h *Handler) agentChat(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	var req agentChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.AgentType == "" {
		req.AgentType = ai.AgentChat
	}
	agent, err := h.agents.Get(req.AgentType)
	if err != nil {
		respondError(c, err)
		return
	}
	reply, err := agent.Execute(c.Request.Context(), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"response":     reply,
		"agent_type":   req.AgentType,
		"capabilities": agent.Capabilities(),
	})
}

func (h *Handler) agentCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "capabilities": h.agents.Capabilities()})
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	dbState := "ok"
	if h.db == nil {
		dbState = "unavailable"
		status = http.StatusServiceUnavailable
	} else if err := h.db.PingContext(ctx); err != nil {
		log.Warn().Err(err).Msg("database ping failed")
		dbState = "unavailable"
		status = http.StatusServiceUnavailable
	}

	redisState := "disabled"
	if h.cache != nil {
		redisState = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis ping failed")
			redisState = "unavailable"
		}
	}

	c.JSON(status, gin.H{
		"success":  status == http.StatusOK,
		"database": dbState,
		"redis":    redisState,
	})
}
