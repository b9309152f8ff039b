package api

import (
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hijrachat/internal/auth"
	"hijrachat/internal/logger"
	"hijrachat/internal/redis"
	"hijrachat/internal/service/assistant"
)

const (
	msgMissingFields        = "القيم ناقصة"
	msgSubscriptionRequired = "يجب الاشتراك لاستخدام الدردشة"
	msgChatFailed           = "خطأ في الاتصال بـ Gemini"
	msgHistoryFailed        = "فشل تحميل المحادثة"
	msgServerError          = "Server error"
	msgBodyTooLarge         = "request body too large"
)

// Handler wires HTTP routes to the assistant service.
type Handler struct {
	assistant *assistant.Service
	identity  auth.Identity
	limiter   Limiter
	static    fs.FS
	log       *logger.Logger
}

// NewHandler constructs a Handler instance. limiter and static may be nil.
func NewHandler(service *assistant.Service, identity auth.Identity, limiter Limiter, static fs.FS, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		assistant: service,
		identity:  identity,
		limiter:   limiter,
		static:    static,
		log:       log,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(RequestID(), AccessLog(h.log), BodyLimit(maxBodyBytes))

	router.GET("/healthz", h.healthz)

	api := router.Group("/api")
	api.POST("/signup", h.rateLimit(redis.ScopeAuth), h.signup)
	api.POST("/login", h.rateLimit(redis.ScopeAuth), h.login)
	api.GET("/subscription", auth.Middleware(h.identity), h.subscription)
	api.POST("/chat", h.rateLimit(redis.ScopeChat), h.chat)
	api.POST("/chat/history", h.chatHistory)

	router.NoRoute(h.serveStatic)
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) signup(c *gin.Context) {
	req, ok := bindLenient[credentialsRequest](c)
	if !ok {
		return
	}
	userID, err := h.assistant.Signup(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.log.WithContext(c.Request.Context()).Info("signup rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "userId": userID})
}

func (h *Handler) login(c *gin.Context) {
	req, ok := bindLenient[credentialsRequest](c)
	if !ok {
		return
	}
	session, err := h.assistant.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.log.WithContext(c.Request.Context()).Info("login rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    session.User,
		"session": session,
	})
}

func (h *Handler) subscription(c *gin.Context) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}
	sub, err := h.assistant.Subscription(c.Request.Context(), user.ID)
	if err != nil {
		h.log.WithContext(c.Request.Context()).Error("subscription lookup failed",
			zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgServerError})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

type chatRequest struct {
	Message        string `json:"message"`
	UserID         string `json:"userId"`
	Country        string `json:"country"`
	ConversationID string `json:"conversationId"`
}

func (h *Handler) chat(c *gin.Context) {
	req, ok := bindLenient[chatRequest](c)
	if !ok {
		return
	}
	reply, err := h.assistant.Chat(c.Request.Context(), assistant.ChatRequest{
		Message:        req.Message,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Country:        req.Country,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"response": reply})
	case errors.Is(err, assistant.ErrSubscriptionRequired):
		c.JSON(http.StatusForbidden, gin.H{
			"error":                msgSubscriptionRequired,
			"requiresSubscription": true,
		})
	case errors.Is(err, assistant.ErrMissingFields):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingFields})
	default:
		h.log.WithContext(c.Request.Context()).Error("chat failed",
			zap.String("user_id", req.UserID),
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgChatFailed})
	}
}

type historyRequest struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type historyItem struct {
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) chatHistory(c *gin.Context) {
	req, ok := bindLenient[historyRequest](c)
	if !ok {
		return
	}
	messages, err := h.assistant.History(c.Request.Context(), req.UserID, req.ConversationID)
	if err != nil {
		h.log.WithContext(c.Request.Context()).Error("history failed",
			zap.String("user_id", req.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgHistoryFailed})
		return
	}
	items := make([]historyItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, historyItem{Role: string(m.Role), Message: m.Message, CreatedAt: m.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"history": items})
}

// bindLenient decodes the JSON body into a fresh T. An unreadable body yields the zero value
// so the usual field validation decides the response. A body over the size limit is answered
// with 413 and ok is false.
func bindLenient[T any](c *gin.Context) (req T, ok bool) {
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgBodyTooLarge})
			return req, false
		}
		var empty T
		return empty, true
	}
	return req, true
}
