package server

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orderdesk/remindbot/internal/auth"
	"github.com/orderdesk/remindbot/internal/board"
	"github.com/orderdesk/remindbot/internal/identity"
	"github.com/orderdesk/remindbot/internal/reminders"
)

const requestIDHeader = "X-Request-ID"

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingStore        = errors.New("reminder store dependency required")
	errMissingNormalizer   = errors.New("normalizer dependency required")
	errMissingAPIKey       = errors.New("api key required")
)

// Dependencies wires the command API handler. Board and Dispatcher are
// optional; the matching routes degrade when they are absent.
type Dependencies struct {
	TokenManager *auth.TokenManager
	APIKey       string
	Store        *reminders.Store
	Normalizer   *reminders.Normalizer
	Identities   *identity.Service
	Board        *board.Client
	Dispatcher   *DeliveryDispatcher
	Clock        func() time.Time
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router for the command layer.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if strings.TrimSpace(deps.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Normalizer == nil {
		return nil, errMissingNormalizer
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:     deps.TokenManager,
		apiKey:     deps.APIKey,
		store:      deps.Store,
		normalizer: deps.Normalizer,
		identities: deps.Identities,
		board:      deps.Board,
		dispatcher: deps.Dispatcher,
		clock:      clock,
		logger:     logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/auth/token", handler.handleIssueToken)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/reminders", handler.handleCreateReminder)
	protected.GET("/reminders", handler.handleListReminders)
	protected.PATCH("/reminders/:id", handler.handleEditReminder)
	protected.DELETE("/reminders/:id", handler.handleRemoveReminder)
	protected.GET("/orders/:num", handler.handleOrderStatus)
	protected.GET("/orders/:num/lists", handler.handleOrderLists)
	protected.POST("/orders/:num/move", handler.handleOrderMove)
	protected.GET("/orders/:num/comments", handler.handleOrderComments)
	protected.POST("/orders/:num/comments", handler.handleOrderAddComment)
	protected.PUT("/orders/:num/due-date", handler.handleOrderDueDate)
	protected.GET("/events", handler.handleDeliveryStream)

	return router, nil
}

type httpHandler struct {
	tokens     *auth.TokenManager
	apiKey     string
	store      *reminders.Store
	normalizer *reminders.Normalizer
	identities *identity.Service
	board      *board.Client
	dispatcher *DeliveryDispatcher
	clock      func() time.Time
	logger     *zap.Logger
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

type tokenRequestPayload struct {
	APIKey string `json:"api_key"`
	Client string `json:"client"`
}

func (h *httpHandler) handleIssueToken(c *gin.Context) {
	var request tokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.APIKey) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.APIKey != h.apiKey {
		h.logger.Warn("token request with bad api key")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	subject := strings.TrimSpace(request.Client)
	if subject == "" {
		subject = "command-layer"
	}
	token, expiresIn, err := h.tokens.Issue(subject)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"expires_in":   expiresIn,
		"token_type":   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	_, err := h.tokens.Validate(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

type createReminderPayload struct {
	Date          string `json:"date"`
	Time          string `json:"time"`
	Message       string `json:"message"`
	RequesterName string `json:"requester_name"`
	RequesterID   int64  `json:"requester_id"`
	ChannelName   string `json:"channel_name"`
	ChannelID     int64  `json:"channel_id"`
}

func (h *httpHandler) handleCreateReminder(c *gin.Context) {
	var request createReminderPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	id, local, err := h.store.Schedule(c.Request.Context(),
		request.Date, request.Time, request.Message,
		reminders.Identity{Name: request.RequesterName, ID: request.RequesterID},
		reminders.Identity{Name: request.ChannelName, ID: request.ChannelID})
	if err != nil {
		h.respondReminderError(c, err)
		return
	}

	if h.identities != nil {
		if err := h.identities.Touch(c.Request.Context(), request.RequesterID, request.RequesterName); err != nil {
			h.logger.Warn("requester upsert failed",
				zap.Int64("requester_id", request.RequesterID),
				zap.Error(err))
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":            id,
		"scheduled_for": h.normalizer.FormatLocal(local.UTC()),
	})
}

func (h *httpHandler) handleListReminders(c *gin.Context) {
	scope := c.DefaultQuery("scope", "active")
	if scope != "active" && scope != "past" && scope != "both" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope must be active, past or both"})
		return
	}

	response := gin.H{}
	if scope == "active" || scope == "both" {
		active, err := h.store.ListActive(c.Request.Context())
		if err != nil {
			h.logger.Error("active list failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failure"})
			return
		}
		entries := make([]string, 0, len(active))
		for _, reminder := range active {
			entries = append(entries, renderActive(h.normalizer, reminder))
		}
		response["active"] = active
		response["active_pages"] = paginate(entries)
	}
	if scope == "past" || scope == "both" {
		past, err := h.store.ListArchived(c.Request.Context())
		if err != nil {
			h.logger.Error("archived list failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failure"})
			return
		}
		entries := make([]string, 0, len(past))
		for _, reminder := range past {
			entries = append(entries, renderArchived(h.normalizer, reminder))
		}
		response["past"] = past
		response["past_pages"] = paginate(entries)
	}
	c.JSON(http.StatusOK, response)
}

type editReminderPayload struct {
	Date    *string `json:"date"`
	Time    *string `json:"time"`
	Message *string `json:"message"`
}

func (h *httpHandler) handleEditReminder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reminder id"})
		return
	}
	var request editReminderPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err = h.store.Edit(c.Request.Context(), id, reminders.EditRequest{
		DateText: request.Date,
		TimeText: request.Time,
		Message:  request.Message,
	})
	if err != nil {
		h.respondReminderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *httpHandler) handleRemoveReminder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reminder id"})
		return
	}
	if err := h.store.Remove(c.Request.Context(), id); err != nil {
		h.respondReminderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// respondReminderError maps the store's error taxonomy onto user-facing
// responses. Parse and past-schedule failures carry corrective text for the
// chat user; storage failures stay opaque.
func (h *httpHandler) respondReminderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, reminders.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no reminder found with the given index"})
	case errors.Is(err, reminders.ErrPastSchedule):
		c.JSON(http.StatusBadRequest, gin.H{"error": "you can't set a reminder for a past time"})
	case errors.Is(err, reminders.ErrInvalidDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, use day-first forms like '15 Mar' or '15 Mar 2025'"})
	case errors.Is(err, reminders.ErrInvalidTime):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time, use 24-hour HH:MM"})
	case errors.Is(err, reminders.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "reminder message required"})
	default:
		h.logger.Error("reminder operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failure"})
	}
}

func (h *httpHandler) orderNumber(c *gin.Context) (int, bool) {
	num, err := strconv.Atoi(c.Param("num"))
	if err != nil || num < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order number"})
		return 0, false
	}
	return num, true
}

func (h *httpHandler) boardOrAbort(c *gin.Context) (*board.Client, bool) {
	if h.board == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "board integration not configured"})
		return nil, false
	}
	return h.board, true
}

func (h *httpHandler) respondBoardError(c *gin.Context, num int, err error) {
	if errors.Is(err, board.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found", "order": num})
		return
	}
	h.logger.Error("board request failed", zap.Int("order", num), zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "board_failure"})
}

func (h *httpHandler) handleOrderStatus(c *gin.Context) {
	client, ok := h.boardOrAbort(c)
	if !ok {
		return
	}
	num, ok := h.orderNumber(c)
	if !ok {
		return
	}
	located, err := client.FindOrder(c.Request.Context(), num)
	if err != nil {
		h.respondBoardError(c, num, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":     num,
		"card_name": located.Card.Name,
		"list_name": located.ListName,
	})
}

func (h *httpHandler) handleOrderLists(c *gin.Context) {
	client, ok := h.boardOrAbort(c)
	if !ok {
		return
	}
	num, ok := h.orderNumber(c)
	if !ok {
		return
	}
	located, err := client.FindOrder(c.Request.Context(), num)
	if err != nil {
		h.respondBoardError(c, num, err)
		return
	}
	lists, err := client.Lists(c.Request.Context())
	if err != nil {
		h.respondBoardError(c, num, err)
		return
	}
	available := make([]board.List, 0, len(lists))
	for _, list := range lists {
		if list.ID != located.ListID {
			available = append(available, list)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"order":        num,
		"current_list": located.ListName,
		"available":    available,
	})
}

type orderMovePayload struct {
	ListID   string `json:"list_id"`
	ListName string `json:"list_name"`
}

func (h *httpHandler) handleOrderMove(c *gin.Context) {
	client, ok := h.boardOrAbort(c)
	if !ok {
		return
	}
	num, ok := h.orderNumber(c)
	if !ok {
		return
	}
	var request orderMovePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ListID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target list_id required"})
		return
	}
	result, err := client.MoveOrder(c.Request.Context(), num, request.ListID, request.ListName)
	if err != nil {
		h.respondBoardError(c, num, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"card_name": result.CardName,
		"from_list": result.FromList,
		"to_list":   result.ToList,
	})
}

func (h *httpHandler) handleOrderComments(c *gin.Context) {
	client, ok := h.boardOrAbort(c)
	if !ok {
		return
	}
	num, ok := h.orderNumber(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "3"))
	if err != nil || limit < 1 {
		limit = 3
	}
	comments, err := client.LatestComments(c.Request.Context(), num, limit)
	if err != nil {
		h.respondBoardError(c, num, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": num, "comments": comments})
}

type orderCommentPayload struct {
	Text       string                  `json:"text"`
	Attachment *orderAttachmentPayload `json:"attachment"`
}

type orderAttachmentPayload struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	DataBase64  string `json:"data_base64"`
}

func (h *httpHandler) handleOrderAddComment(c *gin.Context) {
	client, ok := h.boardOrAbort(c)
	if !ok {
		return
	}
	num, ok := h.orderNumber(c)
	if !ok {
		return
	}
	var request orderCommentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if strings.TrimSpace(request.Text) == "" && request.Attachment == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment text or attachment required"})
		return
	}

	input := board.CommentInput{Text: request.Text}
	if request.Attachment != nil {
		if strings.TrimSpace(request.Attachment.FileName) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attachment file_name required"})
			return
		}
		data, err := base64.StdEncoding.DecodeString(request.Attachment.DataBase64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attachment data_base64 must be valid base64"})
			return
		}
		input.Attachment = &board.AttachmentUpload{
			FileName:    request.Attachment.FileName,
			ContentType: request.Attachment.ContentType,
			Data:        data,
		}
	}

	if err := client.AddComment(c.Request.Context(), num, input); err != nil {
		if errors.Is(err, board.ErrAttachmentTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attachment exceeds the 10 MB size limit"})
			return
		}
		h.respondBoardError(c, num, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "comment added"})
}

type orderDueDatePayload struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (h *httpHandler) handleOrderDueDate(c *gin.Context) {
	client, ok := h.boardOrAbort(c)
	if !ok {
		return
	}
	num, ok := h.orderNumber(c)
	if !ok {
		return
	}
	var request orderDueDatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	local, err := h.normalizer.ParseLocal(request.Date, request.Time, h.normalizer.ToLocal(h.clock().UTC()))
	if err != nil {
		h.respondReminderError(c, err)
		return
	}
	if err := client.SetDueDate(c.Request.Context(), num, h.normalizer.ToUTC(local)); err != nil {
		h.respondBoardError(c, num, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":  num,
		"due_at": h.normalizer.FormatLocal(h.normalizer.ToUTC(local)),
	})
}

func (h *httpHandler) handleDeliveryStream(c *gin.Context) {
	if h.dispatcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "delivery stream not available"})
		return
	}
	stream, cancel := h.dispatcher.Subscribe(c.Request.Context())
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent("delivery", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
