package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codygellie/contact-management-app/internal/contacts"
	"github.com/codygellie/contact-management-app/internal/realtime"
)

var (
	errMissingContactsService = errors.New("contacts service dependency required")
	errMissingBroadcaster     = errors.New("broadcaster dependency required")
)

// Dependencies carries the collaborators of the HTTP surface.
type Dependencies struct {
	ContactsService *contacts.Service
	Broadcaster     *realtime.Broadcaster
	Logger          *zap.Logger
}

// NewHTTPHandler wires the REST and stream routes onto a gin engine.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.ContactsService == nil {
		return nil, errMissingContactsService
	}
	if deps.Broadcaster == nil {
		return nil, errMissingBroadcaster
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		service:     deps.ContactsService,
		broadcaster: deps.Broadcaster,
		logger:      logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/contacts", handler.handleListContacts)
	router.POST("/contacts", handler.handleCreateContact)
	router.PUT("/contacts/:id", handler.handleUpdateContact)
	router.DELETE("/contacts/:id", handler.handleDeleteContact)
	router.GET("/contacts/stream", handler.handleStream)

	return router, nil
}

type httpHandler struct {
	service     *contacts.Service
	broadcaster *realtime.Broadcaster
	logger      *zap.Logger
}

type paginationPayload struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

type listResponsePayload struct {
	Contacts   []contacts.Contact `json:"contacts"`
	Pagination paginationPayload  `json:"pagination"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "OK",
		"connectedClients": h.broadcaster.Count(),
	})
}

func (h *httpHandler) handleListContacts(c *gin.Context) {
	query := contacts.PageQuery{
		Page:     intQueryParam(c, "page", 1),
		PageSize: intQueryParam(c, "limit", contacts.DefaultPageSize),
		Search:   c.Query("search"),
	}

	page, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	rows := page.Contacts
	if rows == nil {
		rows = []contacts.Contact{}
	}
	c.JSON(http.StatusOK, listResponsePayload{
		Contacts: rows,
		Pagination: paginationPayload{
			Page:       page.Query.Page,
			Limit:      page.Query.PageSize,
			Total:      page.Total,
			TotalPages: page.TotalPages,
			HasNext:    page.HasNext(),
			HasPrev:    page.HasPrev(),
		},
	})
}

func (h *httpHandler) handleCreateContact(c *gin.Context) {
	var input contacts.ContactInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	record, err := h.service.Create(c.Request.Context(), input)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *httpHandler) handleUpdateContact(c *gin.Context) {
	id, ok := contactIDParam(c)
	if !ok {
		return
	}
	var input contacts.ContactInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	record, err := h.service.Update(c.Request.Context(), id, input)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleDeleteContact(c *gin.Context) {
	id, ok := contactIDParam(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contact deleted successfully"})
}

func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	var validationErr *contacts.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": validationErr.Violations,
		})
		return
	}
	var conflictErr *contacts.ConflictError
	if errors.As(err, &conflictErr) {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
		return
	}
	if errors.Is(err, contacts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
		return
	}

	h.logger.Error("contacts request failed", zap.Error(err))
	payload := gin.H{"error": "internal_error"}
	var serviceErr *contacts.ServiceError
	if errors.As(err, &serviceErr) {
		payload["code"] = serviceErr.Code()
	}
	c.JSON(http.StatusInternalServerError, payload)
}

func contactIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_contact_id"})
		return 0, false
	}
	return id, true
}

func intQueryParam(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
