package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/internal/middleware"
	"github.com/ymliu/convo/internal/repository"
	"github.com/ymliu/convo/internal/service"
	"github.com/ymliu/convo/pkg/log"
	"github.com/ymliu/convo/pkg/response"
)

// HTTPHandler handles the request/response surface: accounts, rooms,
// history.
type HTTPHandler struct {
	userService    service.UserService
	roomService    service.RoomService
	historyService service.HistoryService
	authMiddleware *middleware.AuthMiddleware
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	userService service.UserService,
	roomService service.RoomService,
	historyService service.HistoryService,
	authMiddleware *middleware.AuthMiddleware,
) *HTTPHandler {
	return &HTTPHandler{
		userService:    userService,
		roomService:    roomService,
		historyService: historyService,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all HTTP routes.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	users := r.Group("/users")
	{
		users.POST("/signup", h.Signup)
		users.POST("/login", h.Login)
	}

	rooms := r.Group("/rooms")
	rooms.Use(h.authMiddleware.RequireAuth())
	{
		rooms.POST("", h.CreateRoom)
		rooms.GET("", h.ListRooms)
		rooms.GET("/:room_id", h.GetRoom)
		rooms.GET("/:room_id/messages", h.GetMessages)
	}

	r.GET("/health", h.HealthCheck)
}

// Signup handles user registration.
func (h *HTTPHandler) Signup(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid signup request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.userService.Signup(ctx, &req)
	if err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			response.BadRequest(c, "username exists")
			return
		}
		l.Error().Err(err).Msg("signup failed")
		response.InternalError(c, "failed to sign up")
		return
	}

	response.Created(c, result)
}

// Login handles credential verification and token issuance.
func (h *HTTPHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.userService.Login(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, "invalid credentials")
			return
		}
		l.Error().Err(err).Msg("login failed")
		response.InternalError(c, "failed to login")
		return
	}

	response.Success(c, result)
}

// CreateRoom creates a room. Admin role required.
func (h *HTTPHandler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	actor, ok := middleware.GetIdentity(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}

	var req domain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid create room request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.roomService.CreateRoom(ctx, actor, &req)
	if err != nil {
		if errors.Is(err, service.ErrAdminOnly) {
			response.Forbidden(c, "admins only")
			return
		}
		if errors.Is(err, repository.ErrRoomExists) {
			response.Conflict(c, "room name already exists")
			return
		}
		l.Error().Err(err).Msg("create room failed")
		response.InternalError(c, "failed to create room")
		return
	}

	response.Created(c, result)
}

// GetRoom retrieves a single room.
func (h *HTTPHandler) GetRoom(c *gin.Context) {
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	result, err := h.roomService.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		response.InternalError(c, "failed to get room")
		return
	}

	response.Success(c, result)
}

// ListRooms lists all rooms.
func (h *HTTPHandler) ListRooms(c *gin.Context) {
	result, err := h.roomService.ListRooms(c.Request.Context())
	if err != nil {
		response.InternalError(c, "failed to list rooms")
		return
	}
	response.Success(c, result)
}

// GetMessages serves paginated room history, newest first.
func (h *HTTPHandler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		response.BadRequest(c, "skip must be a non-negative integer")
		return
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
	}

	result, err := h.historyService.FetchPage(ctx, roomID, skip, limit)
	if err != nil {
		l.Error().Err(err).Uint(log.FieldRoomID, roomID).Msg("failed to fetch history page")
		response.InternalError(c, "failed to get messages")
		return
	}

	response.Success(c, result)
}

// HealthCheck reports liveness.
func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func parseRoomID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("room_id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "room_id must be an integer")
		return 0, false
	}
	return uint(id), true
}
