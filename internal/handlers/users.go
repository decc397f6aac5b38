package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lombeo/sep490-backend-sub003/internal/services"
	appErrors "github.com/lombeo/sep490-backend-sub003/pkg/errors"
	"github.com/lombeo/sep490-backend-sub003/pkg/response"
	appValidator "github.com/lombeo/sep490-backend-sub003/pkg/validator"
)

// UserHandler serves administrator account management.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	FullName string `json:"full_name" validate:"max=200"`
	Role     string `json:"role" validate:"required"`
}

type updateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,max=100"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	FullName *string `json:"full_name" validate:"omitempty,max=200"`
	Role     *string `json:"role"`
	IsVerify *bool   `json:"is_verify"`
}

type listUsersQuery struct {
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=200"`
	Keyword  string `form:"keyword" validate:"max=100"`
	Role     string `form:"role"`
}

// GET /api/admin/users
func (h *UserHandler) List(c *gin.Context) {
	var query listUsersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid query parameters"))
		return
	}
	if err := appValidator.ValidateStruct(&query); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return
	}

	users, total, err := h.users.List(requestContext(c), services.ListUsersOptions{
		Page:     query.Page,
		PageSize: query.PageSize,
		Filters:  services.UserFilters{Query: query.Keyword, Role: query.Role},
	})
	if err != nil {
		fail(c, err)
		return
	}

	page, perPage := max(query.Page, 1), query.PageSize
	if perPage == 0 {
		perPage = services.DefaultUserPageSize
	}
	response.SuccessWithMeta(c, http.StatusOK, users, &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: (int(total) + perPage - 1) / perPage,
	})
}

// GET /api/admin/users/:userId
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "userId")
	if !ok {
		return
	}

	user, err := h.users.GetByID(requestContext(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/admin/users
func (h *UserHandler) Create(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req createUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Create(requestContext(c), actorID, services.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Role:     req.Role,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusCreated, "S-ADMIN-001", user)
}

// PUT /api/admin/users/:userId
func (h *UserHandler) Update(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "userId")
	if !ok {
		return
	}

	var req updateUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Update(requestContext(c), actorID, id, services.UpdateUserInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Role:     req.Role,
		IsVerify: req.IsVerify,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "S-ADMIN-002", user)
}

// DELETE /api/admin/users/:userId
func (h *UserHandler) Delete(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "userId")
	if !ok {
		return
	}

	if err := h.users.Delete(requestContext(c), actorID, id); err != nil {
		fail(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "S-ADMIN-003", gin.H{"user_id": id})
}
