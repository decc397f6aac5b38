package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lombeo/sep490-backend-sub003/internal/locks"
	"github.com/lombeo/sep490-backend-sub003/pkg/response"
)

// PlanLockHandler serves the construction plan edit locks.
type PlanLockHandler struct {
	locks *locks.Service
}

func NewPlanLockHandler(svc *locks.Service) *PlanLockHandler {
	return &PlanLockHandler{locks: svc}
}

type planLockRequest struct {
	PlanID uint `json:"plan_id" validate:"required"`
}

// POST /api/plans/locks/acquire
func (h *PlanLockHandler) Acquire(c *gin.Context) {
	userID, req, ok := h.bind(c)
	if !ok {
		return
	}

	view, err := h.locks.Acquire(requestContext(c), req.PlanID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "S-PLAN-LOCK-001", view)
}

// POST /api/plans/locks/release
func (h *PlanLockHandler) Release(c *gin.Context) {
	userID, req, ok := h.bind(c)
	if !ok {
		return
	}

	if err := h.locks.Release(requestContext(c), req.PlanID, userID); err != nil {
		fail(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "S-PLAN-LOCK-002", gin.H{"plan_id": req.PlanID})
}

// POST /api/plans/locks/extend
func (h *PlanLockHandler) Extend(c *gin.Context) {
	userID, req, ok := h.bind(c)
	if !ok {
		return
	}

	view, err := h.locks.Extend(requestContext(c), req.PlanID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "S-PLAN-LOCK-003", view)
}

// GET /api/plans/locks/status/:planId
func (h *PlanLockHandler) Status(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	planID, ok := parseIDParam(c, "planId")
	if !ok {
		return
	}

	status, err := h.locks.Status(requestContext(c), planID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

func (h *PlanLockHandler) bind(c *gin.Context) (uint, planLockRequest, bool) {
	var req planLockRequest
	userID, ok := currentUserID(c)
	if !ok {
		return 0, req, false
	}
	if !bindAndValidate(c, &req) {
		return 0, req, false
	}
	return userID, req, true
}
