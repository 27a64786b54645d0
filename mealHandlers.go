package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sami157/dining-management-server/middlewares"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/utils"
)

type generateSchedulesRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type bulkScheduleRequest struct {
	Updates []models.BulkScheduleUpdate `json:"updates"`
}

func (a *api) generateSchedules() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req generateSchedulesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		created, err := a.meals.GenerateSchedules(c.Request.Context(), req.StartDate, req.EndDate)
		if err != nil {
			respondError(c, a.logger, "generate schedules", req, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "schedules generated", "created": created})
	}
}

func (a *api) listSchedules() gin.HandlerFunc {
	return func(c *gin.Context) {
		schedules, err := a.meals.ListSchedules(c.Request.Context(), c.Query("month"), c.Query("startDate"), c.Query("endDate"))
		if err != nil {
			respondError(c, a.logger, "list schedules", nil, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"schedules": schedules, "count": len(schedules)})
	}
}

func (a *api) updateSchedule() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := utils.ParseId(c.Param("scheduleId"), "schedule id")
		if err != nil {
			respondError(c, a.logger, "update schedule", nil, err)
			return
		}
		var req models.UpdateMealSchedule
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		schedule, err := a.meals.UpdateSchedule(c.Request.Context(), id, req)
		if err != nil {
			respondError(c, a.logger, "update schedule", id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "schedule updated", "schedule": schedule})
	}
}

func (a *api) bulkUpdateSchedules() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		result, err := a.meals.BulkUpdateSchedules(c.Request.Context(), req.Updates)
		if err != nil {
			respondError(c, a.logger, "bulk update schedules", len(req.Updates), err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (a *api) availableMeals() gin.HandlerFunc {
	return func(c *gin.Context) {
		days, err := a.meals.AvailableMeals(c.Request.Context(), c.Query("month"), c.Query("startDate"), c.Query("endDate"))
		if err != nil {
			respondError(c, a.logger, "list available meals", nil, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"days": days, "count": len(days)})
	}
}

func (a *api) registerMeal() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewMealRegistration
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		reg, err := a.meals.RegisterMeal(c.Request.Context(), req)
		if err != nil {
			respondError(c, a.logger, "register meal", req, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "meal registered", "registration": reg})
	}
}

func (a *api) updateRegistration() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := utils.ParseId(c.Param("registrationId"), "registration id")
		if err != nil {
			respondError(c, a.logger, "update registration", nil, err)
			return
		}
		var req models.UpdateMealRegistration
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		reg, err := a.meals.UpdateRegistration(c.Request.Context(), id, req)
		if err != nil {
			respondError(c, a.logger, "update registration", id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "registration updated", "registration": reg})
	}
}

func (a *api) cancelRegistration() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := utils.ParseId(c.Param("registrationId"), "registration id")
		if err != nil {
			respondError(c, a.logger, "cancel registration", nil, err)
			return
		}
		if err := a.meals.CancelRegistration(c.Request.Context(), id); err != nil {
			respondError(c, a.logger, "cancel registration", id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "registration cancelled"})
	}
}

func (a *api) myRegistrations() gin.HandlerFunc {
	return func(c *gin.Context) {
		regs, err := a.meals.MyRegistrations(c.Request.Context(), c.Query("startDate"), c.Query("endDate"))
		if err != nil {
			respondError(c, a.logger, "list registrations", nil, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"registrations": regs, "count": len(regs)})
	}
}

// totalMeals defaults to the caller; only admins and managers may ask for others.
func (a *api) totalMeals() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		own, _ := utils.GetEmailFromContext(ctx)
		email := strings.TrimSpace(c.Query("email"))
		if email == "" {
			email = own
		}
		if !strings.EqualFold(email, own) && !middlewares.HasRole(ctx, models.UserRoleAdmin, models.UserRoleManager) {
			respondError(c, a.logger, "count meals", nil, utils.Forbidden("you can only view your own meals"))
			return
		}
		total, err := a.meals.TotalMeals(ctx, email, c.Query("month"))
		if err != nil {
			respondError(c, a.logger, "count meals", email, err)
			return
		}
		c.JSON(http.StatusOK, total)
	}
}
