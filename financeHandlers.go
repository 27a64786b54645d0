package main

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/middlewares"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/utils"
	"github.com/sami157/dining-management-server/workflow"
)

func (a *api) addDeposit() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewDeposit
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		deposit, err := a.finance.AddDeposit(c.Request.Context(), req)
		if err != nil {
			respondError(c, a.logger, "add deposit", req, err)
			return
		}
		body := gin.H{"message": "deposit added", "deposit": deposit}
		// the deposit is committed; a failed balance read only trims the response
		if balance, err := a.finance.GetBalance(c.Request.Context(), deposit.MemberId); err == nil {
			body["balance"] = balance
		} else {
			config.LogError(a.logger, "financeHandlers.go", "addDeposit", "reading balance after deposit", deposit.ID, err)
		}
		c.JSON(http.StatusCreated, body)
	}
}

func (a *api) listDeposits() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.DepositFilter{Month: strings.TrimSpace(c.Query("month"))}
		if raw := c.Query("memberId"); raw != "" {
			id, err := utils.ParseId(raw, "memberId")
			if err != nil {
				respondError(c, a.logger, "list deposits", raw, err)
				return
			}
			filter.MemberId = id
		}
		deposits, err := a.finance.ListDeposits(c.Request.Context(), filter)
		if err != nil {
			respondError(c, a.logger, "list deposits", filter, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deposits": deposits, "count": len(deposits)})
	}
}

func (a *api) updateDeposit() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := utils.ParseId(c.Param("depositId"), "deposit id")
		if err != nil {
			respondError(c, a.logger, "update deposit", nil, err)
			return
		}
		var req models.UpdateDeposit
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		deposit, err := a.finance.UpdateDeposit(c.Request.Context(), id, req)
		if err != nil {
			respondError(c, a.logger, "update deposit", id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "deposit updated", "deposit": deposit})
	}
}

func (a *api) deleteDeposit() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := utils.ParseId(c.Param("depositId"), "deposit id")
		if err != nil {
			respondError(c, a.logger, "delete deposit", nil, err)
			return
		}
		if _, err := a.finance.DeleteDeposit(c.Request.Context(), id); err != nil {
			respondError(c, a.logger, "delete deposit", id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "deposit deleted"})
	}
}

func (a *api) addExpense() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewExpense
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		expense, err := a.finance.AddExpense(c.Request.Context(), req)
		if err != nil {
			respondError(c, a.logger, "add expense", req, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "expense added", "expense": expense})
	}
}

func (a *api) listExpenses() gin.HandlerFunc {
	return func(c *gin.Context) {
		month := strings.TrimSpace(c.Query("month"))
		expenses, err := a.finance.ListExpenses(c.Request.Context(), month)
		if err != nil {
			respondError(c, a.logger, "list expenses", month, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"expenses": expenses, "count": len(expenses)})
	}
}

func (a *api) updateExpense() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := utils.ParseId(c.Param("expenseId"), "expense id")
		if err != nil {
			respondError(c, a.logger, "update expense", nil, err)
			return
		}
		var req models.UpdateExpense
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		expense, err := a.finance.UpdateExpense(c.Request.Context(), id, req)
		if err != nil {
			respondError(c, a.logger, "update expense", id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "expense updated", "expense": expense})
	}
}

func (a *api) deleteExpense() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := utils.ParseId(c.Param("expenseId"), "expense id")
		if err != nil {
			respondError(c, a.logger, "delete expense", nil, err)
			return
		}
		if _, err := a.finance.DeleteExpense(c.Request.Context(), id); err != nil {
			respondError(c, a.logger, "delete expense", id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "expense deleted"})
	}
}

func (a *api) listBalances() gin.HandlerFunc {
	return func(c *gin.Context) {
		balances, err := a.finance.ListBalances(c.Request.Context())
		if err != nil {
			respondError(c, a.logger, "list balances", nil, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balances": balances, "count": len(balances)})
	}
}

// getBalance lets members read their own balance only.
func (a *api) getBalance() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := utils.ParseId(c.Param("userId"), "user id")
		if err != nil {
			respondError(c, a.logger, "get balance", nil, err)
			return
		}
		callerId, _ := utils.GetUserIdFromContext(ctx)
		if id != callerId && !middlewares.HasRole(ctx, models.UserRoleAdmin, models.UserRoleManager) {
			respondError(c, a.logger, "get balance", id, utils.Forbidden("you can only view your own balance"))
			return
		}
		balance, err := a.finance.GetBalance(ctx, id)
		if err != nil {
			respondError(c, a.logger, "get balance", id, err)
			return
		}
		c.JSON(http.StatusOK, balance)
	}
}

// mealRateAsOf picks the day the running rate is computed for: today for the
// current month, the last day for past months.
func (a *api) mealRateAsOf(month string) (string, time.Time, error) {
	today := models.DateOnly(a.now().In(a.loc))
	if month == "" {
		return models.MonthOf(today), today, nil
	}
	_, end, err := models.MonthRange(month)
	if err != nil {
		return "", time.Time{}, utils.Validation("%s", err.Error())
	}
	if today.After(end) {
		return month, end, nil
	}
	return month, today, nil
}

func (a *api) mealRate() gin.HandlerFunc {
	return func(c *gin.Context) {
		month, asOf, err := a.mealRateAsOf(strings.TrimSpace(c.Query("month")))
		if err != nil {
			respondError(c, a.logger, "compute meal rate", nil, err)
			return
		}
		if raw := c.Query("date"); raw != "" {
			if asOf, err = models.ParseDate(raw); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		rate, err := a.finance.RunningMealRate(c.Request.Context(), month, asOf)
		if err != nil {
			respondError(c, a.logger, "compute meal rate", month, err)
			return
		}
		c.JSON(http.StatusOK, rate)
	}
}

func (a *api) finalizeMonth() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.FinalizeMonthInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		fin, err := a.finance.FinalizeMonth(c.Request.Context(), strings.TrimSpace(req.Month))
		if err != nil {
			respondError(c, a.logger, "finalize month", req, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "month finalized", "finalization": fin})
	}
}

func (a *api) undoFinalization() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.FinalizeMonthInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		fin, err := a.finance.UndoFinalization(c.Request.Context(), strings.TrimSpace(req.Month))
		if err != nil {
			respondError(c, a.logger, "undo finalization", req, err)
			return
		}
		balances, err := a.finance.BalancesOf(c.Request.Context(), fin)
		if err != nil {
			respondError(c, a.logger, "undo finalization", req, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":      "finalization undone",
			"month":        fin.Month,
			"finalization": fin,
			"balances":     balances,
		})
	}
}

func (a *api) getFinalization() gin.HandlerFunc {
	return func(c *gin.Context) {
		month := c.Param("month")
		fin, err := a.finance.GetFinalization(c.Request.Context(), month)
		if err != nil {
			respondError(c, a.logger, "get finalization", month, err)
			return
		}
		c.JSON(http.StatusOK, fin)
	}
}

func (a *api) listFinalizations() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := a.finance.ListFinalizations(c.Request.Context())
		if err != nil {
			respondError(c, a.logger, "list finalizations", nil, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"finalizations": list, "count": len(list)})
	}
}

func (a *api) exportFinalization() gin.HandlerFunc {
	return func(c *gin.Context) {
		month := c.Param("month")
		var buf bytes.Buffer
		if err := a.finance.ExportFinalization(c.Request.Context(), month, &buf); err != nil {
			respondError(c, a.logger, "export finalization", month, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+workflow.FinalizationExportFilename(month)+`"`)
		c.Data(http.StatusOK, workflow.XlsxMediaType, buf.Bytes())
	}
}
