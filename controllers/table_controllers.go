package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yeremiapane/table-order/models"
	"github.com/yeremiapane/table-order/realtime"
	"github.com/yeremiapane/table-order/utils"
	"gorm.io/gorm"
)

type TableController struct {
	DB         *gorm.DB
	Dispatcher *realtime.Dispatcher
}

func NewTableController(db *gorm.DB, dispatcher *realtime.Dispatcher) *TableController {
	return &TableController{DB: db, Dispatcher: dispatcher}
}

// parseTableNumber validates the 1..99 range and returns the 2-digit
// padded form used everywhere in storage and on the wire.
func parseTableNumber(raw string) (string, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 99 {
		return "", ErrInvalidTableNumber
	}
	return fmt.Sprintf("%02d", n), nil
}

func qrPayload(sessionID string) string {
	base := os.Getenv("PUBLIC_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	return fmt.Sprintf("%s/order?session_id=%s", base, sessionID)
}

// CreateTable -> provisioning: add a new table, always available.
func (tc *TableController) CreateTable(c *gin.Context) {
	var req struct {
		TableNumber string `json:"table_number" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	number, err := parseTableNumber(req.TableNumber)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var count int64
	tc.DB.Model(&models.Table{}).Where("table_number = ?", number).Count(&count)
	if count > 0 {
		utils.RespondError(c, http.StatusConflict, ErrTableExists)
		return
	}

	table := models.Table{
		TableNumber: number,
		Status:      models.TableAvailable,
	}
	if err := tc.DB.Create(&table).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.InfoLogger.Printf("New table created: %s", table.TableNumber)
	utils.RespondJSON(c, http.StatusCreated, "Table created successfully", table)
}

// GetAllTables -> list every table with its current status.
func (tc *TableController) GetAllTables(c *gin.Context) {
	var tables []models.Table
	if err := tc.DB.Find(&tables).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of tables", tables)
}

// OpenTable -> start a dining session on an available table.
//
// Session insert and the conditional table update run in one
// transaction: if the table is not available (or missing) the whole
// block rolls back, so no orphaned session row can leak.
func (tc *TableController) OpenTable(c *gin.Context) {
	number, err := parseTableNumber(c.Param("table_number"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	sessionID := uuid.NewString()
	payload := qrPayload(sessionID)
	now := time.Now()

	err = tc.DB.Transaction(func(tx *gorm.DB) error {
		session := models.Session{
			SessionID:   sessionID,
			TableNumber: number,
			OpenedAt:    now,
		}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Table{}).
			Where("table_number = ? AND status = ?", number, models.TableAvailable).
			Updates(map[string]interface{}{
				"status":           models.TableOpen,
				"customer_session": sessionID,
				"opened_at":        now,
				"qr_code_url":      payload,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTableConflict
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTableConflict) {
			utils.RespondError(c, http.StatusConflict, err)
			return
		}
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.InfoLogger.Printf("Table %s opened with session %s", number, sessionID)
	utils.RespondJSON(c, http.StatusOK, "Table opened", gin.H{
		"session_id": sessionID,
		"qr_payload": payload,
	})
}

// CloseTable -> end the table's session and free the table.
//
// Guard-and-clear, session close and order completion run in a single
// transaction so a crash mid-sequence cannot leave the table half
// closed. The still-connected customer (if any) is notified after
// commit.
func (tc *TableController) CloseTable(c *gin.Context) {
	number, err := parseTableNumber(c.Param("table_number"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var sessionID string
	err = tc.DB.Transaction(func(tx *gorm.DB) error {
		var table models.Table
		if err := tx.Where("table_number = ?", number).First(&table).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTableNotOpen
			}
			return err
		}
		if table.CustomerSession != nil {
			sessionID = *table.CustomerSession
		}

		// The guard is the conditional update itself, like OpenTable:
		// of two racing closes only one affects the row, the other
		// rolls back and reports not-found.
		res := tx.Model(&models.Table{}).
			Where("id = ? AND status <> ?", table.ID, models.TableAvailable).
			Updates(map[string]interface{}{
				"status":           models.TableAvailable,
				"customer_session": nil,
				"opened_at":        nil,
				"qr_code_url":      "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTableNotOpen
		}

		if sessionID != "" {
			if err := tx.Model(&models.Session{}).
				Where("session_id = ? AND closed_at IS NULL", sessionID).
				Update("closed_at", time.Now()).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.Order{}).
			Where("table_number = ? AND status <> ?", number, models.OrderCompleted).
			Update("status", models.OrderCompleted).Error
	})
	if err != nil {
		if errors.Is(err, ErrTableNotOpen) {
			utils.RespondError(c, http.StatusNotFound, err)
			return
		}
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	if sessionID != "" && tc.Dispatcher != nil {
		tc.Dispatcher.NotifyTableClosed(sessionID)
	}

	utils.InfoLogger.Printf("Table %s closed (session %s)", number, sessionID)
	utils.RespondJSON(c, http.StatusOK, "Table closed", gin.H{
		"table_number": number,
	})
}

// CheckTable -> resolve a session id to its table, 404 once the
// session is no longer bound.
func (tc *TableController) CheckTable(c *gin.Context) {
	sessionID := c.Param("session_id")

	var table models.Table
	if err := tc.DB.Where("customer_session = ?", sessionID).First(&table).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table detail", table)
}
