package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaleItem is the immutable product snapshot stored on a sale
type SaleItem struct {
	ProductID   uuid.UUID `json:"productId"`
	ProductName string    `json:"productName"`
	Quantity    int       `json:"quantity"`
	Image       string    `json:"image"`
}

// SaleItems is stored as a JSONB column
type SaleItems []SaleItem

// Value implements driver.Valuer
func (s SaleItems) Value() (driver.Value, error) {
	return marshalJSONColumn(s)
}

// Scan implements sql.Scanner
func (s *SaleItems) Scan(src interface{}) error {
	return unmarshalJSONColumn(src, s)
}

// SaleHistoryEntry records one committed sale batch
type SaleHistoryEntry struct {
	ID              uuid.UUID `json:"id" db:"id"`
	CreatedAt       time.Time `json:"timestamp" db:"created_at"`
	SessionSnapshot `json:"session"`
	Items           SaleItems `json:"items" db:"items"`
	TotalItems      int       `json:"totalItems" db:"total_items"`
}

// StockUpdateHistoryEntry records one committed stock addition
type StockUpdateHistoryEntry struct {
	ID              uuid.UUID `json:"id" db:"id"`
	CreatedAt       time.Time `json:"timestamp" db:"created_at"`
	SessionSnapshot `json:"session"`
	ProductID       uuid.UUID `json:"productId" db:"product_id"`
	ProductName     string    `json:"productName" db:"product_name"`
	Image           string    `json:"image" db:"image"`
	QuantityAdded   int       `json:"quantityAdded" db:"quantity_added"`
	StockAfter      int       `json:"stockAfter" db:"stock_after"`
}

// ReportItem is one product line of a daily report
type ReportItem struct {
	ProductName string   `json:"productName"`
	Category    Category `json:"category"`
	Quantity    int      `json:"quantity"`
	Image       string   `json:"image"`
}

// ReportItems is stored as a JSONB column
type ReportItems []ReportItem

// Value implements driver.Valuer
func (r ReportItems) Value() (driver.Value, error) {
	return marshalJSONColumn(r)
}

// Scan implements sql.Scanner
func (r *ReportItems) Scan(src interface{}) error {
	return unmarshalJSONColumn(src, r)
}

// DailyReport is the immutable snapshot written by the daily reset
type DailyReport struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	CreatedAt       time.Time   `json:"timestamp" db:"created_at"`
	SessionSnapshot `json:"session"`
	ItemsSold       ReportItems `json:"itemsSold" db:"items_sold"`
	ItemsRejected   ReportItems `json:"itemsRejected" db:"items_rejected"`
	TotalSold       int         `json:"totalSold" db:"total_sold"`
	TotalRejected   int         `json:"totalRejected" db:"total_rejected"`
	// Sales in [PeriodStart, PeriodEnd) are counted; the next close starts at PeriodEnd.
	PeriodStart     time.Time   `json:"periodStart" db:"period_start"`
	PeriodEnd       time.Time   `json:"periodEnd" db:"period_end"`
}

// ProductTotals is one row of an aggregated report summary
type ProductTotals struct {
	ProductName   string   `json:"productName"`
	Category      Category `json:"category,omitempty"`
	Image         string   `json:"image,omitempty"`
	TotalSold     int      `json:"totalSold"`
	TotalRejected int      `json:"totalRejected"`
}

// StockTotals summarizes stock movement over a trailing window
type StockTotals struct {
	TotalStockIn   int `json:"totalStockIn"`
	TotalStockOut  int `json:"totalStockOut"`
	TimeframeHours int `json:"timeframeHours"`
}

func marshalJSONColumn(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalJSONColumn(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
