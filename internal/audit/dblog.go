package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type auditRow struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	Operator     string
	Op           string `gorm:"index"`
	Room         string `gorm:"index"`
	Team         string
	BeforeCursor int
	AfterCursor  int
	BeforeTeam   string
	AfterTeam    string
	Summary      string
	RoomSnapshot string
	Queue        string `gorm:"type:jsonb"`
}

func (auditRow) TableName() string { return "audit_records" }

// DBLog inserts records into the audit_records table. Rows are never
// updated or deleted.
type DBLog struct {
	db *gorm.DB
}

func NewDBLog(db *gorm.DB) (*DBLog, error) {
	if err := db.AutoMigrate(&auditRow{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &DBLog{db: db}, nil
}

func (l *DBLog) Write(ctx context.Context, rec Record) error {
	queue, err := json.Marshal(rec.Queue)
	if err != nil {
		return err
	}
	row := auditRow{
		CreatedAt:    rec.Time,
		Operator:     rec.Operator,
		Op:           string(rec.Op),
		Room:         rec.Room,
		Team:         rec.Team,
		BeforeCursor: rec.BeforeCursor,
		AfterCursor:  rec.AfterCursor,
		BeforeTeam:   rec.BeforeTeam,
		AfterTeam:    rec.AfterTeam,
		Summary:      rec.Summary,
		RoomSnapshot: rec.RoomSnapshot,
		Queue:        string(queue),
	}
	return l.db.WithContext(ctx).Create(&row).Error
}
