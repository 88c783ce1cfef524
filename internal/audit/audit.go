// Package audit is an optional durable mirror of trace.DecisionTrace and
// trace.Classification into MySQL via GORM, adapted from the teacher's
// internal/db MySQLRecorder (AssetSnapshotRecord/NewMySQLRecorder/AutoMigrate/
// Create pattern). The in-memory trace.Store remains authoritative for the
// orchestrator's own decision-order logic; this package only gives an
// operator a queryable history that survives a process restart.
package audit

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shadowtick/liquidator/internal/trace"
	"github.com/shadowtick/liquidator/pkg/types"
)

// DecisionTraceRecord is the GORM model backing decision_traces, mirroring
// trace.DecisionTrace with big.Int/struct fields flattened to column types.
type DecisionTraceRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	User           string    `gorm:"index;not null;size:42"`
	Ts             time.Time `gorm:"index;not null"`
	Block          uint64    `gorm:"not null"`
	HeadLagBlocks  int
	HfAtDecision   float64
	HfPrevBlock    float64
	HasHfPrevBlock bool
	Action         string `gorm:"size:16;not null"`
	SkipReason     string `gorm:"size:64"`
	MinDebtUsd     float64
	MinProfitUsd   float64
	MaxSlippagePct float64
	EstDebtUsd     float64
	EstProfitUsd   float64
	HasAttemptMeta bool
	TxHash         string `gorm:"size:66"`
	KeyIndex       int
	GasPriceGwei   float64
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

// TableName pins the table name so it doesn't follow GORM's pluralization of
// a renamed Go type.
func (DecisionTraceRecord) TableName() string { return "decision_traces" }

// MissRecord is the GORM model backing classified_misses, one row per
// observed competitor liquidation MissClassifier ran against.
type MissRecord struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement"`
	User                string    `gorm:"index;not null;size:42"`
	LiquidatorAddr      string    `gorm:"size:42"`
	Block               uint64    `gorm:"not null"`
	Reason              string    `gorm:"size:32;not null"`
	DebtToCoverUsd      float64
	LiquidatedCollateralUsd float64
	CreatedAt           time.Time `gorm:"autoCreateTime"`
}

// TableName pins the table name for MissRecord.
func (MissRecord) TableName() string { return "classified_misses" }

// Recorder persists DecisionTrace/Classification rows to MySQL, mirroring
// the teacher's MySQLRecorder shape (dsn-based constructor, AutoMigrate on
// open, a Close that unwraps the pooled *sql.DB).
type Recorder struct {
	db *gorm.DB
}

// NewRecorder opens a MySQL connection and migrates the audit schema.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewRecorder(dsn string) (*Recorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("audit: connect to mysql: %w", err)
	}
	if err := db.AutoMigrate(&DecisionTraceRecord{}, &MissRecord{}); err != nil {
		return nil, fmt.Errorf("audit: migrate schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// RecordDecision mirrors one DecisionTrace into decision_traces.
func (r *Recorder) RecordDecision(user types.Address, t trace.DecisionTrace) error {
	rec := DecisionTraceRecord{
		User:           string(user),
		Ts:             t.Ts,
		Block:          t.Block,
		HeadLagBlocks:  t.HeadLagBlocks,
		HfAtDecision:   t.HfAtDecision,
		HfPrevBlock:    t.HfPrevBlock,
		HasHfPrevBlock: t.HasHfPrevBlock,
		Action:         string(t.Action),
		SkipReason:     t.SkipReason,
		MinDebtUsd:     t.Thresholds.MinDebtUsd,
		MinProfitUsd:   t.Thresholds.MinProfitUsd,
		MaxSlippagePct: t.Thresholds.MaxSlippagePct,
		EstDebtUsd:     t.EstDebtUsd,
		EstProfitUsd:   t.EstProfitUsd,
		HasAttemptMeta: t.HasAttemptMeta,
	}
	if t.HasAttemptMeta {
		rec.TxHash = t.AttemptMeta.TxHash
		rec.KeyIndex = t.AttemptMeta.KeyIndex
		rec.GasPriceGwei = t.AttemptMeta.GasPriceGwei
	}
	if err := r.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("audit: record decision trace for %s: %w", user, err)
	}
	return nil
}

// RecordMiss mirrors one MissClassifier verdict into classified_misses.
func (r *Recorder) RecordMiss(user types.Address, liquidator types.Address, block uint64, reason trace.ClassifiedReason, debtToCoverUsd, liquidatedCollateralUsd float64) error {
	rec := MissRecord{
		User:                    string(user),
		LiquidatorAddr:          string(liquidator),
		Block:                   block,
		Reason:                  string(reason),
		DebtToCoverUsd:          debtToCoverUsd,
		LiquidatedCollateralUsd: liquidatedCollateralUsd,
	}
	if err := r.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("audit: record miss classification for %s: %w", user, err)
	}
	return nil
}

// RecentDecisions returns the most recent N decision rows for a user,
// newest first.
func (r *Recorder) RecentDecisions(user types.Address, limit int) ([]DecisionTraceRecord, error) {
	var recs []DecisionTraceRecord
	err := r.db.Where("user = ?", string(user)).
		Order("ts DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("audit: recent decisions for %s: %w", user, err)
	}
	return recs, nil
}

// CountMissesByReason aggregates classified_misses for operator reporting.
func (r *Recorder) CountMissesByReason(reason trace.ClassifiedReason) (int64, error) {
	var count int64
	err := r.db.Model(&MissRecord{}).Where("reason = ?", string(reason)).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("audit: count misses for reason %s: %w", reason, err)
	}
	return count, nil
}

// Close releases the underlying connection pool.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("audit: get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
