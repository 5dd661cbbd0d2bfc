package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"fwblock/internal/domain"
)

const blockRecordInsertBatchSize = 500

// BlockRecordRow is the stored form of a domain.BlockRecord. Position keeps
// the list order across saves.
type BlockRecordRow struct {
	ID        uint       `gorm:"primaryKey"`
	Position  int        `gorm:"not null;index"`
	Address   string     `gorm:"size:18;not null;index"`
	PortScope string     `gorm:"size:64;not null;default:''"`
	DtAdded   time.Time  `gorm:"not null"`
	Days      *int       `gorm:""`
	Country   string     `gorm:"size:64"`
	Org       string     `gorm:"size:255"`
	Reason    string     `gorm:"size:255"`
	Status    string     `gorm:"size:16;not null;default:''"`
	DtExpired *time.Time `gorm:""`
}

func (BlockRecordRow) TableName() string {
	return "block_records"
}

// Store persists the block list in one table.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Load returns every record in list order.
func (s *Store) Load(ctx context.Context) ([]domain.BlockRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("database not initialised")
	}

	var rows []BlockRecordRow
	if err := s.db.WithContext(ctx).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]domain.BlockRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

// Save replaces the stored list with records inside one transaction.
func (s *Store) Save(ctx context.Context, records []domain.BlockRecord) error {
	if s == nil || s.db == nil {
		return errors.New("database not initialised")
	}

	rows := make([]BlockRecordRow, 0, len(records))
	for i, rec := range records {
		rows = append(rows, rowFromRecord(i, rec))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&BlockRecordRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, blockRecordInsertBatchSize).Error
	})
}

func rowFromRecord(position int, rec domain.BlockRecord) BlockRecordRow {
	row := BlockRecordRow{
		Position:  position,
		Address:   rec.Address,
		PortScope: rec.PortScope,
		DtAdded:   rec.DtAdded.UTC(),
		Country:   rec.Country,
		Org:       rec.Org,
		Reason:    rec.Reason,
		Status:    string(rec.Status),
	}
	if rec.Days != nil {
		days := *rec.Days
		row.Days = &days
	}
	if rec.DtExpired != nil {
		at := rec.DtExpired.UTC()
		row.DtExpired = &at
	}
	return row
}

func (row BlockRecordRow) toRecord() domain.BlockRecord {
	rec := domain.BlockRecord{
		Address:   row.Address,
		PortScope: row.PortScope,
		DtAdded:   row.DtAdded.UTC(),
		Days:      row.Days,
		Country:   row.Country,
		Org:       row.Org,
		Reason:    row.Reason,
		Status:    domain.Status(row.Status),
	}
	if row.DtExpired != nil {
		at := row.DtExpired.UTC()
		rec.DtExpired = &at
	}
	return rec
}
