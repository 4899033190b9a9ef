package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"raffle/internal/models"
)

type participantRow struct {
	Name      string `gorm:"primaryKey;type:text"`
	Entries   int    `gorm:"not null"`
	CreatedAt time.Time
	Imported  bool          `gorm:"not null;default:false"`
	Activity  []activityRow `gorm:"foreignKey:Participant;references:Name;constraint:OnDelete:CASCADE"`
}

func (participantRow) TableName() string { return "participants" }

type activityRow struct {
	ID          string `gorm:"primaryKey;type:text"`
	Participant string `gorm:"index:idx_activity_owner_seq,priority:1;not null"`
	Seq         int    `gorm:"index:idx_activity_owner_seq,priority:2;not null"`
	Label       string `gorm:"type:text;not null"`
	Entries     int    `gorm:"not null"`
	RecordedAt  time.Time
}

func (activityRow) TableName() string { return "activities" }

// Postgres stores the ledger through gorm.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&participantRow{}, &activityRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Load returns every participant with its ordered history.
func (s *Postgres) Load(ctx context.Context) ([]models.Participant, error) {
	var rows []participantRow
	err := s.db.WithContext(ctx).
		Preload("Activity", func(db *gorm.DB) *gorm.DB { return db.Order("seq asc") }).
		Order("name asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

// Save replaces the stored ledger in one transaction.
func (s *Postgres) Save(ctx context.Context, participants []models.Participant) error {
	rows := toRows(participants)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&activityRow{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&participantRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// Close closes the underlying connection pool.
func (s *Postgres) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRows(participants []models.Participant) []participantRow {
	rows := make([]participantRow, 0, len(participants))
	for _, p := range participants {
		r := participantRow{
			Name:      p.Name,
			Entries:   p.Entries,
			CreatedAt: p.CreatedAt,
			Imported:  p.Imported,
			Activity:  make([]activityRow, 0, len(p.Activities)),
		}
		for seq, a := range p.Activities {
			r.Activity = append(r.Activity, activityRow{
				ID:          a.ID,
				Participant: p.Name,
				Seq:         seq,
				Label:       a.Label,
				Entries:     a.EntryCount,
				RecordedAt:  a.RecordedAt,
			})
		}
		rows = append(rows, r)
	}
	return rows
}

func fromRows(rows []participantRow) []models.Participant {
	out := make([]models.Participant, 0, len(rows))
	for _, r := range rows {
		p := models.Participant{
			Name:       r.Name,
			Entries:    r.Entries,
			CreatedAt:  r.CreatedAt,
			Imported:   r.Imported,
			Activities: make([]models.Activity, 0, len(r.Activity)),
		}
		for _, a := range r.Activity {
			p.Activities = append(p.Activities, models.Activity{
				ID:         a.ID,
				Label:      a.Label,
				EntryCount: a.Entries,
				RecordedAt: a.RecordedAt,
			})
		}
		out = append(out, p)
	}
	return out
}
