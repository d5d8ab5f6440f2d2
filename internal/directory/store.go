package directory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/hackathon-judging/internal/config"
	"github.com/DoyleJ11/hackathon-judging/internal/planner"
)

type teamRow struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"uniqueIndex;size:100;not null"`
	MediumPref   string
	TextChannel  string
	VoiceChannel string
	Role         string
	Tracks       []trackRow  `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE"`
	Members      []memberRow `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time
}

func (teamRow) TableName() string { return "teams" }

type trackRow struct {
	ID       uint   `gorm:"primaryKey"`
	TeamID   uint   `gorm:"index;not null"`
	TrackID  string `gorm:"not null"`
	Position int
}

func (trackRow) TableName() string { return "team_tracks" }

type memberRow struct {
	ID     uint   `gorm:"primaryKey"`
	TeamID uint   `gorm:"index;not null"`
	UserID string `gorm:"uniqueIndex;not null"`
}

func (memberRow) TableName() string { return "team_members" }

// Open connects to postgres through gorm's pgx-backed driver.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("directory: open database: %w", err)
	}
	return db, nil
}

// Store is the postgres-backed Directory.
type Store struct {
	db     *gorm.DB
	locked atomic.Bool
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&teamRow{}, &trackRow{}, &memberRow{}); err != nil {
		return nil, fmt.Errorf("directory: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateTeam(ctx context.Context, t Team) error {
	if err := validateTeam(t); err != nil {
		return err
	}
	if len(t.Tracks) > 0 && s.locked.Load() {
		return ErrTracksLocked
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&teamRow{}).Where("name = ?", t.Name).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrTeamExists, t.Name)
		}

		row := teamRow{
			Name:         t.Name,
			MediumPref:   string(t.MediumPref),
			TextChannel:  t.TextChannel,
			VoiceChannel: t.VoiceChannel,
			Role:         t.Role,
		}
		for i, id := range dedupe(t.Tracks) {
			row.Tracks = append(row.Tracks, trackRow{TrackID: id, Position: i})
		}
		for _, m := range dedupe(t.Members) {
			if err := memberFree(tx, m); err != nil {
				return err
			}
			row.Members = append(row.Members, memberRow{UserID: m})
		}
		return tx.Create(&row).Error
	})
}

func (s *Store) AddMember(ctx context.Context, team, member string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := findTeam(tx, team)
		if err != nil {
			return err
		}
		if err := memberFree(tx, member); err != nil {
			return err
		}
		return tx.Create(&memberRow{TeamID: row.ID, UserID: member}).Error
	})
}

func (s *Store) RemoveMember(ctx context.Context, team, member string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := findTeam(tx, team)
		if err != nil {
			return err
		}
		res := tx.Where("team_id = ? AND user_id = ?", row.ID, member).Delete(&memberRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrMemberNotFound, member)
		}
		return nil
	})
}

func (s *Store) SetTracks(ctx context.Context, team string, tracks []string) error {
	if s.locked.Load() {
		return ErrTracksLocked
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := findTeam(tx, team)
		if err != nil {
			return err
		}
		if err := tx.Where("team_id = ?", row.ID).Delete(&trackRow{}).Error; err != nil {
			return err
		}
		for i, id := range dedupe(tracks) {
			if err := tx.Create(&trackRow{TeamID: row.ID, TrackID: id, Position: i}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) LockTracks() { s.locked.Store(true) }

func (s *Store) TeamExists(ctx context.Context, name string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&teamRow{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return false, fmt.Errorf("directory: team exists: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListTeamsWithTracks(ctx context.Context) ([]planner.Entry, error) {
	teams, err := s.Teams(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]planner.Entry, 0, len(teams))
	for _, t := range teams {
		out = append(out, planner.Entry{Team: t.Name, Tracks: t.Tracks, Medium: t.MediumPref})
	}
	return out, nil
}

func (s *Store) Resolve(ctx context.Context, name string) (Artifacts, error) {
	row, err := findTeam(s.db.WithContext(ctx), name)
	if errors.Is(err, ErrTeamNotFound) {
		return Artifacts{}, fmt.Errorf("%w: no team %s", ErrNotFound, name)
	}
	if err != nil {
		return Artifacts{}, err
	}
	return artifactsOf(row.toTeam())
}

func (s *Store) Teams(ctx context.Context) ([]Team, error) {
	var rows []teamRow
	err := s.db.WithContext(ctx).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("directory: list teams: %w", err)
	}
	out := make([]Team, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTeam())
	}
	return out, nil
}

func (r teamRow) toTeam() Team {
	t := Team{
		Name:         r.Name,
		MediumPref:   config.Medium(r.MediumPref),
		TextChannel:  r.TextChannel,
		VoiceChannel: r.VoiceChannel,
		Role:         r.Role,
		Tracks:       []string{},
		Members:      []string{},
	}
	for _, tr := range r.Tracks {
		t.Tracks = append(t.Tracks, tr.TrackID)
	}
	for _, m := range r.Members {
		t.Members = append(t.Members, m.UserID)
	}
	return t
}

func findTeam(tx *gorm.DB, name string) (teamRow, error) {
	var row teamRow
	err := tx.Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return teamRow{}, fmt.Errorf("%w: %s", ErrTeamNotFound, name)
	}
	return row, err
}

func memberFree(tx *gorm.DB, member string) error {
	var existing memberRow
	err := tx.Where("user_id = ?", member).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrMemberTaken, member)
}
