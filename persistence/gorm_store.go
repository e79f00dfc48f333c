// persistence/gorm_store.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wfunc/arenaledger/models"
)

// GormStore 使用GORM的持久化实现, PostgreSQL in production and SQLite for
// development and tests.
type GormStore struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname, sslmode string) (*GormStore, error) {
	if sslmode == "" {
		sslmode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
	return open(postgres.Open(dsn), 100)
}

// NewGormSQLite opens a SQLite database. SQLite serialises writers, so the
// pool is limited to one connection.
func NewGormSQLite(path string) (*GormStore, error) {
	return open(sqlite.Open(path), 1)
}

func open(dialector gorm.Dialector, maxOpen int) (*GormStore, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(min(10, maxOpen))
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &GormStore{db: db}, nil
}

// Commit writes the changeset, then runs interact, in one transaction.
func (s *GormStore) Commit(ctx context.Context, cs *models.Changeset, interact func(ctx context.Context) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := writeChangeset(tx, cs); err != nil {
			return fmt.Errorf("persist %s: %w", cs.Operation, err)
		}
		return interact(ctx)
	})
}

func upsert(tx *gorm.DB, row interface{}) error {
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

func writeChangeset(tx *gorm.DB, cs *models.Changeset) error {
	if cs.Settings != nil {
		if err := upsert(tx, settingsRow(cs.Settings)); err != nil {
			return err
		}
	}
	for _, g := range cs.Games {
		if err := upsert(tx, gameRow(g)); err != nil {
			return err
		}
	}
	for _, r := range cs.GamePlayers {
		if err := upsert(tx, gamePlayerRow(r)); err != nil {
			return err
		}
	}
	for _, sess := range cs.Sessions {
		if err := upsert(tx, sessionRow(sess)); err != nil {
			return err
		}
	}
	for _, t := range cs.Tournaments {
		if err := upsert(tx, tournamentRow(t)); err != nil {
			return err
		}
	}
	for _, p := range cs.Players {
		if err := upsert(tx, playerRow(p)); err != nil {
			return err
		}
	}
	for _, a := range cs.Achievements {
		if err := upsert(tx, achievementRow(a)); err != nil {
			return err
		}
	}
	for _, n := range cs.Nonces {
		// consumed nonces are append-only; a duplicate is a bug upstream
		if err := tx.Create(&NonceRow{Nonce: n.String()}).Error; err != nil {
			return fmt.Errorf("nonce %s: %w", n, err)
		}
	}
	for addr, authorized := range cs.Validators {
		if err := upsert(tx, &ValidatorRow{Address: addr.String(), Authorized: authorized}); err != nil {
			return err
		}
	}
	if cs.Empty() {
		return nil
	}
	return tx.Create(&OperationRecord{Operation: cs.Operation, Entities: entityCount(cs)}).Error
}

// LoadSnapshot reads the whole persisted state.
func (s *GormStore) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	db := s.db.WithContext(ctx)
	snap := &models.Snapshot{}

	var settings SettingsRow
	err := db.First(&settings, settingsRowID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, err
	default:
		if snap.Settings, err = settings.model(); err != nil {
			return nil, err
		}
	}

	var games []GameRow
	if err := db.Order("id").Find(&games).Error; err != nil {
		return nil, err
	}
	for i := range games {
		g, err := games[i].model()
		if err != nil {
			return nil, err
		}
		snap.Games = append(snap.Games, g)
	}

	var gamePlayers []GamePlayerRow
	if err := db.Find(&gamePlayers).Error; err != nil {
		return nil, err
	}
	for i := range gamePlayers {
		r, err := gamePlayers[i].model()
		if err != nil {
			return nil, err
		}
		snap.GamePlayers = append(snap.GamePlayers, r)
	}

	var sessions []SessionRow
	if err := db.Order("id").Find(&sessions).Error; err != nil {
		return nil, err
	}
	for i := range sessions {
		sess, err := sessions[i].model()
		if err != nil {
			return nil, err
		}
		snap.Sessions = append(snap.Sessions, sess)
	}

	var tournaments []TournamentRow
	if err := db.Order("id").Find(&tournaments).Error; err != nil {
		return nil, err
	}
	for i := range tournaments {
		t, err := tournaments[i].model()
		if err != nil {
			return nil, err
		}
		snap.Tournaments = append(snap.Tournaments, t)
	}

	var players []PlayerRow
	if err := db.Find(&players).Error; err != nil {
		return nil, err
	}
	for i := range players {
		p, err := players[i].model()
		if err != nil {
			return nil, err
		}
		snap.Players = append(snap.Players, p)
	}

	var achievements []AchievementRow
	if err := db.Order("id").Find(&achievements).Error; err != nil {
		return nil, err
	}
	for i := range achievements {
		snap.Achievements = append(snap.Achievements, achievements[i].model())
	}

	var nonces []NonceRow
	if err := db.Find(&nonces).Error; err != nil {
		return nil, err
	}
	for _, r := range nonces {
		n, err := models.ParseNonce(r.Nonce)
		if err != nil {
			return nil, err
		}
		snap.Nonces = append(snap.Nonces, n)
	}

	var validators []ValidatorRow
	if err := db.Where("authorized = ?", true).Find(&validators).Error; err != nil {
		return nil, err
	}
	for _, r := range validators {
		a, err := models.ParseAddress(r.Address)
		if err != nil {
			return nil, err
		}
		snap.Validators = append(snap.Validators, a)
	}

	return snap, nil
}

// SessionHistory returns a player's sessions, newest first.
func (s *GormStore) SessionHistory(ctx context.Context, player models.Address, limit int) ([]*models.GameSession, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []SessionRow
	err := s.db.WithContext(ctx).
		Where("player = ?", player.String()).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.GameSession, 0, len(rows))
	for i := range rows {
		sess, err := rows[i].model()
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// Session loads one persisted session.
func (s *GormStore) Session(ctx context.Context, id uint64) (*models.GameSession, error) {
	var row SessionRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return row.model()
}

// RecentOperations returns the audit trail, newest first.
func (s *GormStore) RecentOperations(ctx context.Context, limit int) ([]OperationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []OperationRecord
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Close 关闭数据库连接
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Database = (*GormStore)(nil)
