// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/arenaledger/models"
)

// Database 数据库接口
type Database interface {
	// Commit writes cs and runs interact inside one transaction. If interact
	// fails nothing is written.
	Commit(ctx context.Context, cs *models.Changeset, interact func(ctx context.Context) error) error
	LoadSnapshot(ctx context.Context) (*models.Snapshot, error)
	SessionHistory(ctx context.Context, player models.Address, limit int) ([]*models.GameSession, error)
	RecentOperations(ctx context.Context, limit int) ([]OperationRecord, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
)
