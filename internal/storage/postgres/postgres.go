// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogger реализует интерфейс logger.Interface для GORM
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

// newGormLogger создает новый логгер для GORM
func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

// LogMode реализация интерфейса logger.Interface
func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

// Info реализация интерфейса logger.Interface
func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

// Warn реализация интерфейса logger.Interface
func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

// Error реализация интерфейса logger.Interface
func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

// Trace реализация интерфейса logger.Interface
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	// отсутствие строки и конфликт уникальности - ожидаемые исходы, не ошибки
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, gorm.ErrDuplicatedKey) {
		l.zapLogger.Error("Query failed", append(fields, zap.Error(err))...)
		return
	}

	switch {
	case elapsed > slowQueryThreshold && l.logLevel >= logger.Warn:
		l.zapLogger.Warn("Slow query", fields...)
	case l.logLevel >= logger.Info:
		l.zapLogger.Debug("Query", fields...)
	}
}

// Store реализует storage.Store поверх postgres.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStorage открывает соединение и настраивает пул.
func NewStorage(dsn string, zapLogger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Store{db: db, logger: zapLogger.Named("postgres")}, nil
}

// RunMigrations выполняет AutoMigrate под advisory lock, чтобы параллельные
// инстансы не мигрировали одновременно.
func (s *Store) RunMigrations(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	var lockObtained bool
	if err := db.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error; err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer db.Exec("SELECT pg_advisory_unlock(?)", migrationLockID)

	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	s.logger.Info("Migrations applied")
	return nil
}

const migrationLockID = 7301

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// mapError переводит ошибки gorm в ошибки хранилища.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return storage.ErrDuplicateKey
	default:
		return err
	}
}

func (s *Store) CreatePool(ctx context.Context, pool *domain.Pool) error {
	if pool == nil || pool.Mint == "" {
		return domain.Invalidf("pool mint is required")
	}
	m := models.PoolFromDomain(pool)
	if m.Status == "" {
		m.Status = string(domain.StatusBonding)
	}
	return mapError(s.db.WithContext(ctx).Create(m).Error)
}

func (s *Store) GetPool(ctx context.Context, mint string) (*domain.Pool, error) {
	var m models.Pool
	if err := s.db.WithContext(ctx).Where("mint = ?", mint).First(&m).Error; err != nil {
		return nil, mapError(err)
	}
	return m.ToDomain(), nil
}

func (s *Store) GetPoolByAddress(ctx context.Context, address string) (*domain.Pool, error) {
	var m models.Pool
	if err := s.db.WithContext(ctx).Where("address = ?", address).First(&m).Error; err != nil {
		return nil, mapError(err)
	}
	return m.ToDomain(), nil
}

func (s *Store) ListPoolsByStatus(ctx context.Context, status domain.PoolStatus, limit int) ([]*domain.Pool, error) {
	var rows []*models.Pool
	q := s.db.WithContext(ctx).Where("status = ?", string(status)).Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Pool, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToDomain())
	}
	return out, nil
}

// TransitionStatus: UPDATE ... WHERE status = from. Ноль строк - кто-то успел раньше.
func (s *Store) ListGraduationCandidates(ctx context.Context, limit int) ([]*domain.Pool, error) {
	var rows []*models.Pool
	q := s.db.WithContext(ctx).
		Where("status = ? AND graduation_threshold_sol > 0 AND real_sol_reserves >= graduation_threshold_sol",
			string(domain.StatusBonding)).
		Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Pool, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToDomain())
	}
	return out, nil
}

func (s *Store) TransitionStatus(ctx context.Context, change domain.StatusChange) error {
	if err := domain.ValidateTransition(change.From, change.To); err != nil {
		return err
	}
	at := change.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	updates := map[string]interface{}{
		"status":     string(change.To),
		"version":    gorm.Expr("version + 1"),
		"updated_at": at,
	}
	switch change.To {
	case domain.StatusGraduated:
		updates["graduated_at"] = at
	case domain.StatusMigrated:
		updates["migrated_at"] = at
		updates["migrated_pool_address"] = change.MigratedPoolAddress
	}

	res := s.db.WithContext(ctx).Model(&models.Pool{}).
		Where("mint = ? AND status = ?", change.Mint, string(change.From)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetPool(ctx, change.Mint); err != nil {
			return err
		}
		return storage.ErrConflict
	}
	return nil
}

func (s *Store) SaveAPIKey(ctx context.Context, key *domain.APIKey) error {
	if key == nil || key.KeyHash == "" {
		return domain.Invalidf("api key hash is required")
	}
	m := &models.APIKey{
		KeyHash:            key.KeyHash,
		Name:               key.Name,
		Active:             key.Active,
		RateLimitPerMinute: key.RateLimitPerMinute,
		CreatedAt:          key.CreatedAt,
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return mapError(s.db.WithContext(ctx).Create(m).Error)
}

func (s *Store) FindAPIKey(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	var m models.APIKey
	if err := s.db.WithContext(ctx).Where("key_hash = ?", keyHash).First(&m).Error; err != nil {
		return nil, mapError(err)
	}
	return &domain.APIKey{
		KeyHash:            m.KeyHash,
		Name:               m.Name,
		Active:             m.Active,
		RateLimitPerMinute: m.RateLimitPerMinute,
		CreatedAt:          m.CreatedAt,
	}, nil
}
