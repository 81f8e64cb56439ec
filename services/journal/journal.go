package journal

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"gmboard/core/events"
	"gmboard/core/types"
	"gmboard/crypto"
)

// ErrDSNRequired is returned by Open when no DSN is configured.
var ErrDSNRequired = errors.New("journal: dsn required")

// DefaultAppendTimeout bounds a single Emit write.
const DefaultAppendTimeout = 5 * time.Second

// Journal persists leaderboard events for history queries. It implements
// events.Emitter.
type Journal struct {
	db            *gorm.DB
	logger        *slog.Logger
	now           func() time.Time
	appendTimeout time.Duration
}

// Dialector picks the gorm driver for dsn. postgres:// URLs and key=value
// strings containing host= use Postgres; everything else is SQLite.
func Dialector(dsn string) gorm.Dialector {
	trimmed := strings.TrimSpace(dsn)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") || strings.Contains(lower, "host=") {
		return postgres.Open(trimmed)
	}
	return sqlite.Open(trimmed)
}

// Open connects to dsn and migrates the schema.
func Open(dsn string, log *slog.Logger) (*Journal, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrDSNRequired
	}
	db, err := gorm.Open(Dialector(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return New(db, log), nil
}

// New wraps an already migrated database handle.
func New(db *gorm.DB, log *slog.Logger) *Journal {
	if log == nil {
		log = slog.Default()
	}
	return &Journal{db: db, logger: log, now: time.Now, appendTimeout: DefaultAppendTimeout}
}

// Emit implements events.Emitter. Events that cannot be rendered are skipped.
// Writes are bounded by the append timeout; failures are logged since emitters
// cannot fail the mutation.
func (j *Journal) Emit(evt events.Event) {
	if j == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), j.appendTimeout)
	defer cancel()
	if err := j.Append(ctx, evt); err != nil {
		j.logger.Error("journal append failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Append stores evt.
func (j *Journal) Append(ctx context.Context, evt events.Event) error {
	canonical := events.Canonical(evt)
	if canonical == nil {
		return nil
	}
	record, err := j.recordFor(canonical)
	if err != nil {
		return err
	}
	return j.db.WithContext(ctx).Create(&record).Error
}

func (j *Journal) recordFor(evt *types.Event) (Record, error) {
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return Record{}, fmt.Errorf("journal: encode attributes: %w", err)
	}
	id := uuid.New()
	return Record{
		ID:         id,
		Type:       evt.Type,
		Wallet:     evt.Attributes["wallet"],
		Caller:     firstNonEmpty(evt.Attributes["caller"], evt.Attributes["admin"]),
		Score:      evt.Attributes["score"],
		Outcome:    evt.Attributes["outcome"],
		Attributes: string(attrs),
		Digest:     Digest(id, evt),
		CreatedAt:  j.now().UTC(),
	}, nil
}

// Digest is the blake3 hash of the record ID, event type and sorted
// attributes. It lets exported history be checked for tampering.
func Digest(id uuid.UUID, evt *types.Event) string {
	keys := make([]string, 0, len(evt.Attributes))
	for key := range evt.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	hasher := blake3.New(32, nil)
	hasher.Write(id[:])
	hasher.Write([]byte(evt.Type))
	for _, key := range keys {
		hasher.Write([]byte{0})
		hasher.Write([]byte(key))
		hasher.Write([]byte{'='})
		hasher.Write([]byte(evt.Attributes[key]))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Verify recomputes the digest for r.
func (r Record) Verify() (bool, error) {
	var attrs map[string]string
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return false, err
	}
	return Digest(r.ID, &types.Event{Type: r.Type, Attributes: attrs}) == r.Digest, nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	var out []Record
	err := j.db.WithContext(ctx).Order("created_at DESC").Limit(clampLimit(limit)).Find(&out).Error
	return out, err
}

// ByWallet returns up to limit records for wallet, newest first.
func (j *Journal) ByWallet(ctx context.Context, wallet [20]byte, limit int) ([]Record, error) {
	var out []Record
	err := j.db.WithContext(ctx).
		Where("wallet = ?", crypto.WalletAddress(wallet).String()).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&out).Error
	return out, err
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

const maxHistoryLimit = 1000

func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
