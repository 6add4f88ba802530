package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/fieldsync/backend/internal/observability/metrics"
)

// Repository persists last-seen stamps. The realtime service owns no other
// user data; everything else about a user lives in the CRUD API.
type Repository interface {
	UpdateLastSeen(ctx context.Context, userIDs []string, seenAt time.Time) error
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) UpdateLastSeen(ctx context.Context, userIDs []string, seenAt time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}

	start := time.Now()
	_, err := r.pool.Exec(
		ctx,
		`UPDATE users SET last_seen_at = $2 WHERE id = ANY($1)`,
		userIDs,
		seenAt,
	)
	metrics.DBQueryDurationSeconds.WithLabelValues("update", "users").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("update", "users", pgErrorType(err)).Inc()
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

// pgErrorType keeps the error_type label bounded: SQLSTATE class for server
// errors, a fixed bucket for everything else.
func pgErrorType(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		return "sqlstate_" + pgErr.Code[:2]
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "exec"
}

// NoopRepository backs the service when no DATABASE_URL is configured.
type NoopRepository struct{}

func NewNoopRepository() *NoopRepository {
	return &NoopRepository{}
}

func (r *NoopRepository) UpdateLastSeen(ctx context.Context, userIDs []string, seenAt time.Time) error {
	return nil
}
