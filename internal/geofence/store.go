// Package geofence evaluates location pings against circular fences and
// reports enter/exit transitions.
package geofence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/fieldsync/backend/internal/observability/metrics"
)

type Geofence struct {
	ID      string
	Name    string
	TeamID  string
	Lat     float64
	Lng     float64
	RadiusM float64
}

type Repository interface {
	ListGeofences(ctx context.Context) ([]Geofence, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) ListGeofences(ctx context.Context) ([]Geofence, error) {
	start := time.Now()
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, name, team_id, latitude, longitude, radius_m FROM geofences`,
	)
	metrics.DBQueryDurationSeconds.WithLabelValues("select", "geofences").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("select", "geofences", "query").Inc()
		return nil, fmt.Errorf("failed to list geofences: %w", err)
	}
	defer rows.Close()

	var fences []Geofence
	for rows.Next() {
		var g Geofence
		if err := rows.Scan(&g.ID, &g.Name, &g.TeamID, &g.Lat, &g.Lng, &g.RadiusM); err != nil {
			return nil, fmt.Errorf("failed to scan geofence: %w", err)
		}
		fences = append(fences, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read geofences: %w", err)
	}

	return fences, nil
}

// Store is the in-memory fence set the evaluator reads. Fences are loaded
// once at startup; updating them means reloading.
type Store struct {
	mu     sync.RWMutex
	byTeam map[string][]Geofence
}

func NewStore() *Store {
	return &Store{
		byTeam: make(map[string][]Geofence),
	}
}

func (s *Store) Replace(fences []Geofence) {
	byTeam := make(map[string][]Geofence)
	for _, g := range fences {
		byTeam[g.TeamID] = append(byTeam[g.TeamID], g)
	}

	s.mu.Lock()
	s.byTeam = byTeam
	s.mu.Unlock()
}

func (s *Store) ForTeam(teamID string) []Geofence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byTeam[teamID]
}

func (s *Store) Load(ctx context.Context, repo Repository) error {
	fences, err := repo.ListGeofences(ctx)
	if err != nil {
		return err
	}
	s.Replace(fences)
	return nil
}
