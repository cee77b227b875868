package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsql/workbench/pkg/engine"
	"github.com/streamsql/workbench/pkg/errors"
	"github.com/streamsql/workbench/pkg/infrastructure/metrics"
	"github.com/streamsql/workbench/pkg/models"
)

// Executor runs one SQL statement to its terminal state. The execution engine
// satisfies this; metadata queries go through the same statement path as user
// queries because the gateway's dedicated metadata endpoints are inconsistent
// across versions.
type Executor interface {
	ExecuteStatement(ctx context.Context, statement string, publish engine.Publisher) engine.Outcome
}

// Relation is a table or view in a database.
type Relation struct {
	Name string
	Kind string // "table" or "view"
}

// ColumnInfo describes one column of a relation.
type ColumnInfo struct {
	Name string
	Type string
}

// Service performs metadata lookups with caching and in-flight de-duplication.
type Service struct {
	executor Executor
	cache    *Cache
	logger   zerolog.Logger
}

// NewService creates a metadata service. ttl of zero means DefaultTTL.
func NewService(executor Executor, ttl time.Duration, logger zerolog.Logger, collector metrics.Collector) *Service {
	return &Service{
		executor: executor,
		cache:    NewCache(ttl, collector),
		logger:   logger.With().Str("component", "metadata").Logger(),
	}
}

// Refresh drops all cached metadata. Wired to the engine's metadata-changed
// notification so DDL statements invalidate dependent lookups.
func (s *Service) Refresh() {
	s.logger.Debug().Msg("metadata cache cleared")
	s.cache.Clear()
}

// Catalogs lists catalog names.
func (s *Service) Catalogs(ctx context.Context) ([]string, error) {
	return s.cachedStrings(ctx, "catalogs", "SHOW CATALOGS")
}

// Databases lists database names in a catalog.
func (s *Service) Databases(ctx context.Context, catalog string) ([]string, error) {
	key := "dbs:" + catalog
	statement := fmt.Sprintf("SHOW DATABASES IN `%s`", catalog)
	return s.cachedStrings(ctx, key, statement)
}

// Relations lists tables and views in a database.
func (s *Service) Relations(ctx context.Context, catalog, database string) ([]Relation, error) {
	key := fmt.Sprintf("tables:%s.%s", catalog, database)
	value, err := s.cache.GetOrFetch(ctx, key, func(ctx context.Context) (interface{}, error) {
		if err := s.UseCatalog(ctx, catalog); err != nil {
			return nil, err
		}
		if err := s.UseDatabase(ctx, database); err != nil {
			return nil, err
		}

		tables, err := s.query(ctx, "SHOW TABLES")
		if err != nil {
			return nil, err
		}
		views, err := s.query(ctx, "SHOW VIEWS")
		if err != nil {
			return nil, err
		}

		viewNames := make(map[string]bool, len(views))
		relations := make([]Relation, 0, len(tables)+len(views))
		for _, row := range views {
			name := firstString(row)
			viewNames[name] = true
			relations = append(relations, Relation{Name: name, Kind: "view"})
		}
		for _, row := range tables {
			name := firstString(row)
			// SHOW TABLES includes views on some gateway versions.
			if !viewNames[name] {
				relations = append(relations, Relation{Name: name, Kind: "table"})
			}
		}
		return relations, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Relation), nil
}

// Columns describes the columns of a relation reference (catalog.db.table or
// any prefix the session context resolves).
func (s *Service) Columns(ctx context.Context, ref string) ([]ColumnInfo, error) {
	key := "columns:" + ref
	value, err := s.cache.GetOrFetch(ctx, key, func(ctx context.Context) (interface{}, error) {
		rows, err := s.query(ctx, "DESCRIBE "+ref)
		if err != nil {
			return nil, err
		}
		columns := make([]ColumnInfo, 0, len(rows))
		for _, row := range rows {
			col := ColumnInfo{Name: firstString(row)}
			if len(row) > 1 {
				col.Type = fmt.Sprint(row[1])
			}
			columns = append(columns, col)
		}
		return columns, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]ColumnInfo), nil
}

// ShowCreate returns the DDL of a table or view. Not cached: it is a
// one-shot, user-triggered lookup.
func (s *Service) ShowCreate(ctx context.Context, kind, ref string) (string, error) {
	rows, err := s.query(ctx, fmt.Sprintf("SHOW CREATE %s %s", kind, ref))
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", errors.Newf(errors.CodeNotFound, "no DDL returned for %s", ref)
	}
	return firstString(rows[0]), nil
}

// UseCatalog switches the session's current catalog.
func (s *Service) UseCatalog(ctx context.Context, catalog string) error {
	_, err := s.query(ctx, fmt.Sprintf("USE CATALOG `%s`", catalog))
	return err
}

// UseDatabase switches the session's current database.
func (s *Service) UseDatabase(ctx context.Context, database string) error {
	_, err := s.query(ctx, fmt.Sprintf("USE `%s`", database))
	return err
}

func (s *Service) cachedStrings(ctx context.Context, key, statement string) ([]string, error) {
	value, err := s.cache.GetOrFetch(ctx, key, func(ctx context.Context) (interface{}, error) {
		rows, err := s.query(ctx, statement)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(rows))
		for _, row := range rows {
			names = append(names, firstString(row))
		}
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]string), nil
}

// query runs one statement and collects its final buffer, de-duplicating rows
// by full-row equality. De-duplication happens only on this metadata path;
// retried page fetches may legitimately repeat data rows elsewhere.
func (s *Service) query(ctx context.Context, statement string) ([]models.Row, error) {
	var final models.ResultSnapshot
	outcome := s.executor.ExecuteStatement(ctx, statement, func(snapshot models.ResultSnapshot) {
		final = snapshot
	})
	switch outcome.State {
	case engine.StateFinished:
		return dedupeRows(final.Rows), nil
	case engine.StateCanceled:
		return nil, errors.ErrCanceled
	default:
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		return nil, errors.Newf(errors.CodeStatementFailed, "metadata query failed: %s", statement)
	}
}

// dedupeRows removes duplicate rows, keeping first-occurrence order.
func dedupeRows(rows []models.Row) []models.Row {
	seen := make(map[string]bool, len(rows))
	out := make([]models.Row, 0, len(rows))
	for _, row := range rows {
		key := fmt.Sprint([]interface{}(row))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}

func firstString(row models.Row) string {
	if len(row) == 0 || row[0] == nil {
		return ""
	}
	if s, ok := row[0].(string); ok {
		return s
	}
	return fmt.Sprint(row[0])
}
