// Package postgres stores vector indexes as pgvector tables.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/pkg/log"
	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/remote"
)

const (
	catalogTable = "vectorstore_indexes"
	tablePrefix  = "vs_"
	maxIdentLen  = 63
)

var _ vector.Store = (*Store)(nil)

// indexOptions tune the ANN index built on the embedding column.
type indexOptions struct {
	IndexType      string `mapstructure:"index_type"` // hnsw, ivfflat 或 none
	M              int    `mapstructure:"m"`
	EfConstruction int    `mapstructure:"ef_construction"`
	Lists          int    `mapstructure:"lists"`
}

type indexMeta struct {
	dimension int
	metric    vector.Metric
	options   vector.Metadata
	createdAt time.Time
	updatedAt time.Time
}

// Store implements vector.Store on PostgreSQL with the pgvector extension.
type Store struct {
	pool   *pgxpool.Pool
	config Config
	exec   *remote.Executor
	logger *slog.Logger

	mu    sync.RWMutex
	metas map[string]*indexMeta
}

// New connects and ensures the catalog table exists. cfg must be validated.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, vector.InvalidConfig("parse postgres dsn: %v", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxParallel)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout.Duration)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, mapError("", errors.WithMessage(err, "create pgx pool"))
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, mapError("", errors.WithMessage(err, "ping postgres"))
	}

	s := &Store{
		pool:   pool,
		config: cfg,
		exec:   remote.NewExecutor("postgres", cfg.Config),
		logger: log.Logger("postgres"),
		metas:  make(map[string]*indexMeta),
	}
	if err := s.ensureSchema(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) catalog() string {
	return pgx.Identifier{s.config.Schema, catalogTable}.Sanitize()
}

func (s *Store) table(index string) string {
	return pgx.Identifier{s.config.Schema, tablePrefix + index}.Sanitize()
}

// ensureSchema creates the pgvector extension and the index catalog.
func (s *Store) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS %s (
    name        TEXT        PRIMARY KEY,
    dimension   INTEGER     NOT NULL,
    metric      TEXT        NOT NULL,
    options     JSONB       NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`, s.catalog())
	_, err := s.pool.Exec(ctx, ddl)
	return mapError("", errors.WithMessage(err, "ensure schema"))
}

func distanceOp(m vector.Metric) string {
	switch m {
	case vector.Euclidean:
		return "<->"
	case vector.DotProduct:
		return "<#>"
	default:
		return "<=>"
	}
}

func opsClass(m vector.Metric) string {
	switch m {
	case vector.Euclidean:
		return "vector_l2_ops"
	case vector.DotProduct:
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}

func (s *Store) annIndexDDL(cfg vector.IndexConfig, opts indexOptions) string {
	table := s.table(cfg.Name)
	switch opts.IndexType {
	case "none":
		return ""
	case "ivfflat":
		lists := opts.Lists
		if lists <= 0 {
			lists = 100
		}
		return fmt.Sprintf("CREATE INDEX ON %s USING ivfflat (embedding %s) WITH (lists = %d)", table, opsClass(cfg.Metric), lists)
	default:
		m, ef := opts.M, opts.EfConstruction
		if m <= 0 {
			m = 16
		}
		if ef <= 0 {
			ef = 64
		}
		return fmt.Sprintf("CREATE INDEX ON %s USING hnsw (embedding %s) WITH (m = %d, ef_construction = %d)", table, opsClass(cfg.Metric), m, ef)
	}
}

func (s *Store) CreateIndex(ctx context.Context, cfg vector.IndexConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(tablePrefix+cfg.Name) > maxIdentLen {
		return vector.InvalidConfig("index name %q is longer than %d bytes", cfg.Name, maxIdentLen-len(tablePrefix))
	}
	var opts indexOptions
	if err := vector.DecodeOptions(cfg.Options, &opts); err != nil {
		return err
	}
	options, err := json.Marshal(cfg.Options)
	if err != nil {
		return vector.SerializationFailed(cfg.Name, "", err)
	}
	if cfg.Options == nil {
		options = []byte("{}")
	}

	err = s.exec.Do(ctx, "create_index", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx,
				`INSERT INTO `+s.catalog()+` (name, dimension, metric, options) VALUES ($1, $2, $3, $4::jsonb) ON CONFLICT (name) DO NOTHING`,
				cfg.Name, cfg.Dimension, string(cfg.Metric), string(options))
			if err != nil {
				return mapError(cfg.Name, err)
			}
			if tag.RowsAffected() == 0 {
				return vector.IndexAlreadyExists(cfg.Name)
			}

			ddl := fmt.Sprintf(`CREATE TABLE %s (
    id         TEXT      PRIMARY KEY,
    content    TEXT      NOT NULL DEFAULT '',
    embedding  vector(%d) NOT NULL,
    metadata   JSONB     NOT NULL DEFAULT '{}',
    seq        BIGSERIAL
)`, s.table(cfg.Name), cfg.Dimension)
			if _, err := tx.Exec(ctx, ddl); err != nil {
				return mapError(cfg.Name, err)
			}
			if ann := s.annIndexDDL(cfg, opts); ann != "" {
				if _, err := tx.Exec(ctx, ann); err != nil {
					return mapError(cfg.Name, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("index created", "index", cfg.Name, "dimension", cfg.Dimension, "metric", cfg.Metric, "ann", opts.IndexType)
	return nil
}

func (s *Store) loadMeta(ctx context.Context, name string) (*indexMeta, error) {
	return remote.Call(ctx, s.exec, "describe_index", func(ctx context.Context) (*indexMeta, error) {
		var (
			meta    indexMeta
			metric  string
			options []byte
		)
		err := s.pool.QueryRow(ctx,
			`SELECT dimension, metric, options, created_at, updated_at FROM `+s.catalog()+` WHERE name = $1`, name).
			Scan(&meta.dimension, &metric, &options, &meta.createdAt, &meta.updatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vector.IndexNotFound(name)
		}
		if err != nil {
			return nil, mapError(name, err)
		}
		meta.metric = vector.Metric(metric)
		if err := json.Unmarshal(options, &meta.options); err != nil {
			return nil, vector.SerializationFailed(name, "", err)
		}
		return &meta, nil
	})
}

func (s *Store) meta(ctx context.Context, name string) (*indexMeta, error) {
	s.mu.RLock()
	meta, ok := s.metas[name]
	s.mu.RUnlock()
	if ok {
		return meta, nil
	}

	meta, err := s.loadMeta(ctx, name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.metas[name] = meta
	s.mu.Unlock()
	return meta, nil
}

func (s *Store) forget(name string) {
	s.mu.Lock()
	delete(s.metas, name)
	s.mu.Unlock()
}

func (s *Store) ListIndexes(ctx context.Context) ([]string, error) {
	return remote.Call(ctx, s.exec, "list_indexes", func(ctx context.Context) ([]string, error) {
		rows, err := s.pool.Query(ctx, `SELECT name FROM `+s.catalog()+` ORDER BY name`)
		if err != nil {
			return nil, mapError("", err)
		}
		names, err := pgx.CollectRows(rows, pgx.RowTo[string])
		return names, mapError("", err)
	})
}

func (s *Store) DescribeIndex(ctx context.Context, name string) (*vector.IndexInfo, error) {
	meta, err := s.loadMeta(ctx, name)
	if err != nil {
		return nil, err
	}

	info := &vector.IndexInfo{
		Name:      name,
		Dimension: meta.dimension,
		Metric:    meta.metric,
		CreatedAt: meta.createdAt,
		UpdatedAt: meta.updatedAt,
		Options:   meta.options,
	}
	err = s.exec.Do(ctx, "describe_index", func(ctx context.Context) error {
		var size int64
		err := s.pool.QueryRow(ctx,
			`SELECT count(*), pg_total_relation_size($1::text::regclass) FROM `+s.table(name), s.table(name)).
			Scan(&info.DocumentCount, &size)
		if err != nil {
			return mapError(name, err)
		}
		info.SizeBytes = &size
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	s.forget(name)
	err := s.exec.Do(ctx, "delete_index", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `DELETE FROM `+s.catalog()+` WHERE name = $1`, name)
			if err != nil {
				return mapError(name, err)
			}
			if tag.RowsAffected() == 0 {
				return vector.IndexNotFound(name)
			}
			_, err = tx.Exec(ctx, `DROP TABLE IF EXISTS `+s.table(name))
			return mapError(name, err)
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("index deleted", "index", name)
	return nil
}

// formatVector renders v as a pgvector text literal. The shortest float32
// representation parses back to the same bits.
func formatVector(v vector.Vector) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVector(s string) (vector.Vector, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, errors.Errorf("malformed vector literal %q", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return vector.Vector{}, nil
	}
	parts := strings.Split(body, ",")
	out := make(vector.Vector, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, errors.Wrapf(err, "component %d", i)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func (s *Store) touch(ctx context.Context, tx pgx.Tx, index string) error {
	_, err := tx.Exec(ctx, `UPDATE `+s.catalog()+` SET updated_at = NOW() WHERE name = $1`, index)
	return mapError(index, err)
}

func (s *Store) Upsert(ctx context.Context, index string, docs []vector.Document) ([]string, error) {
	meta, err := s.meta(ctx, index)
	if err != nil {
		return nil, err
	}

	batch := make([]vector.Document, len(docs))
	copy(batch, docs)
	if _, err := vector.PrepareBatch(index, meta.dimension, batch); err != nil {
		return nil, err
	}

	query := `INSERT INTO ` + s.table(index) + ` (id, content, embedding, metadata)
VALUES ($1, $2, $3::vector, $4::jsonb)
ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`

	return s.exec.Batches(ctx, "upsert", batch, func(ctx context.Context, docs []vector.Document) error {
		b := &pgx.Batch{}
		for _, doc := range docs {
			md := doc.Metadata
			if md == nil {
				md = vector.Metadata{}
			}
			data, err := json.Marshal(md)
			if err != nil {
				return vector.SerializationFailed(index, doc.ID, err)
			}
			b.Queue(query, doc.ID, doc.Content, formatVector(doc.Vector), string(data))
		}

		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if err := tx.SendBatch(ctx, b).Close(); err != nil {
				return mapError(index, err)
			}
			return s.touch(ctx, tx, index)
		})
	})
}

type row struct {
	id        string
	content   string
	embedding string
	metadata  []byte
}

func (r row) document(index string, includeVector bool) (vector.Document, error) {
	doc := vector.Document{ID: r.id, Content: r.content}
	if err := json.Unmarshal(r.metadata, &doc.Metadata); err != nil {
		return doc, vector.SerializationFailed(index, r.id, err)
	}
	if includeVector {
		v, err := parseVector(r.embedding)
		if err != nil {
			return doc, vector.SerializationFailed(index, r.id, err)
		}
		doc.Vector = v
	}
	return doc, nil
}

func (s *Store) query(ctx context.Context, index, op, sql string, includeVectors bool, args ...any) ([]vector.Document, error) {
	return remote.Call(ctx, s.exec, op, func(ctx context.Context) ([]vector.Document, error) {
		rows, err := s.pool.Query(ctx, sql, args...)
		if err != nil {
			return nil, mapError(index, err)
		}
		defer rows.Close()

		var docs []vector.Document
		for rows.Next() {
			var r row
			if err := rows.Scan(&r.id, &r.content, &r.embedding, &r.metadata); err != nil {
				return nil, mapError(index, err)
			}
			doc, err := r.document(index, includeVectors)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, mapError(index, rows.Err())
	})
}

func (s *Store) Search(ctx context.Context, req vector.SearchRequest) (*vector.SearchResponse, error) {
	start := time.Now()

	matcher, err := vector.CompileFilter(req.Filter)
	if err != nil {
		return nil, err
	}
	meta, err := s.meta(ctx, req.Index)
	if err != nil {
		return nil, err
	}
	if err := vector.CheckQueryVector(req.Index, meta.dimension, req.Vector); err != nil {
		return nil, err
	}
	metric, err := req.ResolveMetric(meta.metric)
	if err != nil {
		return nil, err
	}

	where := &whereBuilder{offset: 2}
	cond, exact, err := where.translate(req.Filter)
	if err != nil {
		return nil, err
	}
	limit := req.Limit()
	if !exact {
		limit = remote.Candidates(limit, true)
	}

	sql := fmt.Sprintf(`SELECT id, content, embedding::text, metadata FROM %s WHERE %s ORDER BY embedding %s $1::vector, seq LIMIT $2`,
		s.table(req.Index), cond, distanceOp(metric))
	args := append([]any{formatVector(req.Vector), limit}, where.args...)

	candidates, err := s.query(ctx, req.Index, "search", sql, true, args...)
	if err != nil {
		return nil, err
	}
	results, err := remote.Rescore(req, metric, matcher, candidates)
	if err != nil {
		return nil, err
	}
	return &vector.SearchResponse{Results: results, ExecutionTime: time.Since(start)}, nil
}

func (s *Store) GetDocuments(ctx context.Context, index string, ids []string, includeVectors bool) ([]vector.Document, error) {
	if _, err := s.meta(ctx, index); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []vector.Document{}, nil
	}

	sql := `SELECT id, content, embedding::text, metadata FROM ` + s.table(index) + ` WHERE id = ANY($1)`
	docs, err := s.query(ctx, index, "get_documents", sql, includeVectors, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]vector.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}
	out := make([]vector.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

func (s *Store) UpdateDocument(ctx context.Context, index string, doc vector.Document) error {
	meta, err := s.meta(ctx, index)
	if err != nil {
		return err
	}

	var content, embedding, metadata any
	if doc.Content != "" {
		content = doc.Content
	}
	if doc.Vector != nil {
		if err := vector.CheckDocumentVector(index, meta.dimension, doc); err != nil {
			return err
		}
		embedding = formatVector(doc.Vector)
	}
	if doc.Metadata != nil {
		data, err := json.Marshal(doc.Metadata)
		if err != nil {
			return vector.SerializationFailed(index, doc.ID, err)
		}
		metadata = string(data)
	}

	sql := `UPDATE ` + s.table(index) + ` SET
    content = COALESCE($2::text, content),
    embedding = COALESCE($3::vector, embedding),
    metadata = COALESCE($4::jsonb, metadata)
WHERE id = $1`

	return s.exec.Do(ctx, "update_document", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, sql, doc.ID, content, embedding, metadata)
			if err != nil {
				return mapError(index, err)
			}
			if tag.RowsAffected() == 0 {
				return vector.DocumentNotFound(index, doc.ID)
			}
			return s.touch(ctx, tx, index)
		})
	})
}

func (s *Store) DeleteDocuments(ctx context.Context, index string, ids []string) error {
	if _, err := s.meta(ctx, index); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return s.exec.Do(ctx, "delete_documents", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `DELETE FROM `+s.table(index)+` WHERE id = ANY($1)`, ids)
			if err != nil {
				return mapError(index, err)
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			return s.touch(ctx, tx, index)
		})
	})
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.exec.Do(ctx, "health_check", func(ctx context.Context) error {
		return mapError("", s.pool.Ping(ctx))
	})
}

func (s *Store) BackendInfo() vector.BackendInfo {
	md := s.config.Metadata()
	md["endpoint"] = vector.String(s.config.redactedEndpoint())
	md["schema"] = vector.String(s.config.Schema)
	return vector.BackendInfo{
		Name:    "postgres",
		Version: vector.Version,
		Features: []string{
			vector.FeatureComplexFiltering,
			vector.FeatureApproximateSearch,
			vector.FeatureMultipleMetrics,
			vector.FeatureThreadSafe,
			vector.FeatureNullMetadata,
			vector.FeaturePersistent,
			vector.FeatureBatchOperations,
		},
		Metadata: md,
	}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
