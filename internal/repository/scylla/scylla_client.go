package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"family-safety-score/internal/config"
	"family-safety-score/internal/store"
	"family-safety-score/internal/util"
)

// Statements holds the CQL used by the repositories. gocql prepares each one
// on first execution and caches it per host.
type Statements struct {
	GetScore         string
	InsertScore      string
	UpdateScore      string
	GetEngagement    string
	UpsertEngagement string
	InsertActivity   string
	ListActivities   string
}

var statements = Statements{
	GetScore: `
		SELECT user_id, score, grade, trend, factors, summary, last_update, version
		FROM risk_scores WHERE user_bucket = ? AND user_id = ?`,

	InsertScore: `
		INSERT INTO risk_scores (
			user_bucket, user_id, score, grade, trend, factors, summary, last_update, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,

	UpdateScore: `
		UPDATE risk_scores
		SET score = ?, grade = ?, trend = ?, factors = ?, summary = ?, last_update = ?, version = ?
		WHERE user_bucket = ? AND user_id = ? IF version = ?`,

	GetEngagement: `
		SELECT user_id, score, recommendations_completed, safe_settings_enabled,
			screen_time_compliance, engagement_level, weekly_reset_at, updated_at
		FROM engagement_scores WHERE user_bucket = ? AND user_id = ?`,

	UpsertEngagement: `
		INSERT INTO engagement_scores (
			user_bucket, user_id, score, recommendations_completed, safe_settings_enabled,
			screen_time_compliance, engagement_level, weekly_reset_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,

	InsertActivity: `
		INSERT INTO activities (
			user_bucket, user_id, created_at, activity_id, activity_type, points, description, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,

	ListActivities: `
		SELECT activity_id, user_id, activity_type, points, description, metadata, created_at
		FROM activities WHERE user_bucket = ? AND user_id = ? LIMIT ?`,
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS risk_scores (
		user_bucket int,
		user_id text,
		score int,
		grade text,
		trend text,
		factors map<text, int>,
		summary text,
		last_update timestamp,
		version bigint,
		PRIMARY KEY ((user_bucket), user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS engagement_scores (
		user_bucket int,
		user_id text,
		score int,
		recommendations_completed int,
		safe_settings_enabled int,
		screen_time_compliance int,
		engagement_level int,
		weekly_reset_at timestamp,
		updated_at timestamp,
		PRIMARY KEY ((user_bucket), user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS activities (
		user_bucket int,
		user_id text,
		created_at timestamp,
		activity_id text,
		activity_type text,
		points int,
		description text,
		metadata map<text, text>,
		PRIMARY KEY ((user_bucket, user_id), created_at, activity_id)
	) WITH CLUSTERING ORDER BY (created_at DESC, activity_id ASC)`,
}

type ScyllaClient struct {
	Session    *gocql.Session
	config     *config.ScyllaConfig
	Statements Statements
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if cfg.IsProduction() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 util.GetEnv("SCYLLA_CA_FILE", "/app/certs/ca.pem"),
			CertPath:               util.GetEnv("SCYLLA_CERT_FILE", "/app/certs/scylla.pem"),
			KeyPath:                util.GetEnv("SCYLLA_KEY_FILE", "/app/certs/scylla.key"),
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session:    session,
		config:     &scyllaConfig,
		Statements: statements,
	}

	logger.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

// EnsureSchema creates the service tables when they are missing.
func (s *ScyllaClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.Session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("apply scylla schema: %w", err)
		}
	}
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...).WithContext(ctx)
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

const (
	codeSyntax  = 0x2000
	codeInvalid = 0x2200
)

// translate maps driver errors onto the store error taxonomy.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gocql.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var reqErr gocql.RequestError
	if errors.As(err, &reqErr) && (reqErr.Code() == codeSyntax || reqErr.Code() == codeInvalid) {
		return fmt.Errorf("%s: %w", op, &store.ValidationError{Reason: reqErr.Message()})
	}
	return fmt.Errorf("%s: %w: %v", op, store.ErrUnavailable, err)
}
