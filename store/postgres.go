package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Smart-Charging/scn-node/scpi"
)

// Postgres implements Store with PostgreSQL persistence.
type Postgres struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgres opens a connection pool, verifies connectivity and runs the
// schema migration.
func NewPostgres(config *PostgresConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &Postgres{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	return s.db.Close()
}

func (s *Postgres) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS platforms (
		id BIGSERIAL PRIMARY KEY,
		status VARCHAR(16) NOT NULL,
		last_updated VARCHAR(32) NOT NULL DEFAULT '',
		versions_url VARCHAR(512) NOT NULL DEFAULT '',
		token_a VARCHAR(64) NOT NULL DEFAULT '',
		token_b VARCHAR(64) NOT NULL DEFAULT '',
		token_c VARCHAR(64) NOT NULL DEFAULT '',
		rules_signatures BOOLEAN NOT NULL DEFAULT FALSE,
		rules_whitelist BOOLEAN NOT NULL DEFAULT FALSE,
		rules_blacklist BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS roles (
		id BIGSERIAL PRIMARY KEY,
		platform_id BIGINT NOT NULL REFERENCES platforms(id) ON DELETE CASCADE,
		role VARCHAR(8) NOT NULL,
		business_name VARCHAR(128) NOT NULL DEFAULT '',
		business_website VARCHAR(256) NOT NULL DEFAULT '',
		party_id VARCHAR(3) NOT NULL,
		country_code VARCHAR(2) NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_party
		ON roles(UPPER(country_code), UPPER(party_id));

	CREATE TABLE IF NOT EXISTS endpoints (
		id BIGSERIAL PRIMARY KEY,
		platform_id BIGINT NOT NULL REFERENCES platforms(id) ON DELETE CASCADE,
		identifier VARCHAR(32) NOT NULL,
		role VARCHAR(8) NOT NULL,
		url VARCHAR(512) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS proxy_resources (
		id BIGSERIAL PRIMARY KEY,
		resource VARCHAR(1024) NOT NULL,
		sender_country VARCHAR(2) NOT NULL,
		sender_id VARCHAR(3) NOT NULL,
		receiver_country VARCHAR(2) NOT NULL,
		receiver_id VARCHAR(3) NOT NULL,
		alternative_uid VARCHAR(64) NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS rules_list (
		id BIGSERIAL PRIMARY KEY,
		platform_id BIGINT NOT NULL REFERENCES platforms(id) ON DELETE CASCADE,
		counterparty_country VARCHAR(2) NOT NULL,
		counterparty_id VARCHAR(3) NOT NULL,
		cdrs BOOLEAN NOT NULL DEFAULT FALSE,
		chargingprofiles BOOLEAN NOT NULL DEFAULT FALSE,
		commands BOOLEAN NOT NULL DEFAULT FALSE,
		locations BOOLEAN NOT NULL DEFAULT FALSE,
		sessions BOOLEAN NOT NULL DEFAULT FALSE,
		tariffs BOOLEAN NOT NULL DEFAULT FALSE,
		tokens BOOLEAN NOT NULL DEFAULT FALSE
	);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const platformColumns = `id, status, last_updated, versions_url, token_a, token_b, token_c,
	rules_signatures, rules_whitelist, rules_blacklist`

func scanPlatform(row *sql.Row) (*Platform, error) {
	var p Platform
	err := row.Scan(&p.ID, &p.Status, &p.LastUpdated, &p.VersionsURL,
		&p.Auth.TokenA, &p.Auth.TokenB, &p.Auth.TokenC,
		&p.Rules.Signatures, &p.Rules.Whitelist, &p.Rules.Blacklist)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Postgres) CreatePlatform(ctx context.Context, platform *Platform) error {
	query := `
	INSERT INTO platforms (status, last_updated, versions_url, token_a, token_b, token_c,
		rules_signatures, rules_whitelist, rules_blacklist)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id`

	return s.db.QueryRowContext(ctx, query,
		platform.Status, platform.LastUpdated, platform.VersionsURL,
		platform.Auth.TokenA, platform.Auth.TokenB, platform.Auth.TokenC,
		platform.Rules.Signatures, platform.Rules.Whitelist, platform.Rules.Blacklist,
	).Scan(&platform.ID)
}

func (s *Postgres) UpdatePlatform(ctx context.Context, platform *Platform) error {
	query := `
	UPDATE platforms SET status = $2, last_updated = $3, versions_url = $4,
		token_a = $5, token_b = $6, token_c = $7,
		rules_signatures = $8, rules_whitelist = $9, rules_blacklist = $10
	WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, platform.ID,
		platform.Status, platform.LastUpdated, platform.VersionsURL,
		platform.Auth.TokenA, platform.Auth.TokenB, platform.Auth.TokenC,
		platform.Rules.Signatures, platform.Rules.Whitelist, platform.Rules.Blacklist)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) PlatformByID(ctx context.Context, id int64) (*Platform, error) {
	query := `SELECT ` + platformColumns + ` FROM platforms WHERE id = $1`
	return scanPlatform(s.db.QueryRowContext(ctx, query, id))
}

func (s *Postgres) PlatformByTokenA(ctx context.Context, token string) (*Platform, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + platformColumns + ` FROM platforms WHERE token_a = $1`
	return scanPlatform(s.db.QueryRowContext(ctx, query, token))
}

func (s *Postgres) PlatformByTokenC(ctx context.Context, token string) (*Platform, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + platformColumns + ` FROM platforms WHERE token_c = $1`
	return scanPlatform(s.db.QueryRowContext(ctx, query, token))
}

func (s *Postgres) DeletePlatform(ctx context.Context, id int64) error {
	// roles, endpoints and rules entries cascade via foreign keys
	_, err := s.db.ExecContext(ctx, `DELETE FROM platforms WHERE id = $1`, id)
	return err
}

func (s *Postgres) RoleExists(ctx context.Context, party scpi.BasicRole) (bool, error) {
	party = party.Normalize()
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM roles WHERE UPPER(country_code) = $1 AND UPPER(party_id) = $2)`,
		party.Country, party.ID).Scan(&exists)
	return exists, err
}

func (s *Postgres) RoleExistsOnPlatform(ctx context.Context, platformID int64, party scpi.BasicRole) (bool, error) {
	party = party.Normalize()
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM roles WHERE platform_id = $1 AND UPPER(country_code) = $2 AND UPPER(party_id) = $3)`,
		platformID, party.Country, party.ID).Scan(&exists)
	return exists, err
}

func (s *Postgres) PlatformIDForRole(ctx context.Context, party scpi.BasicRole) (int64, error) {
	party = party.Normalize()
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT platform_id FROM roles WHERE UPPER(country_code) = $1 AND UPPER(party_id) = $2 LIMIT 1`,
		party.Country, party.ID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

func (s *Postgres) RolesForPlatform(ctx context.Context, platformID int64) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform_id, role, business_name, business_website, party_id, country_code
		 FROM roles WHERE platform_id = $1`, platformID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.PlatformID, &r.Role,
			&r.BusinessDetails.Name, &r.BusinessDetails.Website, &r.PartyID, &r.CountryCode); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) SaveRoles(ctx context.Context, roles []Role) error {
	for i := range roles {
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO roles (platform_id, role, business_name, business_website, party_id, country_code)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			roles[i].PlatformID, roles[i].Role,
			roles[i].BusinessDetails.Name, roles[i].BusinessDetails.Website,
			roles[i].PartyID, roles[i].CountryCode).Scan(&roles[i].ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Postgres) DeleteRolesForPlatform(ctx context.Context, platformID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE platform_id = $1`, platformID)
	return err
}

func (s *Postgres) EndpointFor(ctx context.Context, platformID int64, module scpi.ModuleID, role scpi.InterfaceRole) (*Endpoint, error) {
	var e Endpoint
	err := s.db.QueryRowContext(ctx,
		`SELECT id, platform_id, identifier, role, url FROM endpoints
		 WHERE platform_id = $1 AND identifier = $2 AND role = $3`,
		platformID, module, role).Scan(&e.ID, &e.PlatformID, &e.Identifier, &e.Role, &e.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Postgres) ReplaceEndpoints(ctx context.Context, platformID int64, endpoints []Endpoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM endpoints WHERE platform_id = $1`, platformID); err != nil {
		return err
	}
	for i := range endpoints {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO endpoints (platform_id, identifier, role, url) VALUES ($1, $2, $3, $4) RETURNING id`,
			platformID, endpoints[i].Identifier, endpoints[i].Role, endpoints[i].URL).Scan(&endpoints[i].ID)
		if err != nil {
			return err
		}
		endpoints[i].PlatformID = platformID
	}
	return tx.Commit()
}

func (s *Postgres) DeleteEndpointsForPlatform(ctx context.Context, platformID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE platform_id = $1`, platformID)
	return err
}

func (s *Postgres) CreateProxyResource(ctx context.Context, resource *ProxyResource) error {
	sender := resource.Sender.Normalize()
	receiver := resource.Receiver.Normalize()
	return s.db.QueryRowContext(ctx,
		`INSERT INTO proxy_resources (resource, sender_country, sender_id, receiver_country, receiver_id, alternative_uid)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		resource.Resource, sender.Country, sender.ID, receiver.Country, receiver.ID,
		resource.AlternativeUID).Scan(&resource.ID)
}

func scanProxy(row *sql.Row) (*ProxyResource, error) {
	var p ProxyResource
	err := row.Scan(&p.ID, &p.Resource, &p.Sender.Country, &p.Sender.ID,
		&p.Receiver.Country, &p.Receiver.ID, &p.AlternativeUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Postgres) ProxyResourceByID(ctx context.Context, id int64, sender, receiver scpi.BasicRole) (*ProxyResource, error) {
	sender = sender.Normalize()
	receiver = receiver.Normalize()
	row := s.db.QueryRowContext(ctx,
		`SELECT id, resource, sender_country, sender_id, receiver_country, receiver_id, alternative_uid
		 FROM proxy_resources
		 WHERE id = $1 AND sender_country = $2 AND sender_id = $3 AND receiver_country = $4 AND receiver_id = $5`,
		id, sender.Country, sender.ID, receiver.Country, receiver.ID)
	return scanProxy(row)
}

func (s *Postgres) ProxyResourceByAlternativeUID(ctx context.Context, uid string, sender, receiver scpi.BasicRole) (*ProxyResource, error) {
	if uid == "" {
		return nil, ErrNotFound
	}
	sender = sender.Normalize()
	receiver = receiver.Normalize()
	row := s.db.QueryRowContext(ctx,
		`SELECT id, resource, sender_country, sender_id, receiver_country, receiver_id, alternative_uid
		 FROM proxy_resources
		 WHERE alternative_uid = $1 AND sender_country = $2 AND sender_id = $3 AND receiver_country = $4 AND receiver_id = $5`,
		uid, sender.Country, sender.ID, receiver.Country, receiver.ID)
	return scanProxy(row)
}

func (s *Postgres) DeleteProxyResource(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM proxy_resources WHERE id = $1`, id)
	return err
}

func (s *Postgres) RulesListForPlatform(ctx context.Context, platformID int64) ([]RulesListEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform_id, counterparty_country, counterparty_id,
			cdrs, chargingprofiles, commands, locations, sessions, tariffs, tokens
		 FROM rules_list WHERE platform_id = $1`, platformID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RulesListEntry
	for rows.Next() {
		var e RulesListEntry
		if err := rows.Scan(&e.ID, &e.PlatformID, &e.Counterparty.Country, &e.Counterparty.ID,
			&e.Modules.Cdrs, &e.Modules.ChargingProfiles, &e.Modules.Commands, &e.Modules.Locations,
			&e.Modules.Sessions, &e.Modules.Tariffs, &e.Modules.Tokens); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) RulesEntryExists(ctx context.Context, platformID int64, counterparty scpi.BasicRole) (bool, error) {
	counterparty = counterparty.Normalize()
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM rules_list WHERE platform_id = $1 AND counterparty_country = $2 AND counterparty_id = $3)`,
		platformID, counterparty.Country, counterparty.ID).Scan(&exists)
	return exists, err
}

func (s *Postgres) SaveRulesEntry(ctx context.Context, entry *RulesListEntry) error {
	counterparty := entry.Counterparty.Normalize()
	return s.db.QueryRowContext(ctx,
		`INSERT INTO rules_list (platform_id, counterparty_country, counterparty_id,
			cdrs, chargingprofiles, commands, locations, sessions, tariffs, tokens)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		entry.PlatformID, counterparty.Country, counterparty.ID,
		entry.Modules.Cdrs, entry.Modules.ChargingProfiles, entry.Modules.Commands,
		entry.Modules.Locations, entry.Modules.Sessions, entry.Modules.Tariffs,
		entry.Modules.Tokens).Scan(&entry.ID)
}

func (s *Postgres) ReplaceRulesList(ctx context.Context, platformID int64, entries []RulesListEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules_list WHERE platform_id = $1`, platformID); err != nil {
		return err
	}
	for i := range entries {
		counterparty := entries[i].Counterparty.Normalize()
		err := tx.QueryRowContext(ctx,
			`INSERT INTO rules_list (platform_id, counterparty_country, counterparty_id,
				cdrs, chargingprofiles, commands, locations, sessions, tariffs, tokens)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
			platformID, counterparty.Country, counterparty.ID,
			entries[i].Modules.Cdrs, entries[i].Modules.ChargingProfiles, entries[i].Modules.Commands,
			entries[i].Modules.Locations, entries[i].Modules.Sessions, entries[i].Modules.Tariffs,
			entries[i].Modules.Tokens).Scan(&entries[i].ID)
		if err != nil {
			return err
		}
		entries[i].PlatformID = platformID
	}
	return tx.Commit()
}

func (s *Postgres) DeleteRulesEntry(ctx context.Context, platformID int64, counterparty scpi.BasicRole) error {
	counterparty = counterparty.Normalize()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM rules_list WHERE platform_id = $1 AND counterparty_country = $2 AND counterparty_id = $3`,
		platformID, counterparty.Country, counterparty.ID)
	return err
}

func (s *Postgres) DeleteRulesListForPlatform(ctx context.Context, platformID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rules_list WHERE platform_id = $1`, platformID)
	return err
}

// WithPlatformLock serializes rules mutations on one platform with a
// session-level advisory lock held on a dedicated connection.
func (s *Postgres) WithPlatformLock(ctx context.Context, platformID int64, fn func() error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, platformID); err != nil {
		return err
	}
	defer conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, platformID)

	return fn()
}
