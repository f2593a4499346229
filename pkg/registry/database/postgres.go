package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rangekit/depot/pkg/registry/model"
	"github.com/rangekit/depot/pkg/xlog"
)

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

var psql = goqu.Dialect("postgres")

// Postgres is the Store implementation backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and runs the schema migrations.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create database pool: %w", err)
	}
	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to run migrations: %w", err)
	}
	return p, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS packages (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS packages_live_name
			ON packages (name) WHERE deleted_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS versions (
			id UUID PRIMARY KEY,
			package_id UUID NOT NULL REFERENCES packages (id),
			version TEXT NOT NULL,
			license TEXT NOT NULL,
			readme_html TEXT NOT NULL,
			checksum TEXT NOT NULL,
			size BIGINT NOT NULL,
			is_yanked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (package_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS owners (
			id UUID PRIMARY KEY,
			package_id UUID NOT NULL REFERENCES packages (id),
			email TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS owners_live_email
			ON owners (package_id, email) WHERE deleted_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS tokens (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			token TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			email TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		)`,
	}
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const versionColumns = `id, package_id, version, license, readme_html, checksum, size, is_yanked, created_at, updated_at`

// versionSelect selects version rows joined to their live package.
const versionSelect = `SELECT v.id, v.package_id, v.version, v.license, v.readme_html,
	v.checksum, v.size, v.is_yanked, v.created_at, v.updated_at
	 FROM versions v JOIN packages p ON p.id = v.package_id`

func scanVersion(row pgx.Row) (model.Version, error) {
	var v model.Version
	err := row.Scan(&v.ID, &v.PackageID, &v.Version, &v.License, &v.ReadmeHTML,
		&v.Checksum, &v.Size, &v.IsYanked, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (p *Postgres) livePackageID(ctx context.Context, q queryer, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx,
		`SELECT id FROM packages WHERE name = $1 AND deleted_at IS NULL`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrRecordNotFound
	}
	if err != nil {
		return uuid.Nil, queryFailed(ctx, err)
	}
	return id, nil
}

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryFailed(ctx context.Context, err error) error {
	xlog.C(ctx).Error("database query failed", "error", err)
	return errors.Join(ErrQueryFailed, err)
}

// CreateVersion implements Store. The package row and the initial owner
// are created in the same transaction as the version row, so a crash
// leaves no package without an owner.
func (p *Postgres) CreateVersion(ctx context.Context, name string, nv model.NewVersion, ownerEmail string) (model.Version, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return model.Version{}, queryFailed(ctx, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	packageID, err := p.livePackageID(ctx, tx, name)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		packageID = uuid.New()
		if _, err := tx.Exec(ctx,
			`INSERT INTO packages (id, name) VALUES ($1, $2)`, packageID, name); err != nil {
			return model.Version{}, queryFailed(ctx, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO owners (id, package_id, email) VALUES ($1, $2, $3)`,
			uuid.New(), packageID, model.NormalizeEmail(ownerEmail)); err != nil {
			return model.Version{}, queryFailed(ctx, err)
		}
	case err != nil:
		return model.Version{}, err
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO versions (id, package_id, version, license, readme_html, checksum, size)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+versionColumns,
		uuid.New(), packageID, nv.Version, nv.License, nv.ReadmeHTML, nv.Checksum, int64(nv.Size))
	created, err := scanVersion(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.Version{}, ErrVersionConflict
		}
		return model.Version{}, queryFailed(ctx, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Version{}, queryFailed(ctx, err)
	}
	return created, nil
}

// GetVersionByNameAndVersion implements Store.
func (p *Postgres) GetVersionByNameAndVersion(ctx context.Context, name, version string) (model.Version, error) {
	row := p.pool.QueryRow(ctx, versionSelect+`
		 WHERE p.name = $1 AND p.deleted_at IS NULL AND v.version = $2`, name, version)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Version{}, ErrRecordNotFound
	}
	if err != nil {
		return model.Version{}, queryFailed(ctx, err)
	}
	return v, nil
}

// GetVersionsByPackageName implements Store.
func (p *Postgres) GetVersionsByPackageName(ctx context.Context, name string) ([]model.Version, error) {
	rows, err := p.pool.Query(ctx, versionSelect+`
		 WHERE p.name = $1 AND p.deleted_at IS NULL
		 ORDER BY v.created_at`, name)
	if err != nil {
		return nil, queryFailed(ctx, err)
	}
	defer rows.Close()

	var versions []model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, queryFailed(ctx, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed(ctx, err)
	}
	return versions, nil
}

// GetPackages implements Store.
func (p *Postgres) GetPackages(ctx context.Context, page, perPage int64) ([]model.PackageWithVersions, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	listSQL, listArgs, err := psql.From("packages").
		Select("id", "name", "created_at", "updated_at").
		Where(goqu.Ex{"deleted_at": nil}).
		Order(goqu.I("name").Asc()).
		Limit(uint(perPage)).
		Offset(uint((page - 1) * perPage)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, queryFailed(ctx, err)
	}

	rows, err := p.pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, queryFailed(ctx, err)
	}
	defer rows.Close()

	var (
		packages []model.PackageWithVersions
		ids      []uuid.UUID
	)
	for rows.Next() {
		var pkg model.PackageWithVersions
		if err := rows.Scan(&pkg.ID, &pkg.Name, &pkg.CreatedAt, &pkg.UpdatedAt); err != nil {
			return nil, 0, queryFailed(ctx, err)
		}
		packages = append(packages, pkg)
		ids = append(ids, pkg.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, queryFailed(ctx, err)
	}

	var total int64
	if err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM packages WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, queryFailed(ctx, err)
	}
	totalPages := (total + perPage - 1) / perPage

	if len(ids) == 0 {
		return packages, totalPages, nil
	}

	byPackage := make(map[uuid.UUID]int, len(packages))
	for i, pkg := range packages {
		byPackage[pkg.ID] = i
	}

	versionSQL, versionArgs, err := psql.From("versions").
		Select(goqu.L(versionColumns)).
		Where(goqu.C("package_id").In(ids)).
		Order(goqu.I("created_at").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, queryFailed(ctx, err)
	}
	versionRows, err := p.pool.Query(ctx, versionSQL, versionArgs...)
	if err != nil {
		return nil, 0, queryFailed(ctx, err)
	}
	defer versionRows.Close()
	for versionRows.Next() {
		v, err := scanVersion(versionRows)
		if err != nil {
			return nil, 0, queryFailed(ctx, err)
		}
		if i, ok := byPackage[v.PackageID]; ok {
			packages[i].Versions = append(packages[i].Versions, v)
		}
	}
	if err := versionRows.Err(); err != nil {
		return nil, 0, queryFailed(ctx, err)
	}
	return packages, totalPages, nil
}

// SetYank implements Store.
func (p *Postgres) SetYank(ctx context.Context, name, version string, yanked bool) (model.Version, error) {
	packageID, err := p.livePackageID(ctx, p.pool, name)
	if err != nil {
		return model.Version{}, err
	}
	row := p.pool.QueryRow(ctx,
		`UPDATE versions SET is_yanked = $1, updated_at = now()
		 WHERE package_id = $2 AND version = $3
		 RETURNING `+versionColumns, yanked, packageID, version)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Version{}, ErrRecordNotFound
	}
	if err != nil {
		return model.Version{}, queryFailed(ctx, err)
	}
	return v, nil
}

// AddOwner implements Store.
func (p *Postgres) AddOwner(ctx context.Context, name, email string) (model.Owner, error) {
	packageID, err := p.livePackageID(ctx, p.pool, name)
	if err != nil {
		return model.Owner{}, err
	}
	row := p.pool.QueryRow(ctx,
		`INSERT INTO owners (id, package_id, email) VALUES ($1, $2, $3)
		 RETURNING id, package_id, email, created_at`,
		uuid.New(), packageID, model.NormalizeEmail(email))
	var owner model.Owner
	if err := row.Scan(&owner.ID, &owner.PackageID, &owner.Email, &owner.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.Owner{}, ErrOwnerAdd
		}
		return model.Owner{}, queryFailed(ctx, err)
	}
	return owner, nil
}

// RemoveOwner implements Store. The last-owner check and the soft delete
// run inside one transaction with the owner rows locked, so concurrent
// removals cannot strip a package of its final owner.
func (p *Postgres) RemoveOwner(ctx context.Context, name, email string) (string, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return "", queryFailed(ctx, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	packageID, err := p.livePackageID(ctx, tx, name)
	if err != nil {
		return "", err
	}

	// lock the live owner rows before counting so concurrent removals
	// serialise on the same package
	if _, err := tx.Exec(ctx,
		`SELECT id FROM owners WHERE package_id = $1 AND deleted_at IS NULL FOR UPDATE`,
		packageID); err != nil {
		return "", queryFailed(ctx, err)
	}
	var liveOwners int64
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM owners WHERE package_id = $1 AND deleted_at IS NULL`,
		packageID).Scan(&liveOwners); err != nil {
		return "", queryFailed(ctx, err)
	}
	if liveOwners <= 1 {
		return "", ErrOwnerRemoveLast
	}

	tag, err := tx.Exec(ctx,
		`UPDATE owners SET deleted_at = now()
		 WHERE package_id = $1 AND email = $2 AND deleted_at IS NULL`,
		packageID, model.NormalizeEmail(email))
	if err != nil {
		return "", queryFailed(ctx, err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrOwnerRemove
	}
	if err := tx.Commit(ctx); err != nil {
		return "", queryFailed(ctx, err)
	}
	return model.NormalizeEmail(email), nil
}

// ListOwners implements Store.
func (p *Postgres) ListOwners(ctx context.Context, name string) ([]model.Owner, error) {
	packageID, err := p.livePackageID(ctx, p.pool, name)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, package_id, email, created_at FROM owners
		 WHERE package_id = $1 AND deleted_at IS NULL ORDER BY created_at`, packageID)
	if err != nil {
		return nil, queryFailed(ctx, err)
	}
	defer rows.Close()

	var owners []model.Owner
	for rows.Next() {
		var owner model.Owner
		if err := rows.Scan(&owner.ID, &owner.PackageID, &owner.Email, &owner.CreatedAt); err != nil {
			return nil, queryFailed(ctx, err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed(ctx, err)
	}
	return owners, nil
}

// CreateToken implements Store.
func (p *Postgres) CreateToken(ctx context.Context, name, userID, email string) (model.ApiToken, error) {
	secret, err := model.GenerateTokenString()
	if err != nil {
		return model.ApiToken{}, queryFailed(ctx, err)
	}
	row := p.pool.QueryRow(ctx,
		`INSERT INTO tokens (id, name, token, user_id, email) VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, name, token, user_id, email, created_at`,
		uuid.New(), name, secret, userID, model.NormalizeEmail(email))
	var token model.ApiToken
	if err := row.Scan(&token.ID, &token.Name, &token.Token, &token.UserID, &token.Email, &token.CreatedAt); err != nil {
		return model.ApiToken{}, queryFailed(ctx, err)
	}
	return token, nil
}

// GetTokenByString implements Store.
func (p *Postgres) GetTokenByString(ctx context.Context, tokenString string) (*model.ApiToken, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, name, token, user_id, email, created_at FROM tokens
		 WHERE token = $1 AND deleted_at IS NULL`, tokenString)
	var token model.ApiToken
	err := row.Scan(&token.ID, &token.Name, &token.Token, &token.UserID, &token.Email, &token.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, queryFailed(ctx, err)
	}
	return &token, nil
}

// ListTokensByUser implements Store.
func (p *Postgres) ListTokensByUser(ctx context.Context, userID string) ([]model.ApiToken, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, token, user_id, email, created_at FROM tokens
		 WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at`, userID)
	if err != nil {
		return nil, queryFailed(ctx, err)
	}
	defer rows.Close()

	var tokens []model.ApiToken
	for rows.Next() {
		var token model.ApiToken
		if err := rows.Scan(&token.ID, &token.Name, &token.Token, &token.UserID, &token.Email, &token.CreatedAt); err != nil {
			return nil, queryFailed(ctx, err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed(ctx, err)
	}
	return tokens, nil
}

var _ Store = (*Postgres)(nil)
