// Package database defines the command surface of the registry's
// persistence collaborator and its implementations: a Postgres backend, a
// mailbox actor that serialises access to it, and an in-memory fake for
// tests.
package database

import (
	"context"
	"errors"

	"github.com/rangekit/depot/pkg/errdefs"
	"github.com/rangekit/depot/pkg/registry/model"
)

// Store is the asynchronous command/query surface the registry core
// addresses. Every method is safe for concurrent use.
type Store interface {
	// CreateVersion records a new version row, creating the package row
	// and its initial owner when the package name is new. A duplicate
	// (name, version) pair fails with ErrVersionConflict.
	CreateVersion(ctx context.Context, name string, version model.NewVersion, ownerEmail string) (model.Version, error)

	// GetVersionByNameAndVersion returns the version row, or
	// ErrRecordNotFound.
	GetVersionByNameAndVersion(ctx context.Context, name, version string) (model.Version, error)

	// GetVersionsByPackageName returns every version row of the package,
	// yanked included. An unknown name yields an empty list.
	GetVersionsByPackageName(ctx context.Context, name string) ([]model.Version, error)

	// GetPackages returns one page of packages with their versions and
	// the total page count.
	GetPackages(ctx context.Context, page, perPage int64) ([]model.PackageWithVersions, int64, error)

	// SetYank sets the yanked flag of a version, or ErrRecordNotFound.
	SetYank(ctx context.Context, name, version string, yanked bool) (model.Version, error)

	// AddOwner adds an owner email to a package. Duplicates fail with
	// ErrOwnerAdd.
	AddOwner(ctx context.Context, name, email string) (model.Owner, error)

	// RemoveOwner soft-deletes an owner. Removing the last owner fails
	// with ErrOwnerRemoveLast; an unknown email with ErrOwnerRemove.
	RemoveOwner(ctx context.Context, name, email string) (string, error)

	// ListOwners returns the non-deleted owners of a package.
	ListOwners(ctx context.Context, name string) ([]model.Owner, error)

	// CreateToken mints a new API token for the user.
	CreateToken(ctx context.Context, name, userID, email string) (model.ApiToken, error)

	// GetTokenByString resolves a bearer string, returning nil when no
	// live token matches.
	GetTokenByString(ctx context.Context, token string) (*model.ApiToken, error)

	// ListTokensByUser returns the user's non-deleted tokens.
	ListTokensByUser(ctx context.Context, userID string) ([]model.ApiToken, error)
}

var (
	// ErrVersionConflict signals a duplicate (name, version) pair.
	ErrVersionConflict = errdefs.NewE(errdefs.ErrConflict, errors.New("version already exists"))

	// ErrRecordNotFound signals a query miss.
	ErrRecordNotFound = errdefs.NewE(errdefs.ErrNotFound, errors.New("record not found"))

	// ErrOwnerAdd signals a failed owner insertion, typically a duplicate.
	ErrOwnerAdd = errdefs.NewE(errdefs.ErrAlreadyExists, errors.New("owner cannot be added"))

	// ErrOwnerRemove signals a failed owner removal.
	ErrOwnerRemove = errdefs.NewE(errdefs.ErrNotFound, errors.New("owner cannot be removed"))

	// ErrOwnerRemoveLast rejects removing the last owner of a package.
	ErrOwnerRemoveLast = errdefs.NewE(errdefs.ErrConflict, errors.New("cannot remove the last owner of a package"))

	// ErrMailboxFull signals that the actor's mailbox rejected a command.
	ErrMailboxFull = errdefs.NewE(errdefs.ErrSystem, errors.New("database mailbox full"))

	// ErrQueryFailed signals an infrastructural database failure.
	ErrQueryFailed = errdefs.NewE(errdefs.ErrSystem, errors.New("database query failed"))
)
