package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rangekit/depot/pkg/registry/model"
)

// Fake is an in-memory Store used by tests and by components that need a
// database without a running Postgres. It enforces the same uniqueness
// and last-owner rules as the real backend.
type Fake struct {
	mu       sync.Mutex
	packages map[string]*fakePackage
	tokens   []model.ApiToken

	// FailNext, when set, makes the next command fail with ErrQueryFailed.
	FailNext bool
}

type fakePackage struct {
	row      model.Package
	versions []model.Version
	owners   []model.Owner
}

// NewFake returns an empty in-memory store.
func NewFake() *Fake {
	return &Fake{packages: map[string]*fakePackage{}}
}

func (f *Fake) failNext() bool {
	if f.FailNext {
		f.FailNext = false
		return true
	}
	return false
}

// CreateVersion implements Store.
func (f *Fake) CreateVersion(_ context.Context, name string, nv model.NewVersion, ownerEmail string) (model.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext() {
		return model.Version{}, ErrQueryFailed
	}

	pkg, ok := f.packages[name]
	if !ok {
		pkg = &fakePackage{
			row: model.Package{ID: uuid.New(), Name: name, CreatedAt: time.Now(), UpdatedAt: time.Now()},
			owners: []model.Owner{{
				ID:        uuid.New(),
				Email:     model.NormalizeEmail(ownerEmail),
				CreatedAt: time.Now(),
			}},
		}
		pkg.owners[0].PackageID = pkg.row.ID
		f.packages[name] = pkg
	}
	for _, v := range pkg.versions {
		if v.Version == nv.Version {
			return model.Version{}, ErrVersionConflict
		}
	}
	created := model.Version{
		ID:         uuid.New(),
		PackageID:  pkg.row.ID,
		Version:    nv.Version,
		License:    nv.License,
		ReadmeHTML: nv.ReadmeHTML,
		Checksum:   nv.Checksum,
		Size:       nv.Size,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	pkg.versions = append(pkg.versions, created)
	return created, nil
}

// GetVersionByNameAndVersion implements Store.
func (f *Fake) GetVersionByNameAndVersion(_ context.Context, name, version string) (model.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext() {
		return model.Version{}, ErrQueryFailed
	}
	pkg, ok := f.packages[name]
	if !ok {
		return model.Version{}, ErrRecordNotFound
	}
	for _, v := range pkg.versions {
		if v.Version == version {
			return v, nil
		}
	}
	return model.Version{}, ErrRecordNotFound
}

// GetVersionsByPackageName implements Store.
func (f *Fake) GetVersionsByPackageName(_ context.Context, name string) ([]model.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext() {
		return nil, ErrQueryFailed
	}
	pkg, ok := f.packages[name]
	if !ok {
		return nil, nil
	}
	out := make([]model.Version, len(pkg.versions))
	copy(out, pkg.versions)
	return out, nil
}

// GetPackages implements Store.
func (f *Fake) GetPackages(_ context.Context, page, perPage int64) ([]model.PackageWithVersions, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext() {
		return nil, 0, ErrQueryFailed
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	names := make([]string, 0, len(f.packages))
	for name := range f.packages {
		names = append(names, name)
	}
	sort.Strings(names)

	total := int64(len(names))
	totalPages := (total + perPage - 1) / perPage

	start := (page - 1) * perPage
	if start >= total {
		return nil, totalPages, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}

	var out []model.PackageWithVersions
	for _, name := range names[start:end] {
		pkg := f.packages[name]
		versions := make([]model.Version, len(pkg.versions))
		copy(versions, pkg.versions)
		out = append(out, model.PackageWithVersions{Package: pkg.row, Versions: versions})
	}
	return out, totalPages, nil
}

// SetYank implements Store.
func (f *Fake) SetYank(_ context.Context, name, version string, yanked bool) (model.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext() {
		return model.Version{}, ErrQueryFailed
	}
	pkg, ok := f.packages[name]
	if !ok {
		return model.Version{}, ErrRecordNotFound
	}
	for i := range pkg.versions {
		if pkg.versions[i].Version == version {
			pkg.versions[i].IsYanked = yanked
			pkg.versions[i].UpdatedAt = time.Now()
			return pkg.versions[i], nil
		}
	}
	return model.Version{}, ErrRecordNotFound
}

// AddOwner implements Store.
func (f *Fake) AddOwner(_ context.Context, name, email string) (model.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext() {
		return model.Owner{}, ErrQueryFailed
	}
	pkg, ok := f.packages[name]
	if !ok {
		return model.Owner{}, ErrRecordNotFound
	}
	if model.ContainsEmail(pkg.owners, email) {
		return model.Owner{}, ErrOwnerAdd
	}
	owner := model.Owner{
		ID:        uuid.New(),
		PackageID: pkg.row.ID,
		Email:     model.NormalizeEmail(email),
		CreatedAt: time.Now(),
	}
	pkg.owners = append(pkg.owners, owner)
	return owner, nil
}

// RemoveOwner implements Store.
func (f *Fake) RemoveOwner(_ context.Context, name, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext() {
		return "", ErrQueryFailed
	}
	pkg, ok := f.packages[name]
	if !ok {
		return "", ErrRecordNotFound
	}
	if len(pkg.owners) <= 1 {
		return "", ErrOwnerRemoveLast
	}
	email = model.NormalizeEmail(email)
	for i, owner := range pkg.owners {
		if model.NormalizeEmail(owner.Email) == email {
			pkg.owners = append(pkg.owners[:i], pkg.owners[i+1:]...)
			return email, nil
		}
	}
	return "", ErrOwnerRemove
}

// ListOwners implements Store.
func (f *Fake) ListOwners(_ context.Context, name string) ([]model.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext() {
		return nil, ErrQueryFailed
	}
	pkg, ok := f.packages[name]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := make([]model.Owner, len(pkg.owners))
	copy(out, pkg.owners)
	return out, nil
}

// CreateToken implements Store.
func (f *Fake) CreateToken(_ context.Context, name, userID, email string) (model.ApiToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext() {
		return model.ApiToken{}, ErrQueryFailed
	}
	secret, err := model.GenerateTokenString()
	if err != nil {
		return model.ApiToken{}, err
	}
	token := model.ApiToken{
		ID:        uuid.New(),
		Name:      name,
		Token:     secret,
		UserID:    userID,
		Email:     model.NormalizeEmail(email),
		CreatedAt: time.Now(),
	}
	f.tokens = append(f.tokens, token)
	return token, nil
}

// GetTokenByString implements Store.
func (f *Fake) GetTokenByString(_ context.Context, tokenString string) (*model.ApiToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext() {
		return nil, ErrQueryFailed
	}
	for _, token := range f.tokens {
		if token.Token == tokenString && token.DeletedAt == nil {
			out := token
			return &out, nil
		}
	}
	return nil, nil
}

// ListTokensByUser implements Store.
func (f *Fake) ListTokensByUser(_ context.Context, userID string) ([]model.ApiToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext() {
		return nil, ErrQueryFailed
	}
	var out []model.ApiToken
	for _, token := range f.tokens {
		if token.UserID == userID && token.DeletedAt == nil {
			out = append(out, token)
		}
	}
	return out, nil
}

var _ Store = (*Fake)(nil)
