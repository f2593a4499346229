// Package model defines the persistent rows of the registry and their
// REST representations.
package model

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Package is the unit of naming. Its canonical name is globally unique
// among non-deleted packages.
type Package struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-"`
}

// Version is an immutable release of a package. Only IsYanked may change
// after creation.
type Version struct {
	ID         uuid.UUID `json:"id"`
	PackageID  uuid.UUID `json:"-"`
	Version    string    `json:"version"`
	License    string    `json:"license"`
	ReadmeHTML string    `json:"readmeHtml"`
	Checksum   string    `json:"checksum"`
	Size       uint64    `json:"packageSize"`
	IsYanked   bool      `json:"isYanked"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewVersion carries the caller-supplied fields of a version row.
type NewVersion struct {
	Version    string
	License    string
	ReadmeHTML string
	Checksum   string
	Size       uint64
}

// Owner is an email authorised to mutate a package. Emails are stored
// lowercased.
type Owner struct {
	ID        uuid.UUID  `json:"id"`
	PackageID uuid.UUID  `json:"-"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"-"`
}

// NormalizeEmail lowercases an owner email for storage and comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(email)
}

// ContainsEmail reports whether the owner set contains the email,
// case-insensitively.
func ContainsEmail(owners []Owner, email string) bool {
	email = NormalizeEmail(email)
	for _, owner := range owners {
		if NormalizeEmail(owner.Email) == email {
			return true
		}
	}
	return false
}

// ApiToken is a local bearer credential. The token string is unique.
type ApiToken struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Token     string     `json:"-"`
	UserID    string     `json:"-"`
	Email     string     `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"-"`
}

const tokenByteLength = 128

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateTokenString returns a fresh bearer credential: 128
// cryptographically random alphanumeric bytes, base64-encoded.
func GenerateTokenString() (string, error) {
	raw := make([]byte, tokenByteLength)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range raw {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		raw[i] = alphanumeric[n.Int64()]
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// PackageWithVersions is a package row with its visible versions attached.
type PackageWithVersions struct {
	Package
	Versions []Version `json:"versions"`
}

// RemoveYankedVersions filters yanked versions out of every package and
// drops packages left with no visible versions.
func RemoveYankedVersions(packages []PackageWithVersions) []PackageWithVersions {
	kept := packages[:0]
	for _, p := range packages {
		visible := make([]Version, 0, len(p.Versions))
		for _, v := range p.Versions {
			if !v.IsYanked {
				visible = append(visible, v)
			}
		}
		if len(visible) == 0 {
			continue
		}
		p.Versions = visible
		kept = append(kept, p)
	}
	return kept
}

// PackagesPage is the pagination envelope of the package listing.
type PackagesPage struct {
	Packages   []PackageWithVersions `json:"packages"`
	TotalPages int64                 `json:"total_pages"`
}

// TokenCreated is returned once from token creation and is the only place
// the secret appears.
type TokenCreated struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Token string    `json:"token"`
}
