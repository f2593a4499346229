package database

import (
	"context"

	"github.com/rangekit/depot/pkg/registry/model"
	"github.com/rangekit/depot/pkg/xlog"
)

// DefaultMailboxSize bounds the number of queued commands before senders
// start failing with ErrMailboxFull.
const DefaultMailboxSize = 256

// Actor serialises access to a backing Store through a bounded mailbox.
// Commands are executed one at a time in mailbox order, which gives
// read-modify-write sequences such as the last-owner check a single
// in-flight request.
type Actor struct {
	backend Store
	mailbox chan task
}

type task struct {
	run  func(ctx context.Context)
	done chan struct{}
}

// NewActor returns an Actor over the backend. Run must be called before
// commands are sent.
func NewActor(backend Store) *Actor {
	return &Actor{
		backend: backend,
		mailbox: make(chan task, DefaultMailboxSize),
	}
}

// Run processes the mailbox until the context is canceled.
func (a *Actor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-a.mailbox:
			t.run(ctx)
			close(t.done)
		}
	}
}

// send enqueues a command and waits for it to complete. A full mailbox
// fails immediately; a canceled caller context abandons the wait.
func (a *Actor) send(ctx context.Context, run func(ctx context.Context)) error {
	t := task{run: run, done: make(chan struct{})}
	select {
	case a.mailbox <- t:
	default:
		xlog.C(ctx).Warn("database mailbox full, rejecting command")
		return ErrMailboxFull
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateVersion implements Store.
func (a *Actor) CreateVersion(ctx context.Context, name string, version model.NewVersion, ownerEmail string) (model.Version, error) {
	var (
		out model.Version
		err error
	)
	if sendErr := a.send(ctx, func(ctx context.Context) {
		out, err = a.backend.CreateVersion(ctx, name, version, ownerEmail)
	}); sendErr != nil {
		return model.Version{}, sendErr
	}
	return out, err
}

// GetVersionByNameAndVersion implements Store.
func (a *Actor) GetVersionByNameAndVersion(ctx context.Context, name, version string) (model.Version, error) {
	var (
		out model.Version
		err error
	)
	if sendErr := a.send(ctx, func(ctx context.Context) {
		out, err = a.backend.GetVersionByNameAndVersion(ctx, name, version)
	}); sendErr != nil {
		return model.Version{}, sendErr
	}
	return out, err
}

// GetVersionsByPackageName implements Store.
func (a *Actor) GetVersionsByPackageName(ctx context.Context, name string) ([]model.Version, error) {
	var (
		out []model.Version
		err error
	)
	if sendErr := a.send(ctx, func(ctx context.Context) {
		out, err = a.backend.GetVersionsByPackageName(ctx, name)
	}); sendErr != nil {
		return nil, sendErr
	}
	return out, err
}

// GetPackages implements Store.
func (a *Actor) GetPackages(ctx context.Context, page, perPage int64) ([]model.PackageWithVersions, int64, error) {
	var (
		out   []model.PackageWithVersions
		pages int64
		err   error
	)
	if sendErr := a.send(ctx, func(ctx context.Context) {
		out, pages, err = a.backend.GetPackages(ctx, page, perPage)
	}); sendErr != nil {
		return nil, 0, sendErr
	}
	return out, pages, err
}

// SetYank implements Store.
func (a *Actor) SetYank(ctx context.Context, name, version string, yanked bool) (model.Version, error) {
	var (
		out model.Version
		err error
	)
	if sendErr := a.send(ctx, func(ctx context.Context) {
		out, err = a.backend.SetYank(ctx, name, version, yanked)
	}); sendErr != nil {
		return model.Version{}, sendErr
	}
	return out, err
}

// AddOwner implements Store.
func (a *Actor) AddOwner(ctx context.Context, name, email string) (model.Owner, error) {
	var (
		out model.Owner
		err error
	)
	if sendErr := a.send(ctx, func(ctx context.Context) {
		out, err = a.backend.AddOwner(ctx, name, email)
	}); sendErr != nil {
		return model.Owner{}, sendErr
	}
	return out, err
}

// RemoveOwner implements Store.
func (a *Actor) RemoveOwner(ctx context.Context, name, email string) (string, error) {
	var (
		out string
		err error
	)
	if sendErr := a.send(ctx, func(ctx context.Context) {
		out, err = a.backend.RemoveOwner(ctx, name, email)
	}); sendErr != nil {
		return "", sendErr
	}
	return out, err
}

// ListOwners implements Store.
func (a *Actor) ListOwners(ctx context.Context, name string) ([]model.Owner, error) {
	var (
		out []model.Owner
		err error
	)
	if sendErr := a.send(ctx, func(ctx context.Context) {
		out, err = a.backend.ListOwners(ctx, name)
	}); sendErr != nil {
		return nil, sendErr
	}
	return out, err
}

// CreateToken implements Store.
func (a *Actor) CreateToken(ctx context.Context, name, userID, email string) (model.ApiToken, error) {
	var (
		out model.ApiToken
		err error
	)
	if sendErr := a.send(ctx, func(ctx context.Context) {
		out, err = a.backend.CreateToken(ctx, name, userID, email)
	}); sendErr != nil {
		return model.ApiToken{}, sendErr
	}
	return out, err
}

// GetTokenByString implements Store.
func (a *Actor) GetTokenByString(ctx context.Context, token string) (*model.ApiToken, error) {
	var (
		out *model.ApiToken
		err error
	)
	if sendErr := a.send(ctx, func(ctx context.Context) {
		out, err = a.backend.GetTokenByString(ctx, token)
	}); sendErr != nil {
		return nil, sendErr
	}
	return out, err
}

// ListTokensByUser implements Store.
func (a *Actor) ListTokensByUser(ctx context.Context, userID string) ([]model.ApiToken, error) {
	var (
		out []model.ApiToken
		err error
	)
	if sendErr := a.send(ctx, func(ctx context.Context) {
		out, err = a.backend.ListTokensByUser(ctx, userID)
	}); sendErr != nil {
		return nil, sendErr
	}
	return out, err
}

var _ Store = (*Actor)(nil)
