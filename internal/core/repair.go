package core

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/louib/keepass-merge/internal/credentials"
	"github.com/louib/keepass-merge/internal/vault"
)

// RepairRequest describes one repair run
type RepairRequest struct {
	Path        string
	Credentials credentials.RoleConfig
	DryRun      bool
}

// RepairOutcome lists the fixes and whether they were saved
type RepairOutcome struct {
	Fixes []vault.Fix
	Saved bool
}

// Repairer adds missing timestamps to a database
type Repairer struct {
	Resolver KeyResolver
	Gateway  Gateway
	Log      logrus.FieldLogger
	Now      func() time.Time
}

// NewRepairer returns a Repairer backed by the vault package
func NewRepairer(resolver KeyResolver, log logrus.FieldLogger) *Repairer {
	return &Repairer{Resolver: resolver, Gateway: VaultGateway{}, Log: log, Now: time.Now}
}

// Run repairs the database at req.Path. Nothing is written when there is
// nothing to fix or on a dry run.
func (r *Repairer) Run(ctx context.Context, req RepairRequest) (*RepairOutcome, error) {
	db, key, err := OpenDatabase(ctx, r.Resolver, r.Gateway, req.Path, req.Credentials)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	out := &RepairOutcome{Fixes: db.Repair(r.Now())}
	r.Log.WithFields(logrus.Fields{"path": req.Path, "fixes": len(out.Fixes)}).Debug("Repaired")

	if len(out.Fixes) == 0 || req.DryRun {
		return out, nil
	}

	if err := r.Gateway.Save(ctx, db, req.Path, key); err != nil {
		return out, &Error{Class: IOError, Role: credentials.Destination, Path: req.Path, Err: err}
	}
	out.Saved = true
	return out, nil
}

// OpenDatabase resolves the credentials of a single database and opens it.
// The caller destroys the returned key.
func OpenDatabase(ctx context.Context, resolver KeyResolver, gateway Gateway, path string, cfg credentials.RoleConfig) (*vault.Database, *vault.Key, error) {
	cfg.Path = path
	if cfg.PromptID == "" {
		cfg.PromptID = "prompt.password"
	}
	key, err := resolver.Resolve(ctx, credentials.Destination, credentials.Independent{}, cfg)
	if err != nil {
		return nil, nil, classify(credentials.Destination, path, err)
	}

	db, err := gateway.Open(ctx, path, key)
	if err != nil {
		key.Destroy()
		return nil, nil, classify(credentials.Destination, path, err)
	}
	return db, key, nil
}
