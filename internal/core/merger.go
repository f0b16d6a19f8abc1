package core

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/louib/keepass-merge/internal/credentials"
	"github.com/louib/keepass-merge/internal/vault"
)

// State is a step of a merge run
type State int

const (
	Init State = iota
	DestKeyResolved
	DestOpened
	SrcKeyResolved
	SrcOpened
	Merged
	Decided
	Terminal
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case DestKeyResolved:
		return "destination-key-resolved"
	case DestOpened:
		return "destination-opened"
	case SrcKeyResolved:
		return "source-key-resolved"
	case SrcOpened:
		return "source-opened"
	case Merged:
		return "merged"
	case Decided:
		return "decided"
	case Terminal:
		return "terminal"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Decision is what happens to the merged destination
type Decision int

const (
	Undecided Decision = iota
	Persist
	AbortWarnings
	AbortDryRun
	AbortNothingToMerge
)

func (d Decision) String() string {
	switch d {
	case Undecided:
		return "undecided"
	case Persist:
		return "persist"
	case AbortWarnings:
		return "abort-warnings"
	case AbortDryRun:
		return "abort-dry-run"
	case AbortNothingToMerge:
		return "abort-nothing-to-merge"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Policy is fixed for a run
type Policy struct {
	Force           bool
	DryRun          bool
	SameCredentials bool
}

// Decide applies policy to a merge report. Unforced warnings win over a dry
// run, which wins over an empty report.
func Decide(p Policy, report *vault.MergeReport) Decision {
	switch {
	case len(report.Warnings) > 0 && !p.Force:
		return AbortWarnings
	case p.DryRun:
		return AbortDryRun
	case len(report.Events) == 0:
		return AbortNothingToMerge
	default:
		return Persist
	}
}

// KeyResolver builds the key of one database role
type KeyResolver interface {
	Resolve(ctx context.Context, role credentials.Role, strategy credentials.Strategy, cfg credentials.RoleConfig) (*vault.Key, error)
}

// Gateway opens, merges and saves databases
type Gateway interface {
	Open(ctx context.Context, path string, key *vault.Key) (*vault.Database, error)
	Merge(dst, src *vault.Database) (*vault.MergeReport, error)
	Save(ctx context.Context, db *vault.Database, path string, key *vault.Key) error
}

// VaultGateway is the Gateway backed by the vault package
type VaultGateway struct{}

func (VaultGateway) Open(ctx context.Context, path string, key *vault.Key) (*vault.Database, error) {
	return vault.Open(ctx, path, key)
}

func (VaultGateway) Merge(dst, src *vault.Database) (*vault.MergeReport, error) {
	return vault.Merge(dst, src)
}

func (VaultGateway) Save(ctx context.Context, db *vault.Database, path string, key *vault.Key) error {
	return vault.Save(ctx, db, path, key)
}

// BackupFunc copies the file at path before it is overwritten and returns
// the copy's path
type BackupFunc func(path string, now time.Time) (string, error)

// Request describes one merge run
type Request struct {
	DestinationPath string
	SourcePath      string
	Destination     credentials.RoleConfig
	Source          credentials.RoleConfig
	Policy          Policy
	// Backup the destination before persisting
	Backup bool
}

// Outcome is the result of a run that got past credential resolution
type Outcome struct {
	State    State
	Decision Decision
	Report   *vault.MergeReport
	// BackupPath is set when a backup was written
	BackupPath string

	// Destination tree before and after the merge
	Before *vault.Group
	After  *vault.Group
}

// Failed reports whether the run must exit unsuccessfully although no
// error was returned
func (o *Outcome) Failed() bool {
	return o.Decision == AbortWarnings
}

// Merger runs merges
type Merger struct {
	Resolver KeyResolver
	Gateway  Gateway
	Backup   BackupFunc
	Log      logrus.FieldLogger
	Now      func() time.Time
}

// NewMerger returns a Merger backed by the vault package
func NewMerger(resolver KeyResolver, backup BackupFunc, log logrus.FieldLogger) *Merger {
	return &Merger{
		Resolver: resolver,
		Gateway:  VaultGateway{},
		Backup:   backup,
		Log:      log,
		Now:      time.Now,
	}
}

// Run merges the source database into the destination database. The
// returned Outcome is non-nil whenever an error is, and records the state
// reached.
func (m *Merger) Run(ctx context.Context, req Request) (*Outcome, error) {
	out := &Outcome{State: Init}
	log := m.Log.WithFields(logrus.Fields{
		"destination": req.DestinationPath,
		"source":      req.SourcePath,
	})
	step := func(s State) {
		out.State = s
		log.WithField("state", s).Debug("Merge state changed")
	}

	dstCfg := req.Destination
	dstCfg.Path = req.DestinationPath
	dstCfg.SameCredentials = req.Policy.SameCredentials
	dstKey, err := m.Resolver.Resolve(ctx, credentials.Destination, credentials.Independent{}, dstCfg)
	if err != nil {
		return out, classify(credentials.Destination, req.DestinationPath, err)
	}
	defer dstKey.Destroy()
	step(DestKeyResolved)

	dst, err := m.Gateway.Open(ctx, req.DestinationPath, dstKey)
	if err != nil {
		return out, classify(credentials.Destination, req.DestinationPath, err)
	}
	step(DestOpened)

	var strategy credentials.Strategy = credentials.Independent{}
	if req.Policy.SameCredentials {
		strategy = credentials.Shared{Key: dstKey}
	}
	srcCfg := req.Source
	srcCfg.Path = req.SourcePath
	srcKey, err := m.Resolver.Resolve(ctx, credentials.Source, strategy, srcCfg)
	if err != nil {
		return out, classify(credentials.Source, req.SourcePath, err)
	}
	if srcKey != dstKey {
		defer srcKey.Destroy()
	}
	step(SrcKeyResolved)

	src, err := m.Gateway.Open(ctx, req.SourcePath, srcKey)
	if err != nil {
		return out, classify(credentials.Source, req.SourcePath, err)
	}
	step(SrcOpened)

	out.Before = dst.Root
	report, err := m.Gateway.Merge(dst, src)
	if err != nil {
		return out, classify(credentials.Source, req.SourcePath, err)
	}
	out.Report = report
	out.After = dst.Root
	log.WithFields(logrus.Fields{
		"events":   len(report.Events),
		"warnings": len(report.Warnings),
	}).Debug("Merged")
	step(Merged)

	out.Decision = Decide(req.Policy, report)
	log.WithField("decision", out.Decision).Debug("Decided")
	step(Decided)

	if out.Decision != Persist {
		step(Terminal)
		return out, nil
	}

	if err := ctx.Err(); err != nil {
		return out, classify(credentials.Destination, req.DestinationPath, err)
	}

	if req.Backup && m.Backup != nil {
		path, err := m.Backup(req.DestinationPath, m.Now())
		if err != nil {
			return out, &Error{Class: IOError, Role: credentials.Destination, Path: req.DestinationPath, Err: err}
		}
		out.BackupPath = path
		log.WithField("backup", path).Info("Backup written")
	}

	if err := m.Gateway.Save(ctx, dst, req.DestinationPath, dstKey); err != nil {
		return out, &Error{Class: IOError, Role: credentials.Destination, Path: req.DestinationPath, Err: err}
	}
	log.Info("Destination saved")
	step(Terminal)
	return out, nil
}
