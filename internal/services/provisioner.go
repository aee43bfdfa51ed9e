package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"asteriskgui/internal/database"
	"asteriskgui/internal/models"

	"go.uber.org/zap"
)

// Reloader applies regenerated configuration inside Asterisk.
type Reloader interface {
	ReloadPJSIP(ctx context.Context) error
	ReloadQueues(ctx context.Context) error
}

// SystemEvents receives console-level events for connected browsers.
type SystemEvents interface {
	BroadcastSystem(event string, data any)
}

type Module int

const (
	ModulePJSIP Module = iota
	ModuleQueues
)

func (m Module) String() string {
	if m == ModuleQueues {
		return "queues"
	}
	return "pjsip"
}

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validID(id string) bool {
	return idPattern.MatchString(id)
}

// singleLine rejects values that would break out of a config line.
func singleLine(values ...string) error {
	for _, v := range values {
		if strings.ContainsAny(v, "\r\n[]") {
			return fmt.Errorf("%w: %q", ErrInvalidValue, v)
		}
	}
	return nil
}

// Provisioner runs the post-mutation pipeline: snapshot the generated
// directory, regenerate the affected file, reload the module and audit.
// Runs are serialized so each regeneration sees a settled database.
type Provisioner struct {
	mu        sync.Mutex
	db        *database.DB
	generator *ConfigGenerator
	snapshots *SnapshotService
	reloader  Reloader
	audit     *AuditService
	events    SystemEvents
	logger    *zap.Logger
}

type ProvisionerDeps struct {
	DB        *database.DB
	Generator *ConfigGenerator
	Snapshots *SnapshotService
	Reloader  Reloader
	Audit     *AuditService
	Events    SystemEvents
	Logger    *zap.Logger
}

func NewProvisioner(deps ProvisionerDeps) *Provisioner {
	return &Provisioner{
		db:        deps.DB,
		generator: deps.Generator,
		snapshots: deps.Snapshots,
		reloader:  deps.Reloader,
		audit:     deps.Audit,
		events:    deps.Events,
		logger:    deps.Logger.Named("provisioner"),
	}
}

type change struct {
	module  Module
	comment string
	action  string
	details any
}

func (p *Provisioner) apply(ctx context.Context, actor Actor, c change) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.snapshots.Create(c.comment, actor.Username); err != nil {
		p.logger.Warn("snapshot before regeneration failed", zap.String("comment", c.comment), zap.Error(err))
	}

	if err := p.regenerate(ctx, c.module); err != nil {
		return err
	}

	if err := p.reload(ctx, c.module); err != nil {
		p.logger.Warn("reload failed, config was saved",
			zap.Stringer("module", c.module), zap.String("action", c.action), zap.Error(err))
	}

	p.audit.Log(ctx, actor, c.action, c.details)
	return nil
}

// RegenerateAll rewrites every generated file from the database.
func (p *Provisioner) RegenerateAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.regenerate(ctx, ModulePJSIP); err != nil {
		return err
	}
	return p.regenerate(ctx, ModuleQueues)
}

func (p *Provisioner) regenerate(ctx context.Context, m Module) error {
	switch m {
	case ModuleQueues:
		queues, err := listQueues(ctx, p.db)
		if err != nil {
			return err
		}
		if err := p.generator.WriteQueues(queues); err != nil {
			return fmt.Errorf("failed to generate queues config: %w", err)
		}
	default:
		accounts, err := listSIPAccounts(ctx, p.db)
		if err != nil {
			return err
		}
		trunks, err := listTrunks(ctx, p.db)
		if err != nil {
			return err
		}
		if err := p.generator.WritePJSIP(accounts, trunks); err != nil {
			return fmt.Errorf("failed to generate pjsip config: %w", err)
		}
	}
	return nil
}

func (p *Provisioner) reload(ctx context.Context, m Module) error {
	if m == ModuleQueues {
		return p.reloader.ReloadQueues(ctx)
	}
	return p.reloader.ReloadPJSIP(ctx)
}

// RestoreSnapshot copies a snapshot back over the generated directory and
// reloads both modules. Reload failures are warnings.
func (p *Provisioner) RestoreSnapshot(ctx context.Context, actor Actor, id string) (*models.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, err := p.snapshots.Restore(id)
	if err != nil {
		return nil, err
	}

	p.reloadAll(ctx, "snapshot restore")
	p.audit.Log(ctx, actor, ActionSnapshotRestored, map[string]any{"snapshotId": id, "comment": snap.Comment})
	p.broadcast("snapshot_restored", map[string]any{"snapshotId": id, "restoredBy": actor.Username})
	return snap, nil
}

// CreateSnapshot records a manual snapshot.
func (p *Provisioner) CreateSnapshot(ctx context.Context, actor Actor, comment string) (*models.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, err := p.snapshots.Create(comment, actor.Username)
	if err != nil {
		return nil, err
	}
	p.audit.Log(ctx, actor, ActionSnapshotCreated, map[string]any{"snapshotId": snap.ID, "comment": comment})
	return snap, nil
}

func (p *Provisioner) DeleteSnapshot(ctx context.Context, actor Actor, id string) error {
	if err := p.snapshots.Delete(id); err != nil {
		return err
	}
	p.audit.Log(ctx, actor, ActionSnapshotDeleted, map[string]any{"snapshotId": id})
	return nil
}

func (p *Provisioner) reloadAll(ctx context.Context, reason string) {
	if err := p.reloader.ReloadPJSIP(ctx); err != nil {
		p.logger.Warn("pjsip reload failed", zap.String("reason", reason), zap.Error(err))
	}
	if err := p.reloader.ReloadQueues(ctx); err != nil {
		p.logger.Warn("queues reload failed", zap.String("reason", reason), zap.Error(err))
	}
}

func (p *Provisioner) broadcast(event string, data any) {
	if p.events != nil {
		p.events.BroadcastSystem(event, data)
	}
}
