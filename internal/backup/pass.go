package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/aelpxy/stash/internal/store"
	"github.com/aelpxy/stash/internal/utils"
	"github.com/aelpxy/stash/pkg/models"
	"github.com/juju/clock"
	"github.com/lucsky/cuid"
	"github.com/rs/zerolog"
)

type PassOptions struct {
	Config     models.Config
	Repository store.Repository
	Runtime    Runtime
	Notifier   Notifier
	Artifacts  Artifacts
	Clock      clock.Clock
	Logger     zerolog.Logger
	RunID      string
	NewID      func() string
}

// Pass is a single scheduled run. It keeps no state between runs other than
// what the repository stores.
type Pass struct {
	cfg       models.Config
	repo      store.Repository
	runtime   Runtime
	notifier  Notifier
	artifacts Artifacts
	executor  *Executor
	clock     clock.Clock
	logger    zerolog.Logger
	runID     string
	newID     func() string
}

func NewPass(opts PassOptions) *Pass {
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.NewID == nil {
		opts.NewID = cuid.New
	}
	if opts.RunID == "" {
		opts.RunID = cuid.Slug()
	}
	if opts.Artifacts == nil {
		opts.Artifacts = DirArtifacts{Dir: opts.Config.BackupDirPath}
	}

	return &Pass{
		cfg:       opts.Config,
		repo:      opts.Repository,
		runtime:   opts.Runtime,
		notifier:  opts.Notifier,
		artifacts: opts.Artifacts,
		executor:  NewExecutor(opts.Runtime, opts.Config.BackupDirPath),
		clock:     opts.Clock,
		logger:    opts.Logger.With().Str("run", opts.RunID).Logger(),
		runID:     opts.RunID,
		newID:     opts.NewID,
	}
}

// Run executes the pass. Only store errors are returned; everything that
// goes wrong for a single container or instance ends up in the summary.
func (p *Pass) Run(ctx context.Context) (*Summary, error) {
	now := p.clock.Now().UTC()
	summary := &Summary{RunID: p.runID, StartedAt: now}

	loaded, err := p.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance store: %w", err)
	}
	table := make([]*models.Instance, len(loaded))
	for i := range loaded {
		table[i] = &loaded[i]
	}
	p.logger.Debug().Int("instances", len(table)).Str("store", p.repo.Location()).Msg("instance store loaded")

	due := p.decide(ctx, &table, now, summary)
	freed := p.prune(&table, due, now, summary)
	p.execute(ctx, table, due, freed, now, summary)

	out := make([]models.Instance, len(table))
	for i, inst := range table {
		out[i] = *inst
	}
	if err := p.repo.Save(ctx, out); err != nil {
		return nil, fmt.Errorf("failed to save instance store: %w", err)
	}

	if usage, err := utils.GetDiskUsage(p.cfg.BackupDirPath); err != nil {
		p.logger.Warn().Err(err).Msg("could not read free disk space")
	} else {
		summary.Disk = &usage
	}

	summary.FinishedAt = p.clock.Now().UTC()
	p.logger.Info().
		Int("created", summary.BackupsCreated).
		Int64("created_bytes", summary.CreatedBytes).
		Int("pruned", summary.RecordsPruned).
		Int64("pruned_bytes", summary.PrunedBytes).
		Int("warnings", len(summary.Warnings)).
		Int("failures", len(summary.Failures)).
		Dur("took", summary.Duration()).
		Msg("pass finished")

	p.notify(ctx, summary)

	return summary, nil
}

// decide reconciles the table with the runtime and returns the instances to
// back up. The decision is taken per container.
func (p *Pass) decide(ctx context.Context, table *[]*models.Instance, now time.Time, summary *Summary) map[*models.Instance]bool {
	due := make(map[*models.Instance]bool)

	containers, err := p.runtime.ListContainers(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("container listing failed, skipping backups")
		summary.Fail("container listing", err)
		return due
	}
	summary.Containers = len(containers)

	var rec ReconcileResult
	*table, rec = Reconcile(*table, containers, p.cfg, now, p.newID)
	for _, inst := range rec.Created {
		p.logger.Info().Str("instance", inst.ID).Str("container", inst.ContainerName).Str("path", inst.Path).Msg("tracking new instance")
	}
	for _, inst := range rec.Deleted {
		p.logger.Info().Str("instance", inst.ID).Str("container", inst.ContainerName).Str("path", inst.Path).Msg("instance no longer configured")
	}
	summary.NewInstances = len(rec.Created)
	summary.Deleted = len(rec.Deleted)

	groups := LiveByContainer(*table, containers)
	for _, c := range containers {
		instances := groups[c.ID]
		if len(instances) == 0 {
			continue
		}
		log := p.logger.With().Str("container", c.Name).Str("id", c.ShortID()).Logger()

		state, err := p.runtime.InspectState(ctx, c.ID)
		if err != nil {
			log.Warn().Err(err).Msg("activity probe failed, container not due")
			summary.Fail(c.Name, err)
			continue
		}

		act := NewActivity(state, now)
		if act.HasRun() {
			for _, inst := range instances {
				inst.LastAliveAt = models.TimePtr(act.LastAliveAt)
			}
		}

		if !IsDue(act, instances, p.cfg.MinBackupInterval, now) {
			log.Debug().Bool("running", act.Running).Msg("container not due")
			continue
		}

		log.Debug().Int("instances", len(instances)).Msg("container due")
		summary.DueContainers++
		for _, inst := range instances {
			due[inst] = true
		}
	}

	return due
}

// prune applies both retention policies before anything new is written and
// returns the bytes freed per instance.
func (p *Pass) prune(table *[]*models.Instance, due map[*models.Instance]bool, now time.Time, summary *Summary) map[*models.Instance]int64 {
	freed := make(map[*models.Instance]int64)
	kept := (*table)[:0]
	for _, inst := range *table {
		var result PruneResult
		gone := false

		switch {
		case inst.IsDeleted() && p.cfg.GhostPruningEnabled():
			result, gone = PruneGhost(inst, p.cfg.GhostBackupKeepDays, now, p.artifacts)
		case !inst.IsDeleted() && p.cfg.CountPruningEnabled():
			reserve := due[inst] && !inst.HasBackupOn(now)
			result = PruneCount(inst, p.cfg.BackupKeepNum, reserve, p.artifacts)
		}

		for _, err := range result.Errors {
			p.logger.Warn().Err(err).Str("instance", inst.ID).Msg("could not remove artifact")
			summary.Warnf("%s: %v", inst, err)
		}
		if result.Removed > 0 {
			p.logger.Info().Str("instance", inst.ID).Int("removed", result.Removed).Int64("freed_bytes", result.FreedBytes).Msg("pruned backups")
		}
		summary.RecordsPruned += result.Removed
		summary.PrunedBytes += result.FreedBytes
		freed[inst] = result.FreedBytes

		if gone {
			p.logger.Info().Str("instance", inst.ID).Str("container", inst.ContainerName).Str("path", inst.Path).Msg("removed ghost instance")
			summary.GhostsRemoved++
			continue
		}
		kept = append(kept, inst)
	}
	*table = kept

	return freed
}

// execute backs up each due instance on its own. A failure leaves the
// instance untouched and does not stop its siblings.
func (p *Pass) execute(ctx context.Context, table []*models.Instance, due map[*models.Instance]bool, freed map[*models.Instance]int64, now time.Time, summary *Summary) {
	warnBytes := p.cfg.WarnLargeBackupBytes()

	for _, inst := range table {
		if !due[inst] {
			continue
		}
		log := p.logger.With().Str("instance", inst.ID).Str("container", inst.ContainerName).Str("path", inst.Path).Logger()

		// an artifact for an older day could land on a file the history
		// still points to
		if !inst.AcceptsBackupOn(now) {
			err := fmt.Errorf("clock is behind the latest backup of %s", inst)
			log.Warn().Err(err).Msg("backup skipped")
			summary.Fail(inst.String(), err)
			continue
		}

		rec, err := p.executor.Backup(ctx, inst, now)
		if err != nil {
			log.Warn().Err(err).Msg("backup failed")
			summary.Fail(inst.String(), err)
			continue
		}

		replaced, err := inst.AddBackup(rec)
		if err != nil {
			log.Warn().Err(err).Msg("backup not recorded")
			summary.Fail(inst.String(), err)
			if rmErr := p.artifacts.Remove(rec.File); rmErr != nil {
				log.Warn().Err(rmErr).Msg("could not remove unrecorded artifact")
			}
			continue
		}
		inst.LastBackupAt = models.TimePtr(now)

		if replaced != nil {
			freed[inst] += replaced.SizeBytes
			summary.RecordsPruned++
			summary.PrunedBytes += replaced.SizeBytes
			if replaced.File != rec.File {
				if err := p.artifacts.Remove(replaced.File); err != nil {
					log.Warn().Err(err).Msg("could not remove replaced artifact")
					summary.Warnf("%s: %v", inst, err)
				}
			}
		}

		summary.BackupsCreated++
		summary.CreatedBytes += rec.SizeBytes
		log.Info().Int64("size_bytes", rec.SizeBytes).Str("file", rec.File).Msg("backup created")

		if growth := rec.SizeBytes - freed[inst]; growth > warnBytes {
			log.Warn().Int64("growth_bytes", growth).Msg("large backup")
			summary.Warnf("large backup for %s: %s more than before", inst, utils.FormatBytes(growth))
		}
	}
}

func (p *Pass) notify(ctx context.Context, summary *Summary) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, summary); err != nil {
		p.logger.Warn().Err(err).Msg("failed to deliver notification")
	}
}
