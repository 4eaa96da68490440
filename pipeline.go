// Package changedetect runs the facilities change-detection pipeline: load
// the curated reference dataset and a fresh authority dataset, match
// records between them, diff matched pairs, classify every record into a
// change category, and write the report layers plus an audit trail.
package changedetect

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/facilitymap/changedetect/internal/gpkg"
	"github.com/facilitymap/changedetect/internal/store"
	"github.com/facilitymap/changedetect/pkg/classifier"
	"github.com/facilitymap/changedetect/pkg/differ"
	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/facilities"
	"github.com/facilitymap/changedetect/pkg/logging"
	"github.com/facilitymap/changedetect/pkg/matcher"
	"github.com/facilitymap/changedetect/pkg/normalize"
	"github.com/facilitymap/changedetect/pkg/report"
)

// Result is the outcome of one detection run.
type Result struct {
	RunID   string
	Records []facilities.ChangeRecord
	Summary facilities.RunSummary
	Report  *report.Report
}

// Pipeline wires the engine components for one authority.
type Pipeline struct {
	cfg     *config
	matcher *matcher.Matcher
	differ  *differ.Differ
}

// New builds a Pipeline from options. A reader and a source are required;
// invalid tuning values fail here, before any work is done.
func New(opts ...Option) (*Pipeline, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.reader == nil {
		return nil, errors.NewConfigError("pipeline", "a reference reader is required", nil)
	}
	if cfg.source == nil {
		return nil, errors.NewConfigError("pipeline", "an authority source is required", nil)
	}
	if cfg.audit == nil {
		cfg.audit = store.NewMemoryAudit()
	}
	if cfg.log == nil {
		cfg.log = logging.Default()
	}

	d, err := differ.New(cfg.fields,
		differ.WithGeometryEpsilon(cfg.geometryEpsilon),
		differ.WithPointTolerance(cfg.pointTolerance),
	)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg: cfg,
		matcher: matcher.New(
			matcher.WithBufferDistance(cfg.bufferDistance),
			matcher.WithFuzzyThreshold(cfg.fuzzyThreshold),
			matcher.WithDecayDistance(cfg.decayDistance),
		),
		differ: d,
	}, nil
}

// Run executes the pipeline once. Fatal conditions (unreachable reference
// store, unavailable source) abort before any ChangeRecord is produced; a
// partial source set must never masquerade as mass removal.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	ctx = logging.WithLogger(ctx, p.cfg.log)
	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithAuthority(ctx, string(p.cfg.source.Use().Authority()))
	ctx = logging.WithField(ctx, "source", p.cfg.source.ID())
	log := logging.Ctx(ctx)

	if err := p.cfg.reader.TestConnection(ctx); err != nil {
		p.logTask(ctx, store.TaskTestConnection, "error", err.Error())
		return nil, err
	}
	p.logTask(ctx, store.TaskTestConnection, "info", "reference store reachable")

	refs, sourceRecords, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().Int("facilities", len(refs)).Int("source_records", len(sourceRecords)).
		Msg("loaded datasets")

	active, skipped := p.normalizeAll(log, refs, sourceRecords)

	candidates := p.matcher.Match(active, refs)
	matched := 0
	for i := range candidates {
		if candidates[i].Matched() {
			matched++
		}
	}
	p.logTask(ctx, store.TaskMatch, "info",
		fmt.Sprintf("matched %d of %d source records", matched, len(active)))

	cls := classifier.New(p.differ,
		classifier.WithUser(p.cfg.user),
		classifier.WithRunID(runID),
	)
	records, summary := cls.Classify(candidates, refs, skipped)
	p.logTask(ctx, store.TaskClassify, "info", summary.String())

	rep := report.Build(records, summary, string(p.cfg.source.Use().Authority()))
	if err := p.writeOutputs(ctx, rep); err != nil {
		return nil, err
	}

	if err := p.cfg.audit.LogResult(ctx, summary); err != nil {
		return nil, err
	}
	log.Info().Str("summary", summary.String()).Msg("run complete")

	return &Result{
		RunID:   runID,
		Records: records,
		Summary: summary,
		Report:  rep,
	}, nil
}

func (p *Pipeline) load(ctx context.Context) ([]*facilities.Facility, []*facilities.SourceRecord, error) {
	refs, err := p.cfg.reader.Load(ctx, p.cfg.source.Use())
	if err != nil {
		p.logTask(ctx, store.TaskLoadSourceData, "error", err.Error())
		return nil, nil, err
	}
	sourceRecords, err := p.cfg.source.Fetch(ctx)
	if err != nil {
		p.logTask(ctx, store.TaskLoadSourceData, "error", err.Error())
		return nil, nil, err
	}
	p.logTask(ctx, store.TaskLoadSourceData, "info",
		fmt.Sprintf("loaded %d facilities and %d source records", len(refs), len(sourceRecords)))
	return refs, sourceRecords, nil
}

// normalizeAll canonicalizes both record sets. Source records an authority
// filter excluded, or that fail normalization, move to the skipped set;
// facilities always stay in the run so each one still gets a verdict.
func (p *Pipeline) normalizeAll(log *zerolog.Logger, refs []*facilities.Facility, sourceRecords []*facilities.SourceRecord) (active, skipped []*facilities.SourceRecord) {
	for _, ref := range refs {
		if err := normalize.Facility(ref); err != nil {
			log.Warn().Int("facility_id", ref.FacilityID).Err(err).
				Msg("facility failed normalization")
		}
	}

	for _, src := range sourceRecords {
		if src.Ignored {
			skipped = append(skipped, src)
			continue
		}
		if err := normalize.Source(src); err != nil {
			src.Ignored = true
			src.IgnoredReason = err.Error()
			skipped = append(skipped, src)
			log.Warn().Str("source_id", src.SourceID).Err(err).
				Msg("source record failed normalization")
			continue
		}
		active = append(active, src)
	}
	return active, skipped
}

func (p *Pipeline) writeOutputs(ctx context.Context, rep *report.Report) error {
	if p.cfg.outputDir == "" || (!p.cfg.geoJSON && !p.cfg.gpkg) {
		p.logTask(ctx, store.TaskWriteOutput, "info", "file output disabled")
		return nil
	}
	if p.cfg.geoJSON {
		if err := rep.WriteGeoJSON(p.cfg.outputDir); err != nil {
			p.logTask(ctx, store.TaskWriteOutput, "error", err.Error())
			return err
		}
	}
	if p.cfg.gpkg {
		path := filepath.Join(p.cfg.outputDir, "facilities_change_detection.gpkg")
		if err := gpkg.Write(path, rep); err != nil {
			p.logTask(ctx, store.TaskWriteOutput, "error", err.Error())
			return err
		}
	}
	p.logTask(ctx, store.TaskWriteOutput, "info",
		fmt.Sprintf("wrote report to %s", p.cfg.outputDir))
	return nil
}

// logTask writes an audit row, correlated by the run id carried in the
// context. Audit failures are logged but never fail the phase they describe.
func (p *Pipeline) logTask(ctx context.Context, task, level, comment string) {
	if err := p.cfg.audit.LogTask(ctx, logging.RunID(ctx), task, level, comment); err != nil {
		logging.Ctx(logging.WithTask(ctx, task)).Error().Err(err).Msg("audit log write failed")
	}
}
