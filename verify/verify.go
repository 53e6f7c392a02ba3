package verify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/acepocalypse/ntl-academies-tracker/tabular"
)

// Status classifies one removed record after verification.
type Status string

const (
	// StatusConfirmedMissing: the probe corroborated the removal.
	StatusConfirmedMissing Status = "confirmed_missing"
	// StatusStillPresent: the page still serves. A scrape miss, demoted out
	// of the removal set.
	StatusStillPresent Status = "still_present"
	// StatusCheckError: the probe failed or returned an inconclusive status;
	// the record stays flagged rather than being silently dropped.
	StatusCheckError Status = "check_error"
	// StatusNotSupported: the source has no registered profile.
	StatusNotSupported Status = "not_supported"
	// StatusNoIdentifier: the record carries no dereferenceable URL.
	StatusNoIdentifier Status = "no_identifier"
)

// Annotation columns attached to every verified record.
const (
	ColStatus = "double_check_status"
	ColDetail = "double_check_detail"
)

// Outcome partitions a removed table after verification. Confirmed keeps
// everything that could not be proven present (including unverifiable and
// errored records); StillPresent holds demoted false positives; Errors is the
// check_error subset of Confirmed, surfaced separately for reporting.
type Outcome struct {
	Confirmed    *tabular.Table
	StillPresent *tabular.Table
	Errors       *tabular.Table
}

// Config configures a Verifier.
type Config struct {
	Probe ProberConfig
	// Concurrency caps in-flight probes per source. Default: 4.
	Concurrency int
	// RatePerSec paces probes against one source. Default: 2 req/s.
	RatePerSec float64
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 2
	}
}

// Verifier re-probes candidate removals against their live source.
type Verifier struct {
	prober   *Prober
	profiles map[string]*Profile
	config   Config
	logger   *slog.Logger
}

// New creates a Verifier. When profiles is nil the builtin academy profiles
// are used.
func New(cfg Config, profiles map[string]*Profile, logger *slog.Logger) *Verifier {
	cfg.defaults()
	if profiles == nil {
		profiles = BuiltinProfiles()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		prober:   NewProber(cfg.Probe),
		profiles: profiles,
		config:   cfg,
		logger:   logger,
	}
}

// VerifyRemoved probes every record of the removed partition once and
// partitions the result.
//
// Records without an identifier or without a registered profile are kept in
// Confirmed with pass-through statuses: unverifiable removals are surfaced,
// never dropped. Probes run on a bounded worker pool with shared pacing; one
// record's failure never affects another's classification, and there is no
// retry at this layer. Callers re-run verification on a later cycle instead.
func (v *Verifier) VerifyRemoved(ctx context.Context, sourceID string, removed *tabular.Table) *Outcome {
	out := emptyOutcome(removed)
	if removed.Empty() {
		return out
	}

	profile := v.profiles[sourceID]

	type verdict struct {
		status Status
		detail string
	}
	verdicts := make([]verdict, removed.Len())

	limiter := rate.NewLimiter(rate.Limit(v.config.RatePerSec), 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.config.Concurrency)

	for i, row := range removed.Rows {
		url := ""
		if profile != nil {
			url = row.Get(profile.IdentifierField)
		} else {
			url = row.Get("profile_url")
		}

		switch {
		case url == "":
			verdicts[i] = verdict{status: StatusNoIdentifier}
			continue
		case profile == nil:
			verdicts[i] = verdict{status: StatusNotSupported}
			continue
		}

		g.Go(func() error {
			status, detail := v.probeOne(gctx, limiter, profile, url)
			verdicts[i] = verdict{status: status, detail: detail}
			return nil
		})
	}
	// Workers never return errors; classification absorbs every failure.
	g.Wait()

	for i, row := range removed.Rows {
		annotated := row.Clone()
		annotated[ColStatus] = string(verdicts[i].status)
		annotated[ColDetail] = verdicts[i].detail

		switch verdicts[i].status {
		case StatusStillPresent:
			out.StillPresent.Append(annotated)
		case StatusCheckError:
			out.Errors.Append(annotated)
			out.Confirmed.Append(annotated)
		default:
			out.Confirmed.Append(annotated)
		}
	}

	v.logger.Info("verify: removals checked",
		"source_id", sourceID,
		"candidates", removed.Len(),
		"confirmed", out.Confirmed.Len(),
		"still_present", out.StillPresent.Len(),
		"errors", out.Errors.Len())
	return out
}

// probeOne issues the single bounded probe for one record and classifies it.
func (v *Verifier) probeOne(ctx context.Context, limiter *rate.Limiter, profile *Profile, url string) (Status, string) {
	if err := limiter.Wait(ctx); err != nil {
		return StatusCheckError, "request_error=" + err.Error()
	}

	res, err := v.prober.Get(ctx, url)
	if err != nil {
		return StatusCheckError, "request_error=" + err.Error()
	}

	detail := fmt.Sprintf("status=%d", res.StatusCode)
	switch profile.Classify(res.StatusCode, res.Body) {
	case VerdictMissing:
		return StatusConfirmedMissing, detail
	case VerdictPresent:
		return StatusStillPresent, detail
	default:
		// Unknown state: surface status and page title for manual follow-up.
		if res.Title != "" {
			detail += " title=" + res.Title
		}
		return StatusCheckError, detail
	}
}

// emptyOutcome builds the three annotated tables sharing the removed schema.
func emptyOutcome(removed *tabular.Table) *Outcome {
	var cols, key []string
	if removed != nil {
		cols = slices.Clone(removed.Columns)
		key = removed.Key
	}
	cols = append(cols, ColStatus, ColDetail)
	return &Outcome{
		Confirmed:    tabular.NewTable(cols, key),
		StillPresent: tabular.NewTable(cols, key),
		Errors:       tabular.NewTable(cols, key),
	}
}
