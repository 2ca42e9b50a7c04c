// Package defect turns oracle-reported anomalies into deduplicated issue tracker tickets with
// uploaded evidence.
package defect

import (
	"context"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/issuetracker"
	"github.com/hairizuanbinnoorazman/ui-sentinel/logger"
	"github.com/hairizuanbinnoorazman/ui-sentinel/noise"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
	"github.com/hairizuanbinnoorazman/ui-sentinel/storage"
)

// DefaultSummaryPrefix marks tickets filed by the agent.
const DefaultSummaryPrefix = "[ui-sentinel]"

type Status string

const (
	StatusFiled     Status = "filed"
	StatusDuplicate Status = "duplicate"
	StatusIgnored   Status = "ignored"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	// StatusRejected means the second review judged the defect a false alarm.
	StatusRejected Status = "rejected"
)

// Confirmer takes a second look at a defect before it is filed.
type Confirmer interface {
	Confirm(ctx context.Context, in oracle.ConfirmInput) (oracle.Confirmation, error)
}

// Result describes what Report did with a defect.
type Result struct {
	Status    Status
	Signature string
	IssueKey  string
	IssueURL  string
	Err       error
}

type Options struct {
	RunID         string
	StartURL      string
	Backend       string
	SummaryPrefix string
	ProjectKey    string
	IssueType     string
	Repository    string
	Labels        []string
}

// Reporter files defects. Both tracker and store may be nil.
type Reporter struct {
	tracker   issuetracker.Client
	store     storage.BlobStorage
	confirmer Confirmer
	rules     noise.RuleSet
	opts      Options
	logger    logger.Logger
	now       func() time.Time
}

func NewReporter(tracker issuetracker.Client, store storage.BlobStorage, rules noise.RuleSet, opts Options, log logger.Logger) *Reporter {
	if log == nil {
		log = logger.Nop{}
	}
	if opts.RunID == "" {
		opts.RunID = "local"
	}
	return &Reporter{
		tracker: tracker,
		store:   store,
		rules:   rules,
		opts:    opts,
		logger:  log.WithField("component", "defect"),
		now:     time.Now,
	}
}

// WithConfirmer makes Report ask c about every new defect before filing it.
func (r *Reporter) WithConfirmer(c Confirmer) *Reporter {
	r.confirmer = c
	return r
}

// Report files d unless its signature is already in seen, the ignore rules reject it or the
// confirmer rejects it. Ignored, rejected and skipped defects are remembered as well, so the loop
// logs them once. A failed review or filing is not remembered and may be retried by a later
// iteration.
func (r *Reporter) Report(ctx context.Context, seen *SignatureSet, d oracle.Defect, ev Evidence) Result {
	sig := Signature(d)
	fields := map[string]interface{}{"signature": sig[:16], "title": d.Title}

	if seen.Has(sig) {
		r.logger.Debug(ctx, "duplicate defect", fields)
		return Result{Status: StatusDuplicate, Signature: sig}
	}

	if r.rules.IgnoreDefect(d.Title, d.Description) {
		seen.Add(sig)
		r.logger.Info(ctx, "defect matches ignore rules", fields)
		return Result{Status: StatusIgnored, Signature: sig}
	}

	if r.confirmer != nil {
		verdict, err := r.confirmer.Confirm(ctx, oracle.ConfirmInput{
			Defect:     d,
			URL:        ev.URL,
			Console:    ev.Console,
			Network:    ev.Network,
			Screenshot: ev.Screenshot,
		})
		if err != nil {
			fields["error"] = err.Error()
			r.logger.Warn(ctx, "defect review failed, will retry", fields)
			return Result{Status: StatusFailed, Signature: sig, Err: err}
		}
		if !verdict.Confirmed {
			seen.Add(sig)
			fields["reason"] = verdict.Reason
			r.logger.Info(ctx, "defect rejected on review", fields)
			return Result{Status: StatusRejected, Signature: sig}
		}
	}

	if r.tracker == nil {
		seen.Add(sig)
		r.logger.Info(ctx, "no issue tracker configured, defect not filed", fields)
		return Result{Status: StatusSkipped, Signature: sig}
	}

	if ev.CapturedAt.IsZero() {
		ev.CapturedAt = r.now()
	}
	if d.Severity == "" {
		d.Severity = oracle.SeverityMajor
	}

	prefix := r.opts.SummaryPrefix
	if prefix == "" {
		prefix = DefaultSummaryPrefix
	}

	attachments := r.uploadEvidence(ctx, sig, ev)
	input := issuetracker.CreateIssueInput{
		Title: buildTitle(prefix, d, ev.URL),
		Description: buildDescription(descriptionInput{
			Defect:      d,
			StartURL:    r.opts.StartURL,
			Backend:     r.opts.Backend,
			Evidence:    ev,
			Attachments: attachments,
		}),
		Severity:   string(d.Severity),
		ProjectKey: r.opts.ProjectKey,
		IssueType:  r.opts.IssueType,
		Repository: r.opts.Repository,
		Labels:     r.opts.Labels,
	}

	issue, err := r.tracker.CreateIssue(ctx, input)
	if err != nil {
		fields["error"] = err.Error()
		r.logger.Error(ctx, "failed to file defect", fields)
		return Result{Status: StatusFailed, Signature: sig, Err: err}
	}

	seen.Add(sig)
	fields["issue"] = issue.ExternalID
	fields["severity"] = string(d.Severity)
	fields["attachments"] = len(attachments)
	r.logger.Info(ctx, "defect filed", fields)
	return Result{Status: StatusFiled, Signature: sig, IssueKey: issue.ExternalID, IssueURL: issue.URL}
}
