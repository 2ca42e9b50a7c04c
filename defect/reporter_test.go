package defect

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/issuetracker"
	"github.com/hairizuanbinnoorazman/ui-sentinel/logger"
	"github.com/hairizuanbinnoorazman/ui-sentinel/noise"
	"github.com/hairizuanbinnoorazman/ui-sentinel/observation"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
	"github.com/hairizuanbinnoorazman/ui-sentinel/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	inputs []issuetracker.CreateIssueInput
	err    error
}

func (f *fakeTracker) CreateIssue(ctx context.Context, in issuetracker.CreateIssueInput) (*issuetracker.Issue, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &issuetracker.Issue{ExternalID: "SHOP-1", URL: "https://jira.example/browse/SHOP-1"}, nil
}

func (f *fakeTracker) ValidateConnection(ctx context.Context) error { return nil }

func jsError() oracle.Defect {
	return oracle.Defect{
		Title:       "Submit button throws JS error",
		Description: "Clicking Submit logs TypeError and nothing happens.",
		Severity:    oracle.SeverityCritical,
		Pattern:     "TypeError: form is undefined",
	}
}

func evidence() Evidence {
	return Evidence{
		URL:        "https://shop.example/",
		Screenshot: []byte("\x89PNG"),
		Console: []observation.ConsoleEvent{
			{Level: observation.LevelError, Text: "TypeError: form is undefined"},
		},
		Network: []observation.NetworkFailure{
			{URL: "https://shop.example/api/submit", Status: 500, Method: "POST"},
		},
		Steps:      []string{"clicked #submit"},
		CapturedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestReportDeduplicates(t *testing.T) {
	t.Parallel()

	tracker := &fakeTracker{}
	r := NewReporter(tracker, nil, noise.DefaultRuleSet(), Options{StartURL: "https://shop.example/", ProjectKey: "SHOP"}, logger.NewTestLogger())
	seen := NewSignatureSet()

	first := r.Report(context.Background(), seen, jsError(), evidence())
	second := r.Report(context.Background(), seen, jsError(), evidence())

	assert.Equal(t, StatusFiled, first.Status)
	assert.Equal(t, "SHOP-1", first.IssueKey)
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Len(t, tracker.inputs, 1)
	assert.Equal(t, 1, seen.Len())

	in := tracker.inputs[0]
	assert.Equal(t, "[ui-sentinel] Submit button throws JS error", in.Title)
	assert.Equal(t, "critical", in.Severity)
	assert.Equal(t, "SHOP", in.ProjectKey)
	assert.Contains(t, in.Description, "# Open https://shop.example/")
	assert.Contains(t, in.Description, "# clicked #submit")
	assert.Contains(t, in.Description, "500 POST https://shop.example/api/submit")
}

func TestReportFailureIsRetried(t *testing.T) {
	t.Parallel()

	tracker := &fakeTracker{err: errors.New("jira: create issue failed with status 503")}
	r := NewReporter(tracker, nil, noise.RuleSet{}, Options{}, nil)
	seen := NewSignatureSet()

	res := r.Report(context.Background(), seen, jsError(), evidence())
	assert.Equal(t, StatusFailed, res.Status)
	assert.Error(t, res.Err)
	assert.False(t, seen.Has(res.Signature))

	tracker.err = nil
	res = r.Report(context.Background(), seen, jsError(), evidence())
	assert.Equal(t, StatusFiled, res.Status)
	assert.Len(t, tracker.inputs, 2)
}

func TestReportIgnoredAndSkipped(t *testing.T) {
	t.Parallel()

	tracker := &fakeTracker{}
	rules := noise.RuleSet{DefectPatterns: []string{"test environment"}}
	r := NewReporter(tracker, nil, rules, Options{}, nil)
	seen := NewSignatureSet()

	res := r.Report(context.Background(), seen, oracle.Defect{Title: "Flaky in test environment"}, evidence())
	assert.Equal(t, StatusIgnored, res.Status)
	assert.Empty(t, tracker.inputs)

	noTracker := NewReporter(nil, nil, noise.RuleSet{}, Options{}, nil)
	res = noTracker.Report(context.Background(), seen, jsError(), evidence())
	assert.Equal(t, StatusSkipped, res.Status)
}

func TestReportUploadsEvidence(t *testing.T) {
	t.Parallel()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	tracker := &fakeTracker{}
	r := NewReporter(tracker, store, noise.RuleSet{}, Options{RunID: "run-1"}, nil)

	res := r.Report(context.Background(), NewSignatureSet(), jsError(), evidence())
	require.Equal(t, StatusFiled, res.Status)

	prefix := "runs/run-1/" + res.Signature[:16] + "/"
	rc, err := store.Download(context.Background(), prefix+"console.log")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Contains(t, string(data), "[error] TypeError: form is undefined")

	desc := tracker.inputs[0].Description
	assert.Contains(t, desc, "h3. Evidence")
	for _, name := range []string{"screenshot.png", "console.log", "network.log"} {
		assert.True(t, strings.Contains(desc, "* "+name+": "), name)
	}
}

type failingStore struct{}

func (failingStore) Upload(ctx context.Context, path, contentType string, r io.Reader) error {
	return errors.New("access denied")
}

func (failingStore) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, storage.ErrFileNotFound
}

func (failingStore) GetURL(ctx context.Context, path string) (string, error) {
	return "", storage.ErrFileNotFound
}

func TestReportUploadFailureDoesNotBlock(t *testing.T) {
	t.Parallel()

	tracker := &fakeTracker{}
	log := logger.NewTestLogger()
	r := NewReporter(tracker, failingStore{}, noise.RuleSet{}, Options{}, log)

	res := r.Report(context.Background(), NewSignatureSet(), jsError(), evidence())
	assert.Equal(t, StatusFiled, res.Status)
	assert.NotContains(t, tracker.inputs[0].Description, "h3. Evidence")
	assert.Len(t, log.Messages("warn"), 3)
}

type fakeConfirmer struct {
	verdict oracle.Confirmation
	err     error
	inputs  []oracle.ConfirmInput
}

func (f *fakeConfirmer) Confirm(ctx context.Context, in oracle.ConfirmInput) (oracle.Confirmation, error) {
	f.inputs = append(f.inputs, in)
	return f.verdict, f.err
}

func TestReportAsksConfirmerBeforeFiling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		confirmer  *fakeConfirmer
		wantStatus Status
		wantFiled  int
		wantSeen   bool
	}{
		{
			name:       "confirmed",
			confirmer:  &fakeConfirmer{verdict: oracle.Confirmation{Confirmed: true}},
			wantStatus: StatusFiled,
			wantFiled:  1,
			wantSeen:   true,
		},
		{
			name:       "rejected",
			confirmer:  &fakeConfirmer{verdict: oracle.Confirmation{Reason: "analytics beacon blocked"}},
			wantStatus: StatusRejected,
			wantSeen:   true,
		},
		{
			name:       "review failed",
			confirmer:  &fakeConfirmer{err: oracle.ErrBackendUnavailable},
			wantStatus: StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tracker := &fakeTracker{}
			r := NewReporter(tracker, nil, noise.RuleSet{}, Options{}, logger.NewTestLogger()).WithConfirmer(tt.confirmer)
			seen := NewSignatureSet()

			res := r.Report(context.Background(), seen, jsError(), evidence())
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Len(t, tracker.inputs, tt.wantFiled)
			assert.Equal(t, tt.wantSeen, seen.Has(res.Signature))

			require.Len(t, tt.confirmer.inputs, 1)
			in := tt.confirmer.inputs[0]
			assert.Equal(t, jsError(), in.Defect)
			assert.Equal(t, "https://shop.example/", in.URL)
			assert.Equal(t, evidence().Screenshot, in.Screenshot)
			assert.Len(t, in.Console, 1)
			assert.Len(t, in.Network, 1)
		})
	}
}

func TestReportSkipsConfirmerForKnownDefects(t *testing.T) {
	t.Parallel()

	confirmer := &fakeConfirmer{verdict: oracle.Confirmation{Confirmed: true}}
	rules := noise.RuleSet{DefectPatterns: []string{"test environment"}}
	r := NewReporter(&fakeTracker{}, nil, rules, Options{}, nil).WithConfirmer(confirmer)
	seen := NewSignatureSet()

	r.Report(context.Background(), seen, oracle.Defect{Title: "Flaky in test environment"}, evidence())
	r.Report(context.Background(), seen, jsError(), evidence())
	r.Report(context.Background(), seen, jsError(), evidence())

	assert.Len(t, confirmer.inputs, 1)
}
