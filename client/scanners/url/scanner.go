package url

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/openrport/rguard/client/reputation"
	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

const MetaAnalysisID = "analysis_id"

type ReputationClient interface {
	URLReport(ctx context.Context, rawURL string) (*reputation.Verdict, error)
	SubmitURL(ctx context.Context, rawURL string) (string, error)
}

type Scanner struct {
	reputation ReputationClient
	logger     *logger.Logger
}

// NewScanner creates a URL scanner. Without a client every scan fails, there is nothing to
// check locally.
func NewScanner(client ReputationClient, logger *logger.Logger) *Scanner {
	return &Scanner{
		reputation: client,
		logger:     logger,
	}
}

// Scan looks up the last analysis of rawURL. A URL the service has never seen is submitted
// and the record stays pending with an informational finding carrying the analysis id.
func (s *Scanner) Scan(ctx context.Context, rawURL string) *models.ScanRecord {
	rawURL = strings.TrimSpace(rawURL)
	record := models.NewScanRecord(models.ScanTypeURL, rawURL, system.Now())

	if err := validateURL(rawURL); err != nil {
		record.Fail(models.ScanStatusFailed, err, system.Now())
		return record
	}
	if s.reputation == nil {
		record.Fail(models.ScanStatusFailed, errors.Wrap(models.ErrRemoteService, "reputation service not configured"), system.Now())
		return record
	}

	verdict, err := s.reputation.URLReport(ctx, rawURL)
	if err != nil {
		record.Fail(models.ScanStatusFailed, err, system.Now())
		return record
	}

	if verdict.Found {
		_ = record.AddFinding(verdict.Finding(rawURL))
		_ = record.Finish(models.ScanStatusCompleted, system.Now())
		return record
	}

	analysisID, err := s.reputation.SubmitURL(ctx, rawURL)
	if err != nil {
		record.Fail(models.ScanStatusFailed, err, system.Now())
		return record
	}
	s.logger.Infof("%s submitted for analysis as %s", rawURL, analysisID)
	record.SetMeta(MetaAnalysisID, analysisID)
	_ = record.AddFinding(models.ScanFinding{
		Severity:    models.SeverityInfo,
		Description: "Submitted for analysis, no report available yet",
		Metadata:    map[string]string{MetaAnalysisID: analysisID},
	})
	return record
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(models.ErrInvalidTarget, "%v", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return errors.Wrapf(models.ErrInvalidTarget, "%q is not an absolute URL", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Wrapf(models.ErrInvalidTarget, "unsupported scheme %q", u.Scheme)
	}
	return nil
}
