package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/openrport/rguard/client/reputation"
	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

const ChunkSize = 64 * 1024

const (
	MetaSHA256 = "sha256"
	MetaSize   = "size"
)

type ReputationClient interface {
	FileReport(ctx context.Context, sha256 string) (*reputation.Verdict, error)
}

type Scanner struct {
	reputation ReputationClient
	logger     *logger.Logger
}

// NewScanner creates a file scanner. A nil client keeps the scanner offline and only the
// local digest is computed.
func NewScanner(client ReputationClient, logger *logger.Logger) *Scanner {
	return &Scanner{
		reputation: client,
		logger:     logger,
	}
}

// Scan hashes the file at path and, when online, appends the reputation verdict. The digest
// and size are stored in the record meta. A failed lookup does not fail the scan.
func (s *Scanner) Scan(ctx context.Context, path string) *models.ScanRecord {
	record := models.NewScanRecord(models.ScanTypeFile, path, system.Now())

	info, err := os.Stat(path)
	switch {
	case path == "":
		record.Fail(models.ScanStatusFailed, errors.Wrap(models.ErrInvalidTarget, "empty path"), system.Now())
		return record
	case err != nil:
		record.Fail(models.ScanStatusFailed, errors.Wrapf(models.ErrInvalidTarget, "%v", err), system.Now())
		return record
	case info.IsDir():
		record.Fail(models.ScanStatusFailed, errors.Wrapf(models.ErrInvalidTarget, "%s is a directory", path), system.Now())
		return record
	}

	digest, size, err := digestFile(ctx, path)
	if err != nil {
		record.Fail(models.ScanStatusFailed, err, system.Now())
		return record
	}
	record.SetMeta(MetaSHA256, digest)
	record.SetMeta(MetaSize, strconv.FormatInt(size, 10))
	s.logger.Debugf("%s: sha256 %s (%d bytes)", path, digest, size)

	if s.reputation != nil {
		verdict, err := s.reputation.FileReport(ctx, digest)
		if err != nil {
			s.logger.Infof("reputation lookup for %s failed: %v", path, err)
			_ = record.AddFinding(models.DiagnosticFinding(models.SeverityInfo, err, "Reputation lookup failed: "+err.Error()))
		} else {
			_ = record.AddFinding(verdict.Finding(digest))
		}
	}

	_ = record.Finish(models.ScanStatusCompleted, system.Now())
	return record
}

func digestFile(ctx context.Context, path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, errors.Wrapf(models.ErrInvalidTarget, "%v", err)
	}
	defer f.Close()

	return Digest(ctx, f)
}

// Digest returns the hex SHA-256 of r, read in ChunkSize chunks so memory stays constant
// regardless of the input size. The context is checked between chunks.
func Digest(ctx context.Context, r io.Reader) (string, int64, error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return "", total, errors.Wrap(err, "hashing cancelled")
		}
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = h.Write(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", total, errors.Wrapf(err, "read failed after %d bytes", total)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), total, nil
}
