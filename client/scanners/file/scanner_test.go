package file

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrport/rguard/client/reputation"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

type fakeReputation struct {
	verdict *reputation.Verdict
	err     error
	asked   []string
}

func (f *fakeReputation) FileReport(ctx context.Context, sha256 string) (*reputation.Verdict, error) {
	f.asked = append(f.asked, sha256)
	return f.verdict, f.err
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0600))
	return path
}

func TestScanEmptyFile(t *testing.T) {
	path := writeFile(t, "empty", nil)
	s := NewScanner(nil, logger.NewDiscardLogger())

	record := s.Scan(context.Background(), path)

	assert.Equal(t, models.ScanStatusCompleted, record.Status)
	assert.NotNil(t, record.FinishedAt)
	assert.Empty(t, record.Findings)
	assert.Equal(t, emptySHA256, record.Meta[MetaSHA256])
	assert.Equal(t, "0", record.Meta[MetaSize])
}

func TestScanIdenticalContent(t *testing.T) {
	content := bytes.Repeat([]byte("rguard"), ChunkSize/3)
	a := writeFile(t, "a.bin", content)
	b := writeFile(t, "b.bin", content)
	s := NewScanner(nil, logger.NewDiscardLogger())

	ra := s.Scan(context.Background(), a)
	rb := s.Scan(context.Background(), b)

	assert.Equal(t, ra.Meta[MetaSHA256], rb.Meta[MetaSHA256])
	assert.NotEqual(t, ra.ID, rb.ID)
	assert.Equal(t, "131070", ra.Meta[MetaSize])
}

func TestScanWithReputation(t *testing.T) {
	path := writeFile(t, "empty", nil)
	rep := &fakeReputation{verdict: &reputation.Verdict{Found: true, Malicious: 4}}
	s := NewScanner(rep, logger.NewDiscardLogger())

	record := s.Scan(context.Background(), path)

	assert.Equal(t, models.ScanStatusCompleted, record.Status)
	assert.Equal(t, []string{emptySHA256}, rep.asked)
	require.Len(t, record.Findings, 1)
	assert.Equal(t, models.SeverityHigh, record.Findings[0].Severity)
}

func TestScanReputationUnavailable(t *testing.T) {
	path := writeFile(t, "doc.txt", []byte("hello"))
	rep := &fakeReputation{err: pkgerrors.Wrap(models.ErrRemoteService, "GET /files: dial tcp: no route to host")}
	s := NewScanner(rep, logger.NewDiscardLogger())

	record := s.Scan(context.Background(), path)

	assert.Equal(t, models.ScanStatusCompleted, record.Status)
	require.Len(t, record.Findings, 1)
	assert.Equal(t, models.KindRemoteService, record.Findings[0].Metadata["kind"])
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", record.Meta[MetaSHA256])
}

func TestScanInvalidTargets(t *testing.T) {
	dir := t.TempDir()
	s := NewScanner(nil, logger.NewDiscardLogger())

	for _, path := range []string{"", filepath.Join(dir, "missing"), dir} {
		record := s.Scan(context.Background(), path)
		assert.Equal(t, models.ScanStatusFailed, record.Status, path)
		require.Len(t, record.Findings, 1, path)
		assert.Equal(t, models.KindInvalidTarget, record.Findings[0].Metadata["kind"], path)
	}
}

func TestDigestReadError(t *testing.T) {
	r := iotest.TimeoutReader(bytes.NewReader(bytes.Repeat([]byte{1}, ChunkSize*2)))

	_, n, err := Digest(context.Background(), r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, iotest.ErrTimeout))
	assert.Equal(t, int64(ChunkSize), n)
}

func TestDigestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Digest(ctx, bytes.NewReader([]byte("data")))
	assert.ErrorIs(t, err, context.Canceled)
}
