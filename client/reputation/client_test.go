package reputation

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

const (
	testHost    = "https://reputation.test"
	testBaseURL = testHost + "/api/v3"
	testAPIKey  = "secret-key"
	testDigest  = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	t.Cleanup(gock.Off)
	c := NewClient(Config{BaseURL: testBaseURL + "/", APIKey: testAPIKey}, logger.NewDiscardLogger())
	gock.InterceptClient(c.httpClient)
	return c
}

func TestFileReportFound(t *testing.T) {
	c := newTestClient(t)
	gock.New(testHost).
		Get("/api/v3/files/" + testDigest).
		MatchHeader("x-apikey", testAPIKey).
		Times(1).
		Reply(200).
		JSON(map[string]interface{}{
			"data": map[string]interface{}{
				"id":   testDigest,
				"type": "file",
				"attributes": map[string]interface{}{
					"last_analysis_stats": map[string]int{"malicious": 3, "suspicious": 1, "harmless": 0, "undetected": 60},
				},
			},
		})

	v, err := c.FileReport(context.Background(), testDigest)
	require.NoError(t, err)
	assert.Equal(t, &Verdict{Found: true, ID: testDigest, Malicious: 3, Suspicious: 1, Undetected: 60}, v)

	// served from the cache, the mock only answers once
	v, err = c.FileReport(context.Background(), testDigest)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Malicious)
	assert.True(t, gock.IsDone())
}

func TestFileReportNotFound(t *testing.T) {
	c := newTestClient(t)
	gock.New(testHost).
		Get("/api/v3/files/" + testDigest).
		Reply(404).
		JSON(map[string]interface{}{"error": map[string]string{"code": "NotFoundError"}})

	v, err := c.FileReport(context.Background(), testDigest)
	require.NoError(t, err)
	assert.False(t, v.Found)
	assert.True(t, gock.IsDone())
}

func TestFileReportServiceErrors(t *testing.T) {
	testCases := []struct {
		Name  string
		Setup func()
	}{
		{
			Name: "rate limited",
			Setup: func() {
				gock.New(testHost).Get("/api/v3/files/" + testDigest).Reply(429)
			},
		},
		{
			Name: "invalid json",
			Setup: func() {
				gock.New(testHost).Get("/api/v3/files/" + testDigest).Reply(200).BodyString("{not json")
			},
		},
		{
			Name: "unreachable",
			Setup: func() {
				gock.New(testHost).Get("/api/v3/files/" + testDigest).ReplyError(assert.AnError)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			c := newTestClient(t)
			tc.Setup()

			_, err := c.FileReport(context.Background(), testDigest)
			assert.ErrorIs(t, err, models.ErrRemoteService)
		})
	}
}

func TestURLReportAndSubmit(t *testing.T) {
	c := newTestClient(t)
	target := "https://example.com/login?x=1"
	id := URLID(target)
	assert.Equal(t, "aHR0cHM6Ly9leGFtcGxlLmNvbS9sb2dpbj94PTE", id)

	gock.New(testHost).
		Get("/api/v3/urls/" + id).
		Reply(404)
	gock.New(testHost).
		Post("/api/v3/urls").
		MatchHeader("x-apikey", testAPIKey).
		MatchType("url").
		Reply(200).
		JSON(map[string]interface{}{"data": map[string]string{"type": "analysis", "id": "u-abc-123"}})

	v, err := c.URLReport(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, v.Found)

	analysisID, err := c.SubmitURL(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, "u-abc-123", analysisID)
	assert.True(t, gock.IsDone())
}

func TestSubmitURLFailure(t *testing.T) {
	c := newTestClient(t)
	gock.New(testHost).Post("/api/v3/urls").Reply(http.StatusUnauthorized)

	_, err := c.SubmitURL(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, models.ErrRemoteService)
}

func TestVerdictFinding(t *testing.T) {
	testCases := []struct {
		Name         string
		Verdict      Verdict
		WantSeverity models.Severity
		WantVerdict  string
	}{
		{
			Name:         "malicious wins",
			Verdict:      Verdict{Found: true, Malicious: 2, Suspicious: 5},
			WantSeverity: models.SeverityHigh,
			WantVerdict:  "malicious",
		},
		{
			Name:         "suspicious",
			Verdict:      Verdict{Found: true, Suspicious: 1},
			WantSeverity: models.SeverityMedium,
			WantVerdict:  "suspicious",
		},
		{
			Name:         "clean",
			Verdict:      Verdict{Found: true, Harmless: 70},
			WantSeverity: models.SeverityInfo,
			WantVerdict:  "clean",
		},
		{
			Name:         "unknown",
			Verdict:      Verdict{},
			WantSeverity: models.SeverityInfo,
			WantVerdict:  "unknown",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			f := tc.Verdict.Finding("subject")
			assert.Equal(t, tc.WantSeverity, f.Severity)
			assert.Equal(t, tc.WantVerdict, f.Metadata["verdict"])
			assert.Contains(t, f.Description, "subject")
		})
	}
}
