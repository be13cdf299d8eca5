package reputation

import (
	"strconv"

	"github.com/openrport/rguard/share/models"
)

// Finding turns a verdict into the finding appended to a scan record. Any malicious vote is
// High, any suspicious vote Medium, everything else Info.
func (v Verdict) Finding(subject string) models.ScanFinding {
	if !v.Found {
		return models.ScanFinding{
			Severity:    models.SeverityInfo,
			Description: "Not found in reputation database: " + subject,
			Metadata:    map[string]string{"source": "reputation", "verdict": "unknown"},
		}
	}

	meta := map[string]string{
		"source":     "reputation",
		"malicious":  strconv.Itoa(v.Malicious),
		"suspicious": strconv.Itoa(v.Suspicious),
		"harmless":   strconv.Itoa(v.Harmless),
		"undetected": strconv.Itoa(v.Undetected),
	}
	if v.ID != "" {
		meta["report_id"] = v.ID
	}

	switch {
	case v.Malicious > 0:
		meta["verdict"] = "malicious"
		return models.ScanFinding{
			Severity:    models.SeverityHigh,
			Description: "Flagged as malicious by " + strconv.Itoa(v.Malicious) + " engines: " + subject,
			Metadata:    meta,
		}
	case v.Suspicious > 0:
		meta["verdict"] = "suspicious"
		return models.ScanFinding{
			Severity:    models.SeverityMedium,
			Description: "Flagged as suspicious by " + strconv.Itoa(v.Suspicious) + " engines: " + subject,
			Metadata:    meta,
		}
	default:
		meta["verdict"] = "clean"
		return models.ScanFinding{
			Severity:    models.SeverityInfo,
			Description: "No engine flagged " + subject,
			Metadata:    meta,
		}
	}
}
