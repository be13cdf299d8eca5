package network

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/openrport/rguard/share/models"
)

// ports whose exposure is usually worth a closer look
var riskyPorts = map[int]struct{}{
	21:   {},
	23:   {},
	135:  {},
	139:  {},
	445:  {},
	3389: {},
	5900: {},
}

type nmapRun struct {
	XMLName xml.Name   `xml:"nmaprun"`
	Hosts   []nmapHost `xml:"host"`
}

type nmapHost struct {
	Status struct {
		State string `xml:"state,attr"`
	} `xml:"status"`
	Addresses []struct {
		Addr     string `xml:"addr,attr"`
		AddrType string `xml:"addrtype,attr"`
	} `xml:"address"`
	Hostnames []struct {
		Name string `xml:"name,attr"`
	} `xml:"hostnames>hostname"`
	Ports []nmapPort `xml:"ports>port"`
}

type nmapPort struct {
	Protocol string `xml:"protocol,attr"`
	PortID   int    `xml:"portid,attr"`
	State    struct {
		State string `xml:"state,attr"`
	} `xml:"state"`
	Service struct {
		Name    string `xml:"name,attr"`
		Product string `xml:"product,attr"`
		Version string `xml:"version,attr"`
	} `xml:"service"`
}

func (h *nmapHost) name() string {
	for _, a := range h.Addresses {
		if a.AddrType != "mac" && a.Addr != "" {
			return a.Addr
		}
	}
	for _, hn := range h.Hostnames {
		if hn.Name != "" {
			return hn.Name
		}
	}
	return "unknown"
}

// parseReport converts an nmap XML report into findings: one per open port and one per host
// that is up without open ports.
func parseReport(data []byte) ([]models.ScanFinding, error) {
	var run nmapRun
	if err := xml.Unmarshal(data, &run); err != nil {
		return nil, errors.Wrapf(models.ErrMalformedReport, "%v", err)
	}

	findings := []models.ScanFinding{}
	hostsUp := 0
	for i := range run.Hosts {
		host := &run.Hosts[i]
		if host.Status.State != "up" {
			continue
		}
		hostsUp++

		open := 0
		for _, port := range host.Ports {
			if port.State.State != "open" {
				continue
			}
			open++
			findings = append(findings, portFinding(host.name(), port))
		}

		if open == 0 {
			findings = append(findings, models.ScanFinding{
				Severity:    models.SeverityInfo,
				Description: fmt.Sprintf("Host %s is up with no open ports found", host.name()),
				Metadata:    map[string]string{"host": host.name(), "state": "up"},
			})
		}
	}

	if hostsUp == 0 {
		findings = append(findings, models.ScanFinding{
			Severity:    models.SeverityInfo,
			Description: "No hosts responded",
		})
	}
	return findings, nil
}

func portFinding(host string, port nmapPort) models.ScanFinding {
	severity := models.SeverityLow
	if _, risky := riskyPorts[port.PortID]; risky {
		severity = models.SeverityMedium
	}

	service := port.Service.Name
	if service == "" {
		service = "unknown"
	}
	desc := fmt.Sprintf("Open port %d/%s (%s) on %s", port.PortID, port.Protocol, service, host)
	if product := strings.TrimSpace(port.Service.Product + " " + port.Service.Version); product != "" {
		desc += ": " + product
	}

	return models.ScanFinding{
		Severity:    severity,
		Description: desc,
		Metadata: map[string]string{
			"host":     host,
			"port":     strconv.Itoa(port.PortID),
			"protocol": port.Protocol,
			"state":    port.State.State,
			"service":  port.Service.Name,
			"product":  port.Service.Product,
			"version":  port.Service.Version,
		},
	}
}
