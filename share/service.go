package chshare

import (
	"fmt"
	"io"
	"strings"

	"github.com/kardianos/service"
)

var ServiceCommands = []string{"install", "uninstall", "start", "stop", "status"}

var serviceStatusNames = map[service.Status]string{
	service.StatusUnknown: "unknown",
	service.StatusRunning: "running",
	service.StatusStopped: "stopped",
}

// HandleServiceCommand runs one of ServiceCommands against svc and reports the outcome to out.
// service.Control isn't used, on uninstall it leaves the service running.
func HandleServiceCommand(svc service.Service, command string, out io.Writer) error {
	switch command {
	case "install":
		if err := svc.Install(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Service installed")
	case "uninstall":
		status, err := svc.Status()
		if err != nil && err != service.ErrNotInstalled {
			return err
		}
		if status == service.StatusRunning {
			if err := svc.Stop(); err != nil {
				return err
			}
		}
		if err := svc.Uninstall(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Service uninstalled")
	case "start":
		if err := svc.Start(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Service started")
	case "stop":
		if err := svc.Stop(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Service stopped")
	case "status":
		status, err := svc.Status()
		if err == service.ErrNotInstalled {
			fmt.Fprintln(out, "Service is not installed")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Service is %s\n", serviceStatusNames[status])
	default:
		return fmt.Errorf("unknown service command %q, expected one of: %s", command, strings.Join(ServiceCommands, ", "))
	}
	return nil
}
