// Package bridge starts and stops the optional auxiliary web-terminal
// bridge process for a pane (spec §4.3 step 5, §5 "Ports"). The bridge is
// a black-box external process (spec §1); this package only claims a
// port for it and launches it with that port and the target pane id.
//
// Grounded on the teacher's internal/mcp.Client (os/exec.Command launch
// of an external process, environment passed through, best-effort
// failure handling).
package bridge

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/orka-sh/orka-core/internal/orkaerr"
)

// Process launches one bridge binary instance per pane.
type Process struct {
	Binary   string
	BasePort int
	PortScan int // how many ports to probe upward from BasePort
}

// New returns a Process. portScan <= 0 defaults to 100 (spec §5: "scans
// upward from a base port").
func New(binary string, basePort, portScan int) *Process {
	if portScan <= 0 {
		portScan = 100
	}
	return &Process{Binary: binary, BasePort: basePort, PortScan: portScan}
}

// Start claims a port via claimPort's probe-then-bind and launches the
// bridge binary against the given pane (spec §4.3 step 5). The probe
// listener is closed before the bridge starts, so two concurrent callers
// can be handed the same port; Start does not detect a failed bind by the
// bridge process and does not retry on another port.
func (p *Process) Start(ctx context.Context, paneID string) (port int, pid int, err error) {
	port, err = claimPort(p.BasePort, p.PortScan)
	if err != nil {
		return 0, 0, orkaerr.Wrap(orkaerr.KindExternal, "no free bridge port available", err)
	}

	// exec.Command, not CommandContext: the bridge must outlive this
	// request's context, so its lifetime isn't tied to ctx cancellation.
	cmd := exec.Command(p.Binary,
		"--port", fmt.Sprintf("%d", port),
		"--pane", paneID,
	)
	if err := cmd.Start(); err != nil {
		return 0, 0, orkaerr.Wrap(orkaerr.KindExternal, "failed to start bridge process", err)
	}
	return port, cmd.Process.Pid, nil
}

// Stop sends SIGTERM to a previously started bridge process. Best-effort:
// an already-dead process is not an error (spec §4.3: "external bridge
// optional failure is logged and swallowed").
func (p *Process) Stop(ctx context.Context, pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return proc.Signal(syscall.SIGTERM)
}

// claimPort probes basePort..basePort+scan-1, returning the first port it
// can bind and immediately release.
func claimPort(basePort, scan int) (int, error) {
	for p := basePort; p < basePort+scan; p++ {
		addr := fmt.Sprintf(":%d", p)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			continue
		}
		_ = ln.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range [%d, %d)", basePort, basePort+scan)
}

// healthCheck reports whether a TCP dial to the bridge port on 127.0.0.1
// succeeds within 2s. Nothing in the module calls it: Start returns
// without probing the bridge, and resuming a session runs no probe.
func healthCheck(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
