package scan

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"

	"github.com/catzilla-go/catzilla/cmn"
)

// DaemonScanner talks to a local scan daemon over a Unix domain socket:
// one scan command per connection naming a filesystem path, a textual
// response parsed for a threat token.
type DaemonScanner struct {
	cfg        Config
	socketPath string
}

func NewDaemonScanner(socketPath string, cfg Config) *DaemonScanner {
	cfg.fillDefaults()
	return &DaemonScanner{cfg: cfg, socketPath: socketPath}
}

func (d *DaemonScanner) Scan(ctx context.Context, path string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", d.socketPath)
	if err != nil {
		return Result{Verdict: Unavailable, Message: err.Error()}, cmn.ErrExternal(err, "scan daemon unreachable at %s", d.socketPath)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte("SCAN " + path + "\n")); err != nil {
		return Result{Verdict: ScanError, Message: err.Error()}, cmn.ErrExternal(err, "writing scan command")
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		if ctx.Err() != nil {
			return Result{Verdict: ScanError, Message: "scan timed out"}, cmn.ErrExternal(ctx.Err(), "scan timed out after %s", d.cfg.Timeout)
		}
		return Result{Verdict: ScanError, Message: err.Error()}, cmn.ErrExternal(err, "reading scan response")
	}
	return parseDaemonResponse(line), nil
}

// parseDaemonResponse interprets the daemon's textual reply. A clean scan
// echoes "OK"; an infected file replies "FOUND <threat-name>"; anything
// else is treated as an adapter error rather than guessed at.
func parseDaemonResponse(line string) Result {
	line = strings.TrimSpace(line)
	switch {
	case line == "OK" || strings.HasPrefix(line, "OK "):
		return Result{Verdict: Clean}
	case strings.HasPrefix(line, "FOUND "):
		return Result{Verdict: Infected, ThreatName: strings.TrimSpace(strings.TrimPrefix(line, "FOUND "))}
	default:
		return Result{Verdict: ScanError, Message: "unrecognized daemon response: " + line}
	}
}

func (d *DaemonScanner) Status() Status {
	conn, err := net.DialTimeout("unix", d.socketPath, time.Second)
	if err != nil {
		return NotFound
	}
	conn.Close()
	return DaemonRunning
}

func (d *DaemonScanner) Version() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", d.socketPath)
	if err != nil {
		return "", cmn.ErrExternal(err, "scan daemon unreachable at %s", d.socketPath)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("VERSION\n")); err != nil {
		return "", cmn.ErrExternal(err, "writing version command")
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", cmn.ErrExternal(err, "reading version response")
	}
	return strings.TrimSpace(line), nil
}
