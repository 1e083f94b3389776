package scan

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/catzilla-go/catzilla/cmn"
)

// ProcessScanner spawns a scanner binary once per file, the way
// ios/dutils_linux.go spawns blkid/lsblk: an argv slice, never a shell
// string, with stdout/stderr captured separately and the exit code
// carrying the verdict.
type ProcessScanner struct {
	cfg     Config
	binary  string
	argTmpl []string // extra args placed before the path argument
}

// NewProcessScanner constructs a ProcessScanner that runs binary with
// extraArgs followed by the file path on each Scan call.
func NewProcessScanner(binary string, extraArgs []string, cfg Config) *ProcessScanner {
	cfg.fillDefaults()
	return &ProcessScanner{cfg: cfg, binary: binary, argTmpl: extraArgs}
}

// clamscan-style exit codes: 0 clean, 1 infected, anything else an error.
const (
	exitClean    = 0
	exitInfected = 1
)

func (p *ProcessScanner) Scan(ctx context.Context, path string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	argv := make([]string, 0, len(p.argTmpl)+1)
	argv = append(argv, p.argTmpl...)
	argv = append(argv, path)

	cmd := exec.CommandContext(ctx, p.binary, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return Result{Verdict: ScanError, Message: "scan timed out"}, cmn.ErrExternal(ctx.Err(), "scan timed out after %s", p.cfg.Timeout)
	}

	exitCode := exitClean
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return Result{Verdict: Unavailable, Message: runErr.Error()}, cmn.ErrExternal(runErr, "spawning scanner binary %s", p.binary)
		}
		exitCode = exitErr.ExitCode()
	}

	switch exitCode {
	case exitClean:
		return Result{Verdict: Clean}, nil
	case exitInfected:
		return Result{Verdict: Infected, ThreatName: extractThreatName(stdout.String())}, nil
	default:
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "scanner exited with code " + strconv.Itoa(exitCode)
		}
		return Result{Verdict: ScanError, Message: msg}, nil
	}
}

// extractThreatName pulls the threat name out of a clamscan-style stdout
// line: "<path>: <threat-name> FOUND". Falls back to the whole trimmed
// line if the markers aren't found, rather than guessing further.
func extractThreatName(stdout string) string {
	line := strings.TrimSpace(stdout)
	if idx := strings.LastIndex(line, "\n"); idx >= 0 {
		line = strings.TrimSpace(line[idx+1:])
	}
	sep := strings.Index(line, ": ")
	suffix := strings.LastIndex(line, " FOUND")
	if sep >= 0 && suffix > sep {
		return line[sep+2 : suffix]
	}
	return line
}

func (p *ProcessScanner) Status() Status {
	if _, err := exec.LookPath(p.binary); err != nil {
		return NotFound
	}
	return BinaryFound
}

func (p *ProcessScanner) Version() (string, error) {
	cmd := exec.Command(p.binary, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", cmn.ErrExternal(err, "querying scanner binary version")
	}
	return strings.TrimSpace(out.String()), nil
}
