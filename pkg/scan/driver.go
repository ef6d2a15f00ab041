// Package scan drives the external nmap tool and normalizes its output.
package scan

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// portLine matches nmap output lines like "21/tcp   open  ftp"
var portLine = regexp.MustCompile(`^(\d+)/tcp\s+open`)

// CommandFunc runs one external command and returns its stdout and stderr
type CommandFunc func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

// Driver invokes a full-range port scan against a target host
type Driver struct {
	binary  string
	timeout time.Duration
	logger  *logrus.Logger
	run     CommandFunc
}

// NewDriver creates a scan driver using the given nmap binary and timeout
func NewDriver(binary string, timeout time.Duration, logger *logrus.Logger) *Driver {
	if logger == nil {
		logger = logrus.New()
	}
	if binary == "" {
		binary = "nmap"
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Driver{
		binary:  binary,
		timeout: timeout,
		logger:  logger,
		run:     execCommand,
	}
}

// SetCommandFunc replaces the command executor, used by tests
func (d *Driver) SetCommandFunc(fn CommandFunc) {
	d.run = fn
}

// Scan runs a full-range, open-ports-only scan against the target and returns
// the open ports in discovery order with duplicates removed.
func (d *Driver) Scan(ctx context.Context, target string) ([]int, error) {
	d.logger.Infof("Starting nmap scan on %s", target)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	stdout, stderr, err := d.run(ctx, d.binary, "-p-", "--open", target)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			d.logger.Errorf("Nmap scan timed out after %s", d.timeout)
			return nil, ErrTimeout
		}

		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			d.logger.Error("Nmap not found. Please install nmap first.")
			return nil, ErrToolMissing
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			d.logger.Errorf("Nmap scan failed: %s", stderr)
			return nil, &ExecFailedError{Stderr: strings.TrimSpace(stderr)}
		}

		return nil, err
	}

	ports := ParseOpenPorts(stdout)
	d.logger.Infof("Found %d open ports: %v", len(ports), ports)
	return ports, nil
}

// ParseOpenPorts extracts open TCP port numbers from raw nmap output. Lines
// that do not match the port pattern are ignored, so malformed or empty output
// degrades to zero ports found.
func ParseOpenPorts(output string) []int {
	var ports []int
	seen := make(map[int]bool)

	for _, line := range strings.Split(output, "\n") {
		m := portLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}

		port, err := strconv.Atoi(m[1])
		if err != nil || seen[port] {
			continue
		}

		seen[port] = true
		ports = append(ports, port)
	}

	return ports
}

// execCommand runs the command through os/exec, capturing stdout and stderr
func execCommand(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
