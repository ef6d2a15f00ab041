package scan

import (
	"context"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nmapFixture = `Starting Nmap 7.94 ( https://nmap.org ) at 2024-05-01 12:00 UTC
Nmap scan report for localhost (127.0.0.1)
Host is up (0.000010s latency).
Not shown: 65532 closed tcp ports (reset)
PORT     STATE SERVICE
22/tcp   open  ssh
80/tcp   open  http
1234/tcp closed upnotify
6379/tcp open  redis

Nmap done: 1 IP address (1 host up) scanned in 2.05 seconds
`

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestParseOpenPorts(t *testing.T) {
	ports := ParseOpenPorts(nmapFixture)
	assert.Equal(t, []int{22, 80, 6379}, ports)
}

func TestParseOpenPortsDeduplicates(t *testing.T) {
	out := "22/tcp open ssh\n80/tcp open http\n22/tcp open ssh\n"
	assert.Equal(t, []int{22, 80}, ParseOpenPorts(out))
}

func TestParseOpenPortsMalformedOutput(t *testing.T) {
	assert.Empty(t, ParseOpenPorts(""))
	assert.Empty(t, ParseOpenPorts("garbage\nnot nmap output\ntcp/22 open"))
	assert.Empty(t, ParseOpenPorts("443/udp open https"))
}

func TestScanReturnsParsedPorts(t *testing.T) {
	d := NewDriver("nmap", time.Minute, quietLogger())

	var gotArgs []string
	d.SetCommandFunc(func(ctx context.Context, name string, args ...string) (string, string, error) {
		gotArgs = append([]string{name}, args...)
		return nmapFixture, "", nil
	})

	ports, err := d.Scan(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []int{22, 80, 6379}, ports)
	assert.Equal(t, []string{"nmap", "-p-", "--open", "127.0.0.1"}, gotArgs)
}

func TestScanToolMissing(t *testing.T) {
	d := NewDriver("nmap", time.Minute, quietLogger())
	d.SetCommandFunc(func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	})

	_, err := d.Scan(context.Background(), "127.0.0.1")
	assert.ErrorIs(t, err, ErrToolMissing)
}

func TestScanTimeout(t *testing.T) {
	d := NewDriver("nmap", 20*time.Millisecond, quietLogger())
	d.SetCommandFunc(func(ctx context.Context, name string, args ...string) (string, string, error) {
		<-ctx.Done()
		return "", "", ctx.Err()
	})

	_, err := d.Scan(context.Background(), "127.0.0.1")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestScanExecutionFailure(t *testing.T) {
	d := NewDriver("nmap", time.Minute, quietLogger())
	d.SetCommandFunc(func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "Failed to resolve \"badhost\".\n", &exec.ExitError{ProcessState: &os.ProcessState{}}
	})

	_, err := d.Scan(context.Background(), "badhost")
	require.Error(t, err)

	var execErr *ExecFailedError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Stderr, "Failed to resolve")
}

func TestScanNoOpenPorts(t *testing.T) {
	d := NewDriver("nmap", time.Minute, quietLogger())
	d.SetCommandFunc(func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "Nmap done: 1 IP address (1 host up) scanned in 1.00 seconds\n", "", nil
	})

	ports, err := d.Scan(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Empty(t, ports)
}
