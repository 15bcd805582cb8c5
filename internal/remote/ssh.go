package remote

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"wpauditd/internal/config"
	"wpauditd/internal/models"
)

// Command timeouts. Checksum verification walks every core file and bulk
// cleanup operations rewrite large tables, so both get longer budgets.
const (
	DefaultTimeout  = 120 * time.Second
	ChecksumTimeout = 180 * time.Second
	CleanupTimeout  = 300 * time.Second

	// hardTimeoutGrace is added on top of the per-command timeout to form
	// the outer deadline that always fires, even if the transport never
	// reports a clean error.
	hardTimeoutGrace = 5 * time.Second

	dialTimeout = 15 * time.Second
)

// Format hints for command output
type Format int

// Output formats
const (
	FormatText Format = iota
	FormatJSON
)

// Options controls a single command execution
type Options struct {
	Format  Format
	Timeout time.Duration
}

// Runner executes a single command on a remote host
type Runner interface {
	Run(ctx context.Context, command string, opts Options) (string, error)
}

// SSHRunner opens one authenticated SSH session per command. No pooling:
// each call dials, runs, and tears down.
type SSHRunner struct {
	host string
	port int
	user string
	auth ssh.AuthMethod

	// dial and grace are swappable for tests
	dial  func(network, addr string, cfg *ssh.ClientConfig) (sshClient, error)
	grace time.Duration
}

type sshClient interface {
	NewSession() (*ssh.Session, error)
	Close() error
}

// NewRunner builds a runner for one site from process configuration.
// The private key is resolved inline or from disk; a missing or
// unparseable key is a configuration error, reported before any dial.
func NewRunner(cfg *config.Config, site *models.Site) (*SSHRunner, error) {
	keyData := cfg.SSH.PrivateKey
	if keyData == "" && cfg.SSH.PrivateKeyPath != "" {
		data, err := os.ReadFile(cfg.SSH.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read private key: %v", ErrConfig, err)
		}
		keyData = string(data)
	}
	if keyData == "" {
		return nil, fmt.Errorf("%w: no SSH private key configured", ErrConfig)
	}

	signer, err := ssh.ParsePrivateKey([]byte(NormalizePrivateKey(keyData)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %v", ErrConfig, err)
	}

	user := cfg.SSH.User
	if site.SSHUser != "" {
		user = site.SSHUser
	}
	port := cfg.GetSSHPort()
	if site.SSHPort != 0 {
		port = site.SSHPort
	}

	return &SSHRunner{
		host: site.Hostname,
		port: port,
		user: user,
		auth: ssh.PublicKeys(signer),
		dial: func(network, addr string, clientCfg *ssh.ClientConfig) (sshClient, error) {
			return ssh.Dial(network, addr, clientCfg)
		},
	}, nil
}

// NormalizePrivateKey converts embedded literal \n sequences into real
// newlines. Keys pasted into env vars or single-line YAML arrive escaped.
func NormalizePrivateKey(key string) string {
	return strings.TrimSpace(strings.ReplaceAll(key, `\n`, "\n")) + "\n"
}

// KeyFingerprint returns the SHA256 fingerprint of the configured key,
// for startup logging
func KeyFingerprint(keyData string) (string, error) {
	signer, err := ssh.ParsePrivateKey([]byte(NormalizePrivateKey(keyData)))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	hash := sha256.Sum256(signer.PublicKey().Marshal())
	return "SHA256:" + base64.RawStdEncoding.EncodeToString(hash[:]), nil
}

// Run executes one command with a per-command timeout and a hard outer
// deadline of timeout + 5s. The hard deadline unblocks the caller even
// when the remote stack never reports an error. On exit code 0 it returns
// trimmed stdout.
func (r *SSHRunner) Run(ctx context.Context, command string, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	type result struct {
		out string
		err error
	}
	resCh := make(chan result, 1)

	go func() {
		out, err := r.runOnce(ctx, command, timeout)
		resCh <- result{out, err}
	}()

	grace := r.grace
	if grace <= 0 {
		grace = hardTimeoutGrace
	}
	hard := time.NewTimer(timeout + grace)
	defer hard.Stop()

	select {
	case res := <-resCh:
		return res.out, res.err
	case <-hard.C:
		return "", fmt.Errorf("%w: no response after %s (hard limit)", ErrTimeout, timeout+grace)
	}
}

func (r *SSHRunner) runOnce(ctx context.Context, command string, timeout time.Duration) (string, error) {
	addr := net.JoinHostPort(r.host, fmt.Sprintf("%d", r.port))

	clientCfg := &ssh.ClientConfig{
		User:            r.user,
		Auth:            []ssh.AuthMethod{r.auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	client, err := r.dial("tcp", addr, clientCfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	// Cleanup must run exactly once on every exit path
	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() {
			client.Close()
		})
	}
	defer closeConn()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: failed to open session: %v", ErrTransport, err)
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(command); err != nil {
		session.Close()
		return "", fmt.Errorf("%w: failed to start command: %v", ErrTransport, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		session.Close()
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return "", &ExitError{Code: exitErr.ExitStatus(), Stderr: stderr.String()}
			}
			return "", fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return strings.TrimSpace(stdout.String()), nil

	case <-timer.C:
		session.Signal(ssh.SIGKILL)
		session.Close()
		closeConn()
		return "", fmt.Errorf("%w: %q exceeded %s", ErrTimeout, FirstLine(command), timeout)

	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		closeConn()
		return "", ctx.Err()
	}
}

// RunJSON executes a command expected to emit JSON on stdout and
// unmarshals the result into v
func RunJSON(ctx context.Context, r Runner, command string, timeout time.Duration, v any) error {
	out, err := r.Run(ctx, command, Options{Format: FormatJSON, Timeout: timeout})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		return fmt.Errorf("failed to parse command output as JSON: %w", err)
	}
	return nil
}
