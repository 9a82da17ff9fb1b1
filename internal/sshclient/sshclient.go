// Package sshclient is the Remote Shell Client (spec §4.1): a thin,
// single-command-per-session wrapper over golang.org/x/crypto/ssh. It is
// used as a black box by the firmware probe — connect, run one command
// with a timeout, return stdout or a classified failure.
package sshclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/iotstackcloud/teltonikaupdater/internal/rferrors"
	"golang.org/x/crypto/ssh"
)

const (
	// DefaultConnectTimeout bounds the TCP+SSH handshake.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultCommandTimeout bounds a single remote command when the
	// caller does not specify one.
	DefaultCommandTimeout = 60 * time.Second
)

// legacyAlgorithms is intentionally broad, including ciphers and key
// exchanges considered obsolete for general security purposes. Fleets of
// embedded routers often run firmware too old to negotiate a modern suite;
// this is a fleet-management property, not a security posture. Callers who
// need a stricter profile should build their own ssh.Config and pass it via
// WithSSHConfig.
var legacyAlgorithms = ssh.Config{
	KeyExchanges: []string{
		"curve25519-sha256", "ecdh-sha2-nistp256", "ecdh-sha2-nistp384", "ecdh-sha2-nistp521",
		"diffie-hellman-group14-sha256", "diffie-hellman-group14-sha1", "diffie-hellman-group1-sha1",
		"diffie-hellman-group-exchange-sha1", "diffie-hellman-group-exchange-sha256",
	},
	Ciphers: []string{
		"aes128-gcm@openssh.com", "aes256-gcm@openssh.com",
		"aes128-ctr", "aes192-ctr", "aes256-ctr",
		"aes128-cbc", "3des-cbc",
	},
	MACs: []string{
		"hmac-sha2-256", "hmac-sha2-512", "hmac-sha1", "hmac-sha1-96",
	},
}

// hostKeyAlgorithms mirrors the same accommodation for host key types.
var hostKeyAlgorithms = []string{
	ssh.KeyAlgoRSA, ssh.KeyAlgoDSA, ssh.KeyAlgoECDSA256, ssh.KeyAlgoECDSA384,
	ssh.KeyAlgoECDSA521, ssh.KeyAlgoED25519,
}

// Client executes single commands against remote routers over SSH.
// It is an interface so the firmware probe can be exercised against a
// test double without a real network.
type Client interface {
	Exec(ctx context.Context, host string, port int, user, password, command string, cmdTimeout time.Duration) (string, error)
}

// DefaultClient is the production Client implementation.
type DefaultClient struct {
	connectTimeout time.Duration
	sshConfig      *ssh.Config
}

// Option configures a DefaultClient.
type Option func(*DefaultClient)

// WithConnectTimeout overrides the default 30s connect timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *DefaultClient) { c.connectTimeout = d }
}

// WithSSHConfig lets a caller that needs a stricter algorithm profile
// supply its own allow-list instead of the fleet-management default.
func WithSSHConfig(cfg ssh.Config) Option {
	return func(c *DefaultClient) { c.sshConfig = &cfg }
}

// New constructs a DefaultClient.
func New(opts ...Option) *DefaultClient {
	c := &DefaultClient{
		connectTimeout: DefaultConnectTimeout,
		sshConfig:      &legacyAlgorithms,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exec opens a session to host:port, authenticates with user/password,
// runs exactly one command, and returns trimmed stdout. It resolves
// successfully when the command exits 0, or when it exits non-zero but
// produced stdout anyway — some vendor commands return a non-zero code
// while still emitting useful output. The accommodation applies to every
// command run through Exec.
func (c *DefaultClient) Exec(ctx context.Context, host string, port int, user, password, command string, cmdTimeout time.Duration) (string, error) {
	if cmdTimeout <= 0 {
		cmdTimeout = DefaultCommandTimeout
	}

	clientConfig := &ssh.ClientConfig{
		User:              user,
		Auth:              []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback:   ssh.InsecureIgnoreHostKey(), //nolint:gosec // managed fleet devices rarely carry stable host keys across reflashes
		HostKeyAlgorithms: hostKeyAlgorithms,
		Config:            *c.sshConfig,
		Timeout:           c.connectTimeout,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	connectCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	conn, err := dialContext(connectCtx, addr, clientConfig)
	if err != nil {
		return "", classifyDialErr(err)
	}
	defer conn.Close()

	session, err := conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: opening session: %v", rferrors.ErrInternal, err)
	}
	defer session.Close()

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(command); err != nil {
		return "", fmt.Errorf("%w: starting command: %v", rferrors.ErrInternal, err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	timer := time.NewTimer(cmdTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return resolveResult(stdout.String(), stderr.String(), err)
	case <-timer.C:
		_ = session.Close()
		return "", fmt.Errorf("%w after %s", rferrors.ErrTimeout, cmdTimeout)
	case <-ctx.Done():
		_ = session.Close()
		return "", fmt.Errorf("%w: %v", rferrors.ErrTimeout, ctx.Err())
	}
}

// dialContext performs the TCP+SSH handshake, cancellable via ctx.
func dialContext(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	type result struct {
		client *ssh.Client
		err    error
	}
	resCh := make(chan result, 1)

	go func() {
		conn, err := net.DialTimeout("tcp", addr, cfg.Timeout)
		if err != nil {
			resCh <- result{nil, err}
			return
		}
		sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
		if err != nil {
			conn.Close()
			resCh <- result{nil, err}
			return
		}
		resCh <- result{ssh.NewClient(sshConn, chans, reqs), nil}
	}()

	select {
	case r := <-resCh:
		return r.client, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveResult implements the exit-code/stdout accommodation documented
// on Exec: success if exit code is 0, or if exit code is non-zero but
// stdout is non-empty.
// exitStatuser is satisfied by *ssh.ExitError and lets tests exercise the
// non-zero-exit path without constructing a real ssh.ExitError.
type exitStatuser interface {
	error
	ExitStatus() int
}

func resolveResult(stdout, stderr string, waitErr error) (string, error) {
	trimmed := strings.TrimSpace(stdout)

	if waitErr == nil {
		return trimmed, nil
	}

	if exitErr, ok := waitErr.(exitStatuser); ok {
		if trimmed != "" {
			return trimmed, nil
		}
		return "", fmt.Errorf("%w", &rferrors.CommandFailure{Stderr: strings.TrimSpace(stderr), ExitCode: exitErr.ExitStatus()})
	}

	return "", classifySessionErr(waitErr)
}

// classifyDialErr maps connection-establishment failures to the error
// taxonomy.
func classifyDialErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", rferrors.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", rferrors.ErrTimeout, err)
	}
	if strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "auth") {
		return fmt.Errorf("%w: %v", rferrors.ErrAuthFailed, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && strings.Contains(opErr.Err.Error(), "connection refused") {
		return fmt.Errorf("%w: %v", rferrors.ErrUnreachable, err)
	}
	return fmt.Errorf("%w: %v", rferrors.ErrInternal, err)
}

// classifySessionErr classifies an error kind, not error text, deciding
// whether a session failure represents the remote end tearing down the
// connection (ConnectionClosed) versus some other failure. Classifying by
// kind rather than a substring match on the error message resolves the
// ambiguity spec.md §9 calls out explicitly.
func classifySessionErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", rferrors.ErrConnectionClosed, err)
	}
	if _, ok := err.(*ssh.ExitMissingError); ok {
		return fmt.Errorf("%w: %v", rferrors.ErrConnectionClosed, err)
	}
	return fmt.Errorf("%w: %v", rferrors.ErrInternal, err)
}
