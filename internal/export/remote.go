package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// RemoteOptions configures uploads to ftp:// and sftp:// destinations.
type RemoteOptions struct {
	Timeout time.Duration
	// KnownHostsPath verifies sftp host keys; empty means ~/.ssh/known_hosts.
	KnownHostsPath string
	// KeyFile adds public key auth to sftp uploads.
	KeyFile string
}

// IsRemote reports whether dest is an ftp:// or sftp:// URL.
func IsRemote(dest string) bool {
	lower := strings.ToLower(dest)
	return strings.HasPrefix(lower, "ftp://") || strings.HasPrefix(lower, "sftp://")
}

// Upload stores data at dest. The document is written under a temporary
// name and renamed into place, so a failed upload never leaves a partial
// file at the final path.
func Upload(ctx context.Context, dest string, data []byte, opts RemoteOptions) error {
	u, err := url.Parse(dest)
	if err != nil {
		return fmt.Errorf("%w: invalid destination: %w", ErrExport, err)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: destination %s has no host", ErrExport, u.Redacted())
	}
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return fmt.Errorf("%w: destination %s has no file name", ErrExport, u.Redacted())
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	switch strings.ToLower(u.Scheme) {
	case "ftp":
		err = uploadFTP(ctx, u, data, opts)
	case "sftp":
		err = uploadSFTP(ctx, u, data, opts)
	default:
		return fmt.Errorf("%w: unsupported destination scheme %q", ErrExport, u.Scheme)
	}
	if err != nil {
		return fmt.Errorf("%w: upload to %s: %w", ErrExport, u.Redacted(), err)
	}
	return nil
}

func hostPort(u *url.URL, defaultPort string) string {
	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func tempName(remotePath string) string {
	return path.Join(path.Dir(remotePath), "."+path.Base(remotePath)+".part")
}

// ftpConn is the part of *ftp.ServerConn an upload needs.
type ftpConn interface {
	Stor(path string, r io.Reader) error
	Rename(from, to string) error
	Delete(path string) error
}

func uploadFTP(ctx context.Context, u *url.URL, data []byte, opts RemoteOptions) error {
	conn, err := ftp.Dial(hostPort(u, "21"),
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(opts.Timeout))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = conn.Quit() }()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return storeFTP(conn, u.Path, data)
}

func storeFTP(conn ftpConn, remotePath string, data []byte) error {
	tmp := tempName(remotePath)
	if err := conn.Stor(tmp, bytes.NewReader(data)); err != nil {
		_ = conn.Delete(tmp)
		return fmt.Errorf("failed to store %s: %w", tmp, err)
	}
	if err := conn.Rename(tmp, remotePath); err != nil {
		// Some servers refuse to rename over an existing file.
		if derr := conn.Delete(remotePath); derr == nil {
			err = conn.Rename(tmp, remotePath)
		}
		if err != nil {
			_ = conn.Delete(tmp)
			return fmt.Errorf("failed to rename %s: %w", tmp, err)
		}
	}
	return nil
}

func uploadSFTP(ctx context.Context, u *url.URL, data []byte, opts RemoteOptions) error {
	config, err := sshClientConfig(u, opts)
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: opts.Timeout}
	addr := hostPort(u, "22")
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		_ = netConn.Close()
		return fmt.Errorf("ssh handshake failed: %w", err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("failed to start sftp session: %w", err)
	}
	defer client.Close()
	return storeSFTP(client, u.Path, data)
}

func sshClientConfig(u *url.URL, opts RemoteOptions) (*ssh.ClientConfig, error) {
	knownHostsPath := opts.KnownHostsPath
	if knownHostsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate known_hosts: %w", err)
		}
		knownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
	}
	hostKeys, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts %s: %w", knownHostsPath, err)
	}

	var auth []ssh.AuthMethod
	if opts.KeyFile != "" {
		pem, err := os.ReadFile(opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	user := ""
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			auth = append(auth, ssh.Password(p))
		}
	}
	if user == "" {
		return nil, errors.New("sftp destination needs a user name")
	}
	if len(auth) == 0 {
		return nil, errors.New("sftp destination needs a password or a key file")
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         opts.Timeout,
	}, nil
}

func storeSFTP(client *sftp.Client, remotePath string, data []byte) error {
	if dir := path.Dir(remotePath); dir != "/" && dir != "." {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	tmp := tempName(remotePath)
	f, err := client.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = client.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = client.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}

	if err := client.PosixRename(tmp, remotePath); err != nil {
		// Plain SFTP rename fails when the target exists.
		if rerr := client.Remove(remotePath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			_ = client.Remove(tmp)
			return fmt.Errorf("failed to replace %s: %w", remotePath, rerr)
		}
		if err := client.Rename(tmp, remotePath); err != nil {
			_ = client.Remove(tmp)
			return fmt.Errorf("failed to rename %s: %w", tmp, err)
		}
	}
	return nil
}
