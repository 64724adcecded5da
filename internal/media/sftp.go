package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"catalog-sync/internal/config"
)

// SFTPStore uploads files to a remote directory, one connection per Save.
type SFTPStore struct {
	cfg config.SFTPConfig
}

func NewSFTPStore(cfg config.SFTPConfig) *SFTPStore {
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = "/"
	}
	return &SFTPStore{cfg: cfg}
}

// Save uploads r to RemoteDir/name and returns the remote path.
func (s *SFTPStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	cfg := s.cfg
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return "", fmt.Errorf("sftp: missing host, user or password")
	}

	hostKey, err := hostKeyCallback(cfg)
	if err != nil {
		return "", err
	}
	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Pass)},
		HostKeyCallback: hostKey,
		Timeout:         20 * time.Second,
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	// ssh.Dial has no context; race it against ctx.
	type dialRes struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialRes, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialRes{client: c, err: err}
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				r.client.Close()
			}
		}()
		return "", fmt.Errorf("sftp: dial canceled: %w", ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("sftp: dial error: %w", res.err)
		}
		sshClient = res.client
	}
	defer sshClient.Close()

	cli, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", fmt.Errorf("sftp: new client: %w", err)
	}
	defer cli.Close()

	return upload(cli, cfg.RemoteDir, name, r)
}

func hostKeyCallback(cfg config.SFTPConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if cfg.KnownHosts == "" {
		return nil, fmt.Errorf("sftp: known_hosts is required unless insecure_ignore_host_key is set")
	}
	cb, err := knownhosts.New(cfg.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("sftp: known_hosts: %w", err)
	}
	return cb, nil
}

// upload writes r to dir/name over an open session, creating parent directories.
func upload(cli *sftp.Client, dir, name string, r io.Reader) (string, error) {
	remotePath := path.Join(dir, name)
	if err := cli.MkdirAll(path.Dir(remotePath)); err != nil {
		return "", fmt.Errorf("sftp: mkdir %s: %w", path.Dir(remotePath), err)
	}

	dst, err := cli.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("sftp: create remote file: %w", err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		return "", fmt.Errorf("sftp: upload copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("sftp: close remote file: %w", err)
	}
	return remotePath, nil
}
