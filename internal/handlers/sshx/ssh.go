// Package sshx implements remote command execution over SSH. Targets
// come from call arguments, optionally filled from a named profile.
package sshx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"golang.org/x/crypto/ssh"

	"github.com/opsgate/opsgate/internal/profile"
	"github.com/opsgate/opsgate/internal/tool"
)

// DefaultPort is used when the target omits one.
const DefaultPort = 22

// Target describes one SSH endpoint with its credentials.
type Target struct {
	Host          string
	Port          int
	User          string
	Password      string
	PrivateKey    string
	Passphrase    string
	HostPublicKey string
}

// TargetFromArgs reads the connection fields, filling gaps from the
// named profile when one is given.
func TargetFromArgs(args tool.Args, profiles *profile.Store) (Target, error) {
	if name, err := args.String("profile"); err != nil {
		return Target{}, err
	} else if name != "" {
		if profiles == nil {
			return Target{}, tool.NotFound("profile_unknown", "no profile store is configured")
		}
		p, err := profiles.Export(name)
		if err != nil {
			return Target{}, err
		}
		args = tool.Args(tool.FillMissing(args, p.Data))
	}

	var t Target
	var err error
	if t.Host, err = args.RequiredString("host"); err != nil {
		return Target{}, err
	}
	if t.Port, err = args.Int("port", DefaultPort); err != nil {
		return Target{}, err
	}
	if t.User, err = args.RequiredString("user"); err != nil {
		return Target{}, err
	}
	if t.Password, err = args.String("password"); err != nil {
		return Target{}, err
	}
	if t.PrivateKey, err = args.String("private_key"); err != nil {
		return Target{}, err
	}
	if t.Passphrase, err = args.String("passphrase"); err != nil {
		return Target{}, err
	}
	if t.HostPublicKey, err = args.String("host_public_key"); err != nil {
		return Target{}, err
	}
	if t.Password == "" && t.PrivateKey == "" {
		return Target{}, tool.InvalidArgs("auth_missing", "either password or private_key is required")
	}
	return t, nil
}

// Dial opens an SSH client to the target, honouring the context
// deadline on both the TCP dial and the connection itself.
func Dial(ctx context.Context, t Target) (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{User: t.User}

	if t.PrivateKey != "" {
		var signer ssh.Signer
		var err error
		if t.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(t.PrivateKey), []byte(t.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(t.PrivateKey))
		}
		if err != nil {
			return nil, tool.InvalidArgs("key_invalid", "parsing private key: %s", err.Error())
		}
		cfg.Auth = append(cfg.Auth, ssh.PublicKeys(signer))
	}
	if t.Password != "" {
		cfg.Auth = append(cfg.Auth, ssh.Password(t.Password))
	}

	if t.HostPublicKey != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(t.HostPublicKey))
		if err != nil {
			return nil, tool.InvalidArgs("key_invalid", "parsing host public key: %s", err.Error())
		}
		cfg.HostKeyCallback = ssh.FixedHostKey(key)
	} else {
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	addr := net.JoinHostPort(t.Host, fmt.Sprintf("%d", t.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, tool.Upstream("ssh_dial", true, "dialing %s: %s", addr, err.Error())
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, tool.Internal("ssh_dial", "setting connection deadline: %s", err.Error())
		}
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, tool.Upstream("ssh_handshake", false, "ssh handshake with %s: %s", addr, err.Error())
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// Handler runs commands on remote hosts.
type Handler struct {
	profiles *profile.Store
}

// New creates the SSH handler.
func New(profiles *profile.Store) *Handler {
	return &Handler{profiles: profiles}
}

func (h *Handler) Name() string        { return "mcp_ssh" }
func (h *Handler) Description() string { return "Execute a command on a remote host over SSH" }

func (h *Handler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"host": {"type": "string"},
			"port": {"type": "integer"},
			"user": {"type": "string"},
			"command": {"type": "string"},
			"profile": {"type": "string"},
			"password": {"type": "string"},
			"private_key": {"type": "string"},
			"passphrase": {"type": "string"},
			"host_public_key": {"type": "string"}
		},
		"required": ["command"],
		"additionalProperties": true
	}`)
}

// Example implements tool.Exampler.
func (h *Handler) Example() map[string]any {
	return map[string]any{"profile": "web-1", "command": "uptime"}
}

func (h *Handler) Execute(ctx context.Context, call tool.ResolvedCall) (any, error) {
	args := tool.Args(call.Args)
	switch call.Action {
	case "", "exec":
	default:
		return nil, tool.InvalidArgs("action_unknown", "ssh supports exec, not %q", call.Action)
	}

	command, err := args.RequiredString("command")
	if err != nil {
		return nil, err
	}
	target, err := TargetFromArgs(args, h.profiles)
	if err != nil {
		return nil, err
	}

	client, err := Dial(ctx, target)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, tool.Upstream("ssh_session", true, "opening session: %s", err.Error())
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	exitCode := 0
	if err := session.Run(command); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitStatus()
		} else {
			if ctx.Err() != nil {
				return nil, tool.Timeout("deadline_exceeded", "remote command did not finish in time")
			}
			return nil, tool.Upstream("ssh_exec", false, "running command: %s", err.Error())
		}
	}

	return map[string]any{
		"host":      target.Host,
		"exit_code": exitCode,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
	}, nil
}
