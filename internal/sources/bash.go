package sources

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

const TaskBashCommand = "execute_command"

// BashManager runs shell commands, either on a remote host over SSH or
// locally when the connector carries no host.
type BashManager struct {
	deps Deps
	log  logger.Logger
}

func NewBashManager(deps Deps) *BashManager {
	return &BashManager{
		deps: deps,
		log:  deps.Logger.With("source", models.SourceBash),
	}
}

func (m *BashManager) Source() models.Source { return models.SourceBash }

func (m *BashManager) TaskTypes() []string { return []string{TaskBashCommand} }

func (m *BashManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	host := connector.Credential(models.KeyHost)
	if host == "" {
		return nil // local execution needs no connectivity
	}
	client, err := m.dial(connector)
	if err != nil {
		return err
	}
	defer client.Close()
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("bash: failed to open ssh session: %w", err)
	}
	defer session.Close()
	return session.Run("true")
}

func (m *BashManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	if task.Type != TaskBashCommand {
		return nil, fmt.Errorf("bash: unknown task type %q", task.Type)
	}
	var params models.BashCommandTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Command) == "" {
		return nil, fmt.Errorf("bash: command is required")
	}

	host := params.RemoteHost
	if host == "" {
		host = connector.Credential(models.KeyHost)
	}

	var results []models.TaskResult
	for _, command := range splitCommands(params.Command) {
		var output string
		var err error
		if host == "" {
			output, err = m.runLocal(ctx, command)
		} else {
			output, err = m.runRemote(connector, host, command)
		}
		if err != nil {
			// Failed commands degrade to a text result carrying the
			// error and whatever output the command produced.
			msg := fmt.Sprintf("$ %s\n%s\nerror: %v", command, output, err)
			results = append(results, models.NewTextResult(models.SourceBash, msg))
			continue
		}
		results = append(results, models.NewTextResult(models.SourceBash, fmt.Sprintf("$ %s\n%s", command, output)))
	}
	return results, nil
}

// splitCommands lets one task carry several newline-separated commands,
// each producing its own result.
func splitCommands(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (m *BashManager) runLocal(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return strings.TrimRight(buf.String(), "\n"), err
}

func (m *BashManager) runRemote(connector *models.Connector, host, command string) (string, error) {
	client, err := m.dialHost(connector, host)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("bash: failed to open ssh session: %w", err)
	}
	defer session.Close()

	output, err := session.CombinedOutput(command)
	return strings.TrimRight(string(output), "\n"), err
}

func (m *BashManager) dial(connector *models.Connector) (*ssh.Client, error) {
	return m.dialHost(connector, connector.Credential(models.KeyHost))
}

func (m *BashManager) dialHost(connector *models.Connector, host string) (*ssh.Client, error) {
	if host == "" {
		return nil, fmt.Errorf("bash: %w: host", models.ErrMissingCredential)
	}

	user := connector.Credential(models.KeyUser)
	if at := strings.Index(host, "@"); at >= 0 {
		user = host[:at]
		host = host[at+1:]
	}
	if user == "" {
		user = "root"
	}

	var auth []ssh.AuthMethod
	if pem := connector.Credential(models.KeySSHKey); pem != "" {
		signer, err := ssh.ParsePrivateKey([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("bash: failed to parse ssh private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if password := connector.Credential(models.KeyPassword); password != "" {
		auth = append(auth, ssh.Password(password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("bash: %w: ssh_private_key or password", models.ErrMissingCredential)
	}

	port := connector.Credential(models.KeyPort)
	if port == "" {
		port = "22"
	}

	config := &ssh.ClientConfig{
		User: user,
		Auth: auth,
		// Connectors are operator-provisioned; host keys are not pinned.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}
	client, err := ssh.Dial("tcp", net.JoinHostPort(host, port), config)
	if err != nil {
		return nil, fmt.Errorf("bash: ssh dial %s failed: %w", host, err)
	}
	return client, nil
}
