package sources

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

const TaskKubectlCommand = "kubectl_command"

// KubernetesManager shells out to kubectl with the connector's
// kubeconfig. Commands run under a context deadline.
type KubernetesManager struct {
	deps Deps
	log  logger.Logger
}

func NewKubernetesManager(deps Deps) *KubernetesManager {
	return &KubernetesManager{
		deps: deps,
		log:  deps.Logger.With("source", models.SourceKubernetes),
	}
}

func (m *KubernetesManager) Source() models.Source { return models.SourceKubernetes }

func (m *KubernetesManager) TaskTypes() []string { return []string{TaskKubectlCommand} }

func (m *KubernetesManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	out, err := m.runKubectl(ctx, connector, "kubectl version --client=false --output=yaml")
	if err != nil {
		return fmt.Errorf("kubernetes: cluster unreachable: %w (%s)", err, out)
	}
	return nil
}

func (m *KubernetesManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	if task.Type != TaskKubectlCommand {
		return nil, fmt.Errorf("kubernetes: unknown task type %q", task.Type)
	}
	var params models.KubectlCommandTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Command) == "" {
		return nil, fmt.Errorf("kubernetes: command is required")
	}

	var results []models.TaskResult
	for _, command := range splitCommands(params.Command) {
		if !strings.HasPrefix(command, "kubectl") {
			results = append(results, models.NewTextResult(models.SourceKubernetes,
				fmt.Sprintf("$ %s\nrejected: only kubectl commands are allowed", command)))
			continue
		}
		output, err := m.runKubectl(ctx, connector, command)
		if err != nil {
			results = append(results, models.NewTextResult(models.SourceKubernetes,
				fmt.Sprintf("$ %s\n%s\nerror: %v", command, output, err)))
			continue
		}
		results = append(results, models.NewTextResult(models.SourceKubernetes,
			fmt.Sprintf("$ %s\n%s", command, output)))
	}
	return results, nil
}

func (m *KubernetesManager) runKubectl(ctx context.Context, connector *models.Connector, command string) (string, error) {
	kubeconfig := connector.Credential(models.KeyKubeconfig)
	if kubeconfig == "" {
		return "", fmt.Errorf("kubernetes: %w: kubeconfig", models.ErrMissingCredential)
	}

	tmp, err := os.CreateTemp("", "sourcekit-kubeconfig-*")
	if err != nil {
		return "", fmt.Errorf("kubernetes: failed to stage kubeconfig: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(kubeconfig); err != nil {
		tmp.Close()
		return "", fmt.Errorf("kubernetes: failed to stage kubeconfig: %w", err)
	}
	tmp.Close()

	cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "bash", "-c", command)
	cmd.Env = append(os.Environ(), "KUBECONFIG="+tmp.Name())
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err = cmd.Run()
	return strings.TrimRight(buf.String(), "\n"), err
}
