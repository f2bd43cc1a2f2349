package provisioning

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/client-go/tools/clientcmd"

	"github.com/flyk3s/flyk3s/internal/config"
	"github.com/flyk3s/flyk3s/internal/util/naming"
)

// k3sKubeconfigPath is where the k3s server writes its admin kubeconfig.
const k3sKubeconfigPath = "/etc/rancher/k3s/k3s.yaml"

// FetchKubeconfig retrieves the admin kubeconfig from the bootstrap node,
// rewrites the loopback server address to the control plane app's stable
// internal DNS name, renames the default context to the cluster name, and
// writes the result to destDir. It returns the written path.
func (o *Orchestrator) FetchKubeconfig(ctx context.Context, destDir string) (string, error) {
	bootstrap, err := o.boot.LocateBootstrap(ctx)
	if err != nil {
		return "", err
	}
	app := naming.ControlPlaneApp(o.cfg.Name)

	res, err := o.fleet.Exec(ctx, app, bootstrap.ID, []string{"cat", k3sKubeconfigPath})
	if err != nil {
		return "", fmt.Errorf("failed to read kubeconfig: %w", err)
	}
	if res.ExitCode != 0 || strings.TrimSpace(res.Stdout) == "" {
		return "", fmt.Errorf("reading %s exited %d: %s", k3sKubeconfigPath, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	rewritten, err := RewriteKubeconfig([]byte(res.Stdout), o.cfg.Name, naming.InternalAppAddr(app))
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create credentials directory: %w", err)
	}
	path := filepath.Join(destDir, o.cfg.Name+".yaml")
	if err := os.WriteFile(path, rewritten, 0o600); err != nil {
		return "", fmt.Errorf("failed to write kubeconfig: %w", err)
	}
	log.Printf("Wrote kubeconfig to %s", path)
	return path, nil
}

// RewriteKubeconfig points every cluster entry at the fleet's stable
// internal address and renames the default context to clusterName.
func RewriteKubeconfig(raw []byte, clusterName, serverHost string) ([]byte, error) {
	kc, err := clientcmd.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kubeconfig: %w", err)
	}

	server := fmt.Sprintf("https://%s:%d", serverHost, config.KubeAPIPort)
	for _, cluster := range kc.Clusters {
		cluster.Server = server
	}

	if cctx, ok := kc.Contexts["default"]; ok {
		kc.Contexts[clusterName] = cctx
		delete(kc.Contexts, "default")
	}
	if kc.CurrentContext == "default" {
		kc.CurrentContext = clusterName
	}

	out, err := clientcmd.Write(*kc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize kubeconfig: %w", err)
	}
	return out, nil
}
