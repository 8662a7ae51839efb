package verify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/abanicaisse/dockhand/internal/deploy"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

// Verifier confirms a finished deployment actually serves: the instance
// runs, nginx is active, the proxy answers on the host itself, and the
// host answers from outside.
type Verifier struct {
	exec       ssh.Executor
	httpClient *http.Client
}

// NewVerifier creates a verifier with a 10s external probe timeout.
func NewVerifier(exec ssh.Executor) *Verifier {
	return &Verifier{
		exec:       exec,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetHTTPClient replaces the external probe client
func (v *Verifier) SetHTTPClient(client *http.Client) {
	v.httpClient = client
}

// Report is the observed state of the deployment.
type Report struct {
	ContainerStatus   string
	ProxyStatus       string
	LoopbackStatus    string
	ExternalReachable bool
	Warning           string
}

// Verify runs all four checks. The first three are fatal when they fail;
// the external probe only downgrades to a warning, since a firewall
// between operator and host does not mean the deployment is broken.
func (v *Verifier) Verify(ctx context.Context, project, host string, method deploy.Method, path string) (*Report, error) {
	report := &Report{}

	status, err := deploy.InstanceStatus(ctx, v.exec, project, method, path)
	if err != nil {
		return nil, err
	}
	report.ContainerStatus = status
	if status == "" {
		return report, fmt.Errorf("instance %q is not running", project)
	}

	proxyStatus, err := v.proxyStatus(ctx)
	if err != nil {
		return nil, err
	}
	report.ProxyStatus = proxyStatus
	if proxyStatus != "active" {
		return report, fmt.Errorf("nginx is %s", proxyStatus)
	}

	code, err := v.loopbackProbe(ctx)
	if err != nil {
		return nil, err
	}
	report.LoopbackStatus = code
	if code == "000" || code == "" {
		return report, fmt.Errorf("proxy did not answer on 127.0.0.1:80 (the proxy-to-application path is broken)")
	}

	if v.externalProbe(ctx, host) {
		report.ExternalReachable = true
	} else {
		report.Warning = fmt.Sprintf(
			"the application serves locally but http://%s/ is not reachable from this machine; check firewall or security group rules for port 80", host)
	}

	return report, nil
}

func (v *Verifier) proxyStatus(ctx context.Context) (string, error) {
	res, err := v.exec.Exec(ctx, "systemctl is-active nginx")
	if err != nil {
		return "", fmt.Errorf("failed to read nginx status: %w", err)
	}
	status := strings.TrimSpace(res.Stdout)
	if status == "" {
		status = "unknown"
	}
	return status, nil
}

// loopbackProbe asks the host itself for an HTTP status through the proxy;
// any status code means the route works, 000 means nothing answered.
func (v *Verifier) loopbackProbe(ctx context.Context) (string, error) {
	res, err := v.exec.Exec(ctx, "curl -s -o /dev/null -w '%{http_code}' --max-time 10 http://127.0.0.1:80/")
	if err != nil {
		return "", fmt.Errorf("failed to probe the proxy: %w", err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (v *Verifier) externalProbe(ctx context.Context, host string) bool {
	url := fmt.Sprintf("http://%s/", host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
