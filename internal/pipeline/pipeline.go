package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/abanicaisse/dockhand/internal/config"
	"github.com/abanicaisse/dockhand/internal/deploy"
	"github.com/abanicaisse/dockhand/internal/nginx"
	"github.com/abanicaisse/dockhand/internal/provision"
	"github.com/abanicaisse/dockhand/internal/release"
	"github.com/abanicaisse/dockhand/internal/security"
	"github.com/abanicaisse/dockhand/internal/ssh"
	"github.com/abanicaisse/dockhand/internal/verify"
)

// Connector opens the remote channel for a validated request.
type Connector func(ctx context.Context, req *config.Request) (ssh.Executor, error)

// Outcome is the final state of one deployment run. It is populated as far
// as the run got; on failure FailedStage and ErrorDetail say where and why.
type Outcome struct {
	Success           bool
	Project           string
	Method            deploy.Method
	Revision          string
	ContainerStatus   string
	ProxyStatus       string
	LoopbackStatus    string
	ExternalReachable bool
	Warning           string
	FailedStage       string
	ErrorDetail       string
	Duration          time.Duration
}

// Pipeline runs one deployment request start to finish:
//
//	validate → connect → lock → provision → fetch → detect → deploy
//	→ proxy → verify
//
// Stages are synchronous and fail-fast. Remote mutations already applied
// when a later stage fails stay in place; there is no rollback.
type Pipeline struct {
	req *config.Request

	connect    Connector
	httpClient *http.Client
	lockStale  time.Duration
	onMessage  func(string)
}

// New creates a pipeline for the request, connecting over SSH with the
// request's host key policy and timeout.
func New(req *config.Request) *Pipeline {
	return &Pipeline{
		req:     req,
		connect: Connect,
	}
}

// SetConnector replaces how the remote channel is opened
func (p *Pipeline) SetConnector(c Connector) {
	if c != nil {
		p.connect = c
	}
}

// SetHTTPClient replaces the client used for the external reachability probe
func (p *Pipeline) SetHTTPClient(client *http.Client) {
	p.httpClient = client
}

// SetLockStaleAfter overrides the lock staleness window
func (p *Pipeline) SetLockStaleAfter(d time.Duration) {
	p.lockStale = d
}

// OnMessage sets a callback for progress messages
func (p *Pipeline) OnMessage(fn func(string)) {
	p.onMessage = fn
}

func (p *Pipeline) message(msg string) {
	if p.onMessage != nil {
		p.onMessage(msg)
	}
}

// Connect is the default Connector: an SSH client built from the request.
func Connect(ctx context.Context, req *config.Request) (ssh.Executor, error) {
	policy, err := ssh.ParseHostKeyPolicy(req.HostKeyPolicy)
	if err != nil {
		return nil, err
	}

	client := ssh.NewClient(req.RemoteHost, req.RemoteUser, req.SSHPort, req.SSHKeyPath,
		ssh.WithTimeout(req.SSHTimeout),
		ssh.WithHostKeyPolicy(policy),
	)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}

// Run executes the pipeline. The returned Outcome is always non-nil; the
// error is non-nil on any fatal stage failure and can be unwrapped to a
// *StageError naming the stage.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	start := time.Now()
	project := p.req.ProjectName()
	outcome := &Outcome{Project: project}
	red := security.NewRedactor(p.req.AccessToken)

	fail := func(stage Stage, err error, output string) (*Outcome, error) {
		detail := red.Redact(err.Error())
		output = red.Redact(output)
		outcome.FailedStage = stage.String()
		outcome.ErrorDetail = detail
		outcome.Duration = time.Since(start)
		zap.L().Error("stage failed",
			zap.String("project", project),
			zap.String("stage", stage.String()),
			zap.String("detail", detail),
			zap.String("output", output),
		)
		return outcome, &StageError{Stage: stage, Err: err, Output: output}
	}

	p.message("Validating deployment request")
	if errs := config.Validate(p.req); errs.HasErrors() {
		return fail(StageValidate, errs, "")
	}
	zap.L().Info("request validated",
		zap.String("project", project),
		zap.String("repository", p.req.RepositoryURL),
		zap.String("branch", p.req.Branch),
		zap.String("host", p.req.RemoteHost),
		zap.Int("port", p.req.ApplicationPort),
	)

	p.message(fmt.Sprintf("Connecting to %s@%s", p.req.RemoteUser, p.req.RemoteHost))
	exec, err := p.connect(ctx, p.req)
	if err != nil {
		return fail(StageConnect, err, "")
	}
	defer exec.Close()
	if err := ssh.Probe(ctx, exec); err != nil {
		return fail(StageConnect, fmt.Errorf("connectivity probe failed: %w", err), "")
	}
	zap.L().Info("connected", zap.String("host", p.req.RemoteHost))

	p.message("Acquiring deployment lock")
	lock := NewLock(exec, project)
	if p.lockStale > 0 {
		lock.SetStaleAfter(p.lockStale)
	}
	if err := lock.Acquire(ctx); err != nil {
		return fail(StageLock, err, "")
	}
	// best effort; a lock left behind goes stale and is stolen later
	defer func() { _ = lock.Release(ctx) }()

	p.message("Provisioning docker and nginx")
	provRes, err := provision.NewProvisioner(exec).Ensure(ctx)
	if err != nil {
		return fail(StageProvision, err, provisionOutput(err))
	}
	for _, step := range provRes.Steps {
		zap.L().Info("provision step",
			zap.String("step", step.Name),
			zap.Bool("changed", step.Changed),
		)
	}
	if err := provision.EnsureWorkspace(ctx, exec, p.req.RemoteUser); err != nil {
		return fail(StageProvision, err, provisionOutput(err))
	}

	p.message(fmt.Sprintf("Fetching %s@%s", project, p.req.Branch))
	rel, err := release.NewFetcher(exec).Fetch(ctx, p.req)
	if err != nil {
		return fail(StageFetch, err, "")
	}
	outcome.Revision = rel.Revision
	zap.L().Info("release fetched",
		zap.String("path", rel.Path),
		zap.String("revision", rel.Revision),
		zap.Bool("updated", rel.Updated),
	)

	method, err := deploy.DetectMethod(ctx, exec, rel.Path)
	if err != nil {
		return fail(StageDetect, err, "")
	}
	if method == deploy.MethodUnsupported {
		return fail(StageDetect,
			errors.New("no build descriptor found: the release has neither a Dockerfile nor a compose file"), "")
	}
	outcome.Method = method

	p.message(fmt.Sprintf("Deploying %s (%s)", project, method))
	deployRes, err := deploy.NewEngine(exec).Deploy(ctx, project, method, rel.Path, p.req.ApplicationPort)
	if err != nil {
		var deployErr *deploy.DeployError
		if errors.As(err, &deployErr) {
			return fail(StageDeploy, err, deployErr.Logs)
		}
		return fail(StageDeploy, err, "")
	}
	outcome.ContainerStatus = deployRes.ContainerStatus

	p.message(fmt.Sprintf("Routing port 80 to %d", p.req.ApplicationPort))
	route := nginx.Route{PublicPort: 80, TargetPort: p.req.ApplicationPort, ServerName: p.req.ServerName}
	if _, err := nginx.NewConfigurer(exec).Apply(ctx, project, route); err != nil {
		var proxyErr *nginx.ProxyConfigError
		if errors.As(err, &proxyErr) {
			return fail(StageProxy, err, proxyErr.Output)
		}
		return fail(StageProxy, err, "")
	}

	p.message("Verifying deployment")
	verifier := verify.NewVerifier(exec)
	if p.httpClient != nil {
		verifier.SetHTTPClient(p.httpClient)
	}
	report, err := verifier.Verify(ctx, project, p.req.RemoteHost, method, rel.Path)
	if report != nil {
		outcome.ContainerStatus = report.ContainerStatus
		outcome.ProxyStatus = report.ProxyStatus
		outcome.LoopbackStatus = report.LoopbackStatus
		outcome.ExternalReachable = report.ExternalReachable
		outcome.Warning = report.Warning
	}
	if err != nil {
		return fail(StageVerify, err, "")
	}

	outcome.Success = true
	outcome.Duration = time.Since(start)
	zap.L().Info("deployment complete",
		zap.String("project", project),
		zap.String("revision", outcome.Revision),
		zap.String("method", method.String()),
		zap.Bool("external_reachable", outcome.ExternalReachable),
		zap.Duration("duration", outcome.Duration),
	)
	return outcome, nil
}

// provisionOutput pulls the remote output out of a provisioning step error.
func provisionOutput(err error) string {
	var stepErr *provision.StepError
	if errors.As(err, &stepErr) {
		return stepErr.Output
	}
	return ""
}
