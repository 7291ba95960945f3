// Package providerhandler implements the four provider handlers of spec.md
// §4.4: RunInstances, EC2Fleet, SpotFleet, ASG. Each implements the shared
// Handler contract (acquire, poll_status, release).
package providerhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/awslabs/host-factory-controlplane/pkg/cloudclient"
	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/provideroperation"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	"github.com/awslabs/host-factory-controlplane/pkg/launchtemplate"
	"github.com/awslabs/host-factory-controlplane/pkg/resilience"
)

// AcquireResult is the output of Handler.Acquire, per spec.md §4.4.
type AcquireResult struct {
	Success      bool
	ResourceIDs  []string
	Instances    []*machine.Machine
	ProviderData map[string]any
	ErrorMessage string
	FleetErrors  []request.FleetError
}

// Handler is the shared contract of spec.md §4.4.
type Handler interface {
	// Name identifies the handler for request.metadata.handler_used.
	Name() string
	Acquire(ctx context.Context, req *request.Request, tmpl *template.Template) (*AcquireResult, error)
	PollStatus(ctx context.Context, req *request.Request) ([]*machine.Machine, error)
	Release(ctx context.Context, instanceIDs []string, mapping []provideroperation.ResourceMapping) (*ReleaseReport, error)
}

// Common holds the collaborators every handler needs: the cloud client
// façade, the resilience executor, and the launch-template manager.
type Common struct {
	Client   *cloudclient.Client
	Executor *resilience.Executor
	LT       *launchtemplate.Manager
}

// validatePrerequisites implements the common validation of spec.md §4.4.1
// step 1: image id, instance type(s), at least one subnet, at least one
// security group. Handler-specific extras are passed in and aggregated
// alongside the base checks so the caller sees one Validation error.
func validatePrerequisites(tmpl *template.Template, extra ...string) error {
	result := tmpl.Validate()
	errs := append([]string{}, result.Errors...)
	errs = append(errs, extra...)
	if len(errs) == 0 {
		return nil
	}
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e
	}
	return domainerrors.New(domainerrors.Validation, msg, nil)
}

// postCreationBackoff is the bounded delay of spec.md §4.4.7 applied before
// the first describe_instances call after a mutating create, to paper over
// IaaS eventual consistency.
const postCreationBackoff = 2 * time.Second

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func handlerTag(name string) map[string]any {
	return map[string]any{request.MetaHandlerUsed: name}
}

func wrapAWSErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return domainerrors.FromAWS(op, err)
}

func fmtErrors(errs []request.FleetError) string {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s: %s", e.ErrorCode, e.ErrorMessage)
	}
	return msg
}
