package providerstrategy_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/provideroperation"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	"github.com/awslabs/host-factory-controlplane/pkg/launchtemplate"
	"github.com/awslabs/host-factory-controlplane/pkg/providerhandler"
	"github.com/awslabs/host-factory-controlplane/pkg/providerstrategy"
	"github.com/awslabs/host-factory-controlplane/pkg/resilience"
)

var errFakeSourceUnavailable = errors.New("fake template source unavailable")

// fakeAdapter is a ProvisioningAdapter test double: each call records its
// arguments and returns the canned result/error configured per test.
type fakeAdapter struct {
	acquireResult *providerhandler.AcquireResult
	acquireErr    error
	releaseReport *providerhandler.ReleaseReport
	releaseErr    error

	lastTemplate    *template.Template
	lastInstanceIDs []string
}

func (f *fakeAdapter) CreateInstances(_ context.Context, _ *request.Request, tmpl *template.Template) (*providerhandler.AcquireResult, error) {
	f.lastTemplate = tmpl
	return f.acquireResult, f.acquireErr
}

func (f *fakeAdapter) ReleaseInstances(_ context.Context, instanceIDs []string, _ []provideroperation.ResourceMapping) (*providerhandler.ReleaseReport, error) {
	f.lastInstanceIDs = instanceIDs
	return f.releaseReport, f.releaseErr
}

type fakeTemplateSource struct {
	templates []*template.Template
	err       error
}

func (f *fakeTemplateSource) AvailableTemplates(_ context.Context) ([]*template.Template, error) {
	return f.templates, f.err
}

func newTestExecutor() *resilience.Executor {
	return resilience.NewExecutor()
}

var _ = Describe("Strategy routing", func() {
	var (
		adapter  *fakeAdapter
		strategy *providerstrategy.Strategy
		tmpl     *template.Template
		req      *request.Request
	)

	BeforeEach(func() {
		adapter = &fakeAdapter{}
		strategy = providerstrategy.NewWithAdapter(nil, newTestExecutor(), adapter)

		var err error
		tmpl = &template.Template{
			TemplateID:       "tmpl-1",
			ImageID:          "ami-0123456789abcdef0",
			InstanceType:     "m5.large",
			SubnetIDs:        []string{"subnet-1"},
			SecurityGroupIDs: []string{"sg-1"},
			ProviderAPI:      template.APIRunInstances,
		}
		req, err = request.New("tmpl-1", 2)
		Expect(err).NotTo(HaveOccurred())
	})

	It("routes CREATE_INSTANCES to the adapter and projects the result", func() {
		adapter.acquireResult = &providerhandler.AcquireResult{
			Success:     true,
			ResourceIDs: []string{"fleet-1"},
			Instances:   []*machine.Machine{machine.New("i-1", "", "", "aws")},
		}

		result, err := strategy.Execute(context.Background(), provideroperation.Operation{
			Type: provideroperation.CreateInstances,
			Parameters: map[string]any{
				providerstrategy.ParamRequest:  req,
				providerstrategy.ParamTemplate: tmpl,
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		Expect(result.Data[providerstrategy.DataResourceIDs]).To(Equal([]string{"fleet-1"}))
		Expect(adapter.lastTemplate).To(Equal(tmpl))
	})

	It("short-circuits CREATE_INSTANCES in dry-run mode without touching the adapter", func() {
		result, err := strategy.Execute(context.Background(), provideroperation.Operation{
			Type:       provideroperation.CreateInstances,
			Context:    provideroperation.Context{DryRun: true},
			Parameters: map[string]any{providerstrategy.ParamTemplate: tmpl},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		Expect(adapter.lastTemplate).To(BeNil())
	})

	It("rejects CREATE_INSTANCES when no template parameter is supplied", func() {
		_, err := strategy.Execute(context.Background(), provideroperation.Operation{
			Type: provideroperation.CreateInstances,
		})
		Expect(err).To(HaveOccurred())
	})

	It("routes TERMINATE_INSTANCES to the adapter's ReleaseInstances", func() {
		adapter.releaseReport = &providerhandler.ReleaseReport{}
		_, err := strategy.Execute(context.Background(), provideroperation.Operation{
			Type:       provideroperation.TerminateInstances,
			Parameters: map[string]any{providerstrategy.ParamInstanceIDs: []string{"i-1", "i-2"}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.lastInstanceIDs).To(Equal([]string{"i-1", "i-2"}))
	})

	It("routes VALIDATE_TEMPLATE through the template's own Validate method", func() {
		result, err := strategy.Execute(context.Background(), provideroperation.Operation{
			Type:       provideroperation.ValidateTemplate,
			Parameters: map[string]any{providerstrategy.ParamTemplate: tmpl},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
	})

	It("rejects an unknown operation type", func() {
		_, err := strategy.Execute(context.Background(), provideroperation.Operation{Type: "NOT_A_REAL_OPERATION"})
		Expect(err).To(HaveOccurred())
	})

	It("routes GET_AVAILABLE_TEMPLATES through the configured TemplateSource", func() {
		source := &fakeTemplateSource{templates: []*template.Template{tmpl}}
		s := providerstrategy.New("us-east-1", newTestExecutor(), launchtemplate.Policy{}, source)

		result, err := s.Execute(context.Background(), provideroperation.Operation{Type: provideroperation.GetAvailableTemplates})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		Expect(result.Data[providerstrategy.DataTemplates]).To(Equal(source.templates))
	})

	It("falls back to the built-in template list when the TemplateSource errors", func() {
		source := &fakeTemplateSource{err: errFakeSourceUnavailable}
		s := providerstrategy.New("us-east-1", newTestExecutor(), launchtemplate.Policy{}, source)

		result, err := s.Execute(context.Background(), provideroperation.Operation{Type: provideroperation.GetAvailableTemplates})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
	})
})
