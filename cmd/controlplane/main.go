/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// cmd/controlplane is the process entrypoint: it wires config, repositories,
// the unit-of-work factory, the provider strategy/selection stack, and the
// command/query buses into a Runtime, then dispatches one of the upstream
// scheduler contract's four verbs (getAvailableTemplates, requestMachines,
// requestReturnMachines, getRequestStatus) against it — the same verb/input
// file/output-on-stdout shape the upstream host-factory contract uses to
// invoke a provider plugin as a short-lived process rather than a long-running
// server, per spec.md §6's external interfaces.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/awslabs/host-factory-controlplane/pkg/commands"
	"github.com/awslabs/host-factory-controlplane/pkg/config"
	"github.com/awslabs/host-factory-controlplane/pkg/cqrs"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	"github.com/awslabs/host-factory-controlplane/pkg/events"
	"github.com/awslabs/host-factory-controlplane/pkg/launchtemplate"
	"github.com/awslabs/host-factory-controlplane/pkg/log"
	"github.com/awslabs/host-factory-controlplane/pkg/providerselect"
	"github.com/awslabs/host-factory-controlplane/pkg/providerstrategy"
	"github.com/awslabs/host-factory-controlplane/pkg/queries"
	"github.com/awslabs/host-factory-controlplane/pkg/repository"
	"github.com/awslabs/host-factory-controlplane/pkg/resilience"
	"github.com/awslabs/host-factory-controlplane/pkg/schedulercontract"
	"github.com/awslabs/host-factory-controlplane/pkg/uow"
)

// Runtime bundles every wired component a CLI verb needs to dispatch a
// command or query (§4.6: verbs never call the strategy directly). The one
// direct repository access is Templates, which requestMachines uses to save
// the scheduler-supplied template before dispatching its command.
type Runtime struct {
	Commands  *cqrs.CommandBus
	Queries   *cqrs.QueryBus
	Templates template.Repository
	cancelHealth context.CancelFunc
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the control plane configuration file")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: controlplane [-config path] <getAvailableTemplates|requestMachines|requestReturnMachines|getRequestStatus> [inputFile]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}

	logger, err := log.New("production")
	if err != nil {
		fmt.Fprintln(os.Stderr, "building logger:", err)
		os.Exit(1)
	}
	ctx := log.IntoContext(context.Background(), logger)

	rt, err := build(ctx, cfg)
	if err != nil {
		logger.Errorw("building runtime", "error", err)
		os.Exit(1)
	}
	defer rt.cancelHealth()

	verb := args[0]
	var inputPath string
	if len(args) > 1 {
		inputPath = args[1]
	}

	out, err := dispatch(ctx, rt, verb, inputPath)
	if err != nil {
		logger.Errorw("dispatching verb", "verb", verb, "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Errorw("encoding output", "error", err)
		os.Exit(1)
	}
}

// build wires every package's constructor, lazily where the packages
// themselves are lazy (pkg/providerstrategy.Strategy only touches AWS on
// first Execute), per spec.md §4.5.
func build(ctx context.Context, cfg config.Config) (*Runtime, error) {
	requests, machines, templates, err := buildRepositories(cfg)
	if err != nil {
		return nil, err
	}

	publisher := events.NewPublisher()
	events.Subscribe[events.RequestCreated](publisher, func(ctx context.Context, e events.RequestCreated) {
		log.FromContext(ctx).Infow("request created", "request_id", e.RequestID, "template_id", e.TemplateID)
	})
	events.Subscribe[events.RequestStatusChanged](publisher, func(ctx context.Context, e events.RequestStatusChanged) {
		log.FromContext(ctx).Infow("request status changed", "request_id", e.RequestID, "from", e.From, "to", e.To)
	})
	events.Subscribe[events.MachineDiscovered](publisher, func(ctx context.Context, e events.MachineDiscovered) {
		log.FromContext(ctx).Infow("machine discovered", "request_id", e.RequestID, "machine_id", e.MachineID)
	})

	uowFactory := uow.NewFactory(requests, machines, templates, publisher)

	executor := &resilience.Executor{Breakers: resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold: cfg.Provider.CircuitBreaker.FailureThreshold,
		ResetTimeout:      time.Duration(cfg.Provider.CircuitBreaker.RecoveryTimeout) * time.Second,
		HalfOpenTimeout:   time.Duration(cfg.Provider.CircuitBreaker.RecoveryTimeout) * time.Second,
		HalfOpenMaxCalls:  cfg.Provider.CircuitBreaker.HalfOpenMaxCalls,
	})}

	ltPolicy := launchtemplate.Policy{
		ReuseExisting:          cfg.LaunchTemplate.ReuseExisting,
		CreatePerRequest:       cfg.LaunchTemplate.CreatePerRequest,
		NamingStrategy:         cfg.LaunchTemplate.NamingStrategy,
		CleanupOldVersions:     cfg.LaunchTemplate.CleanupOldVersions,
		MaxVersionsPerTemplate: cfg.LaunchTemplate.MaxVersionsPerTemplate,
	}

	strategy := providerstrategy.New(cfg.Region, executor, ltPolicy, nil)

	registry := buildProviderRegistry(cfg)
	selector := providerselect.NewSelector(registry, providerselect.Policy(cfg.Provider.SelectionPolicy))
	capability := providerselect.NewCapabilityValidator(nil)

	healthCtx, cancelHealth := context.WithCancel(ctx)
	checkers := map[string]providerselect.HealthChecker{}
	for _, inst := range registry.Enabled() {
		checkers[inst.Name] = strategy
	}
	healthLoop := providerselect.NewHealthLoop(registry, checkers, time.Duration(cfg.Provider.HealthCheckInterval)*time.Second)
	go healthLoop.Run(healthCtx)

	commandBus := cqrs.NewCommandBus()
	queryBus := cqrs.NewQueryBus()

	cqrs.RegisterQuery(queryBus, (&queries.GetTemplateHandler{Templates: templates}).Handle)
	cqrs.RegisterQuery(queryBus, (&queries.GetAvailableTemplatesHandler{Strategy: strategy}).Handle)
	cqrs.RegisterQuery(queryBus, (&queries.GetMachineHandler{Machines: machines}).Handle)
	statusHandler := &queries.GetRequestStatusHandler{Requests: requests, Machines: machines, Strategy: strategy}
	cqrs.RegisterQuery(queryBus, statusHandler.Handle)
	cqrs.RegisterQuery(queryBus, (&queries.GetRequestStatusesHandler{Single: statusHandler, Requests: requests}).Handle)

	cqrs.Register(commandBus, (&commands.CreateMachineRequestHandler{
		UoW: uowFactory, QueryBus: queryBus, Selector: selector, Capability: capability, Strategy: strategy,
	}).Handle)
	cqrs.Register(commandBus, (&commands.CreateReturnRequestHandler{UoW: uowFactory, Strategy: strategy}).Handle)
	cqrs.Register(commandBus, (&commands.UpdateRequestStatusHandler{UoW: uowFactory}).Handle)
	cqrs.Register(commandBus, (&commands.CancelRequestHandler{UoW: uowFactory}).Handle)
	cqrs.Register(commandBus, (&commands.CompleteRequestHandler{UoW: uowFactory}).Handle)

	return &Runtime{Commands: commandBus, Queries: queryBus, Templates: templates, cancelHealth: cancelHealth}, nil
}

func buildRepositories(cfg config.Config) (request.Repository, machine.Repository, template.Repository, error) {
	switch cfg.Storage.Strategy {
	case config.StorageJSON:
		if err := os.MkdirAll(cfg.Storage.JSONPath, 0o755); err != nil {
			return nil, nil, nil, err
		}
		return repository.NewJSONFileRequests(cfg.Storage.JSONPath + "/requests.json"),
			repository.NewJSONFileMachines(cfg.Storage.JSONPath + "/machines.json"),
			repository.NewJSONFileTemplates(cfg.Storage.JSONPath + "/templates.json"), nil
	default:
		// storage.strategy: sql is named in spec.md §6 but no SQL driver
		// appears in any example go.mod; in-memory is the only other
		// repository adapter this tree carries (see DESIGN.md).
		return repository.NewInMemoryRequests(), repository.NewInMemoryMachines(), repository.NewInMemoryTemplates(), nil
	}
}

func buildProviderRegistry(cfg config.Config) *providerselect.Registry {
	instances := make([]*providerselect.Instance, 0, len(cfg.Provider.Providers))
	for _, p := range cfg.Provider.Providers {
		if !p.Enabled {
			continue
		}
		instances = append(instances, providerselect.NewInstance(p.Name, p.Type, p.Priority, p.Weight, p.Capabilities))
	}
	return providerselect.NewRegistry(instances...)
}

// dispatch maps one upstream scheduler verb onto the command/query bus,
// reading its input file (when the verb takes one) and returning the
// scheduler-contract wire shape for that verb.
func dispatch(ctx context.Context, rt *Runtime, verb, inputPath string) (any, error) {
	switch verb {
	case "getAvailableTemplates":
		return rt.Queries.Execute(ctx, queries.GetAvailableTemplatesQuery{})

	case "requestMachines":
		var in struct {
			Template     schedulercontract.TemplateInput `json:"template"`
			MachineCount int                              `json:"machineCount"`
		}
		if err := readJSON(inputPath, &in); err != nil {
			return nil, err
		}
		tmpl := schedulercontract.ToDomainTemplate(in.Template)
		if err := rt.Templates.Save(ctx, tmpl); err != nil {
			return nil, err
		}
		requestID, err := rt.Commands.Execute(ctx, commands.CreateMachineRequestCommand{
			TemplateID:     tmpl.TemplateID,
			RequestedCount: in.MachineCount,
		})
		if err != nil {
			return nil, err
		}
		id, _ := requestID.(string)
		return schedulercontract.CreateRequestResponse{RequestID: id, Message: "request accepted"}, nil

	case "requestReturnMachines":
		var in struct {
			Machines []struct {
				MachineID string `json:"machineId"`
			} `json:"machines"`
		}
		if err := readJSON(inputPath, &in); err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(in.Machines))
		for _, m := range in.Machines {
			ids = append(ids, m.MachineID)
		}
		requestID, err := rt.Commands.Execute(ctx, commands.CreateReturnRequestCommand{MachineIDs: ids})
		if err != nil {
			return nil, err
		}
		id, _ := requestID.(string)
		return schedulercontract.CreateRequestResponse{RequestID: id, Message: "return request accepted"}, nil

	case "getRequestStatus", "getReturnRequestStatus":
		var in struct {
			Requests []struct {
				RequestID string `json:"requestId"`
			} `json:"requests"`
		}
		if err := readJSON(inputPath, &in); err != nil {
			return nil, err
		}
		if len(in.Requests) == 0 {
			return rt.Queries.Execute(ctx, queries.GetRequestStatusesQuery{})
		}
		entries := make([]schedulercontract.RequestStatusEntry, 0, len(in.Requests))
		for _, r := range in.Requests {
			result, err := rt.Queries.Execute(ctx, queries.GetRequestStatusQuery{RequestID: r.RequestID})
			if err != nil {
				return nil, err
			}
			entry, ok := result.(schedulercontract.RequestStatusEntry)
			if !ok {
				return nil, fmt.Errorf("unexpected query result shape for request %s", r.RequestID)
			}
			entries = append(entries, entry)
		}
		return schedulercontract.RequestStatusResponse{Requests: entries}, nil

	default:
		return nil, fmt.Errorf("unknown verb %q", verb)
	}
}

func readJSON(path string, v any) error {
	if path == "" {
		return fmt.Errorf("this verb requires an input file argument")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading input file %s: %w", path, err)
	}
	return json.Unmarshal(data, v)
}
