package providerhandler

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"

	"github.com/awslabs/host-factory-controlplane/pkg/cloudclient"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/provideroperation"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	"github.com/awslabs/host-factory-controlplane/pkg/resilience"
)

// resourceKind distinguishes the owning resource type of a group discovered
// during release-path grouping, spec.md §4.4.6 step 1.
type resourceKind int

const (
	kindNoFleet resourceKind = iota
	kindEC2Fleet
	kindSpotFleet
	kindASG
)

// fleetIDTagKey/spotFleetIDTagKey are the EC2-side tags release grouping
// inspects to attribute an otherwise-unmapped instance to its owning fleet.
const (
	fleetIDTagKey     = "aws:ec2:fleet-id"
	spotFleetIDTagKey = "aws:ec2spot:fleet-request-id"
)

// ReleaseCoordinator implements the release-path grouping algorithm of
// spec.md §4.4.6: partition an opaque instance-id list by owning
// fleet/ASG, hydrate each group's current configuration, then dispatch the
// group's release to the handler that owns that resource kind.
type ReleaseCoordinator struct {
	Common
	EC2Fleet  *EC2FleetHandler
	SpotFleet *SpotFleetHandler
	ASG       *ASGHandler
}

func NewReleaseCoordinator(c Common) *ReleaseCoordinator {
	return &ReleaseCoordinator{
		Common:    c,
		EC2Fleet:  NewEC2FleetHandler(c),
		SpotFleet: NewSpotFleetHandler(c),
		ASG:       NewASGHandler(c),
	}
}

type group struct {
	kind        resourceKind
	resourceID  string
	instanceIDs []string
}

// Release is the provider strategy's single TERMINATE_INSTANCES entry point
// for resource-owning instances, spec.md §4.4.6.
func (rc *ReleaseCoordinator) Release(ctx context.Context, instanceIDs []string, mapping []provideroperation.ResourceMapping) (*ReleaseReport, error) {
	groups, err := rc.group(ctx, instanceIDs, mapping)
	if err != nil {
		return nil, err
	}

	report := NewReleaseReport()
	for _, g := range groups {
		var groupReport *ReleaseReport
		var groupErr error
		switch g.kind {
		case kindEC2Fleet:
			groupReport, groupErr = rc.releaseEC2Fleet(ctx, g)
		case kindSpotFleet:
			groupReport, groupErr = rc.releaseSpotFleet(ctx, g)
		case kindASG:
			groupReport, groupErr = rc.releaseASG(ctx, g)
		default:
			groupReport, groupErr = rc.releaseNoFleet(ctx, g)
		}
		if groupErr != nil {
			report.Record(g.resourceID, g.instanceIDs, groupErr)
			continue
		}
		report.Merge(groupReport)
	}
	return report, nil
}

// group implements step 1: attribute instances supplied via resource_mapping
// hints directly, then resolve anything left over via cloud-side tag lookup.
func (rc *ReleaseCoordinator) group(ctx context.Context, instanceIDs []string, mapping []provideroperation.ResourceMapping) ([]group, error) {
	hinted := map[string]string{} // instance id -> resource id
	for _, m := range mapping {
		if m.ResourceID != "" && m.DesiredCapacity > 0 {
			hinted[m.InstanceID] = m.ResourceID
		}
	}

	buckets := map[string][]string{}
	var unattributed []string
	for _, id := range instanceIDs {
		if rid, ok := hinted[id]; ok {
			buckets[rid] = append(buckets[rid], id)
			continue
		}
		unattributed = append(unattributed, id)
	}

	if len(unattributed) > 0 {
		resolved, noFleet, err := rc.lookupOwners(ctx, unattributed)
		if err != nil {
			return nil, err
		}
		for rid, ids := range resolved {
			buckets[rid] = append(buckets[rid], ids...)
		}
		buckets[""] = append(buckets[""], noFleet...)
	}

	groups := make([]group, 0, len(buckets))
	for rid, ids := range buckets {
		if rid == "" {
			groups = append(groups, group{kind: kindNoFleet, resourceID: "", instanceIDs: ids})
			continue
		}
		groups = append(groups, group{kind: classify(rid), resourceID: rid, instanceIDs: ids})
	}
	return groups, nil
}

// classify infers a resource's kind from its id shape: EC2Fleet ids are
// AWS-issued with a literal "fleet-" prefix; ASG names follow this control
// plane's own deterministic "hf-<template>-<request>" convention (spec.md
// §4.4.5); anything else is a spot-fleet request id (a bare UUID).
func classify(resourceID string) resourceKind {
	switch {
	case strings.HasPrefix(resourceID, "fleet-"):
		return kindEC2Fleet
	case strings.HasPrefix(resourceID, "hf-"):
		return kindASG
	default:
		return kindSpotFleet
	}
}

// lookupOwners resolves any instance id the caller didn't map, by inspecting
// its EC2-side fleet tags in chunks of at most MaxChunkSize, per spec.md
// §4.4.6 step 1. Instances carrying neither tag fall to "no-fleet".
func (rc *ReleaseCoordinator) lookupOwners(ctx context.Context, instanceIDs []string) (map[string][]string, []string, error) {
	resolved := map[string][]string{}
	var noFleet []string

	for _, chunk := range cloudclient.Chunk(instanceIDs, cloudclient.MaxChunkSize) {
		var out *ec2.DescribeInstancesOutput
		err := rc.Executor.Execute(ctx, "ec2", "describe_instances", resilience.ReadOnly, func(ctx context.Context) error {
			var callErr error
			out, callErr = rc.Client.EC2.DescribeInstancesWithContext(ctx, &ec2.DescribeInstancesInput{
				InstanceIds: aws.StringSlice(chunk),
			})
			return wrapAWSErr("describe_instances", callErr)
		})
		if err != nil {
			return nil, nil, err
		}
		found := map[string]bool{}
		for _, res := range out.Reservations {
			for _, inst := range res.Instances {
				id := aws.StringValue(inst.InstanceId)
				found[id] = true
				owner := ""
				for _, tag := range inst.Tags {
					switch aws.StringValue(tag.Key) {
					case fleetIDTagKey, spotFleetIDTagKey:
						owner = aws.StringValue(tag.Value)
					}
				}
				if owner == "" {
					noFleet = append(noFleet, id)
				} else {
					resolved[owner] = append(resolved[owner], id)
				}
			}
		}
		for _, id := range chunk {
			if !found[id] {
				noFleet = append(noFleet, id)
			}
		}
	}
	return resolved, noFleet, nil
}

func (rc *ReleaseCoordinator) releaseEC2Fleet(ctx context.Context, g group) (*ReleaseReport, error) {
	fleetType, currentTotal, err := rc.EC2Fleet.DescribeCapacity(ctx, g.resourceID)
	if err != nil {
		return nil, err
	}
	return rc.EC2Fleet.ReleaseGroup(ctx, g.resourceID, fleetType, currentTotal, currentTotal-len(g.instanceIDs), g.instanceIDs)
}

func (rc *ReleaseCoordinator) releaseSpotFleet(ctx context.Context, g group) (*ReleaseReport, error) {
	fleetType, currentTotal, err := rc.SpotFleet.DescribeCapacity(ctx, g.resourceID)
	if err != nil {
		return nil, err
	}
	return rc.SpotFleet.ReleaseGroup(ctx, g.resourceID, fleetType, currentTotal, currentTotal-len(g.instanceIDs), g.instanceIDs)
}

func (rc *ReleaseCoordinator) releaseASG(ctx context.Context, g group) (*ReleaseReport, error) {
	current, err := rc.ASG.CurrentDesiredCapacity(ctx, g.resourceID)
	if err != nil {
		return nil, err
	}
	return rc.ASG.ReleaseGroup(ctx, g.resourceID, current, g.instanceIDs)
}

func (rc *ReleaseCoordinator) releaseNoFleet(ctx context.Context, g group) (*ReleaseReport, error) {
	report := NewReleaseReport()
	var last error
	for _, chunk := range cloudclient.Chunk(g.instanceIDs, cloudclient.MaxChunkSize) {
		err := rc.Executor.Execute(ctx, "ec2", "terminate_instances", resilience.Critical, func(ctx context.Context) error {
			_, callErr := rc.Client.EC2.TerminateInstancesWithContext(ctx, &ec2.TerminateInstancesInput{InstanceIds: aws.StringSlice(chunk)})
			return wrapAWSErr("terminate_instances", callErr)
		})
		if err != nil {
			last = err
		}
	}
	report.Record("", g.instanceIDs, last)
	return report, nil
}
