// Package launchtemplate implements spec.md §4.3: create or reuse a cloud
// launch template (versioned), deriving its configuration from a domain
// Template + Request.
package launchtemplate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	hashstructure "github.com/mitchellh/hashstructure/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/awslabs/host-factory-controlplane/pkg/cloudclient"
	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	"github.com/awslabs/host-factory-controlplane/pkg/resilience"
)

// Policy configures the reuse/versioning behaviour of spec.md §4.3.
type Policy struct {
	ReuseExisting        bool
	CreatePerRequest      bool
	NamingStrategy        string
	CleanupOldVersions     bool
	MaxVersionsPerTemplate int
}

// DefaultPolicy matches a conservative default: one base launch template per
// domain Template, reused thereafter.
var DefaultPolicy = Policy{MaxVersionsPerTemplate: 20}

// Reference is the {template_id, version} output of spec.md §4.3.
type Reference struct {
	TemplateID string
	Version    string
}

type cacheEntry struct {
	ref  Reference
	hash uint64
}

// Manager resolves and, where needed, creates versioned EC2 launch templates.
type Manager struct {
	client   *cloudclient.Client
	executor *resilience.Executor
	policy   Policy
	cache    *gocache.Cache
}

// NewManager constructs a Manager. cache entries never expire: launch
// template identity is stable for the life of the domain Template.
func NewManager(client *cloudclient.Client, executor *resilience.Executor, policy Policy) *Manager {
	return &Manager{client: client, executor: executor, policy: policy, cache: gocache.New(gocache.NoExpiration, gocache.NoExpiration)}
}

// Resolve implements spec.md §4.3's policy table.
func (m *Manager) Resolve(ctx context.Context, tmpl *template.Template, req *request.Request) (Reference, error) {
	if tmpl.LaunchTemplate != nil {
		if tmpl.LaunchTemplate.Version != "" {
			// reuse_existing + id+version -> return as-is.
			return Reference{TemplateID: tmpl.LaunchTemplate.ID, Version: tmpl.LaunchTemplate.Version}, nil
		}
		// reuse_existing + id only -> resolve "latest" version.
		version, err := m.latestVersion(ctx, tmpl.LaunchTemplate.ID)
		if err != nil {
			return Reference{}, err
		}
		return Reference{TemplateID: tmpl.LaunchTemplate.ID, Version: version}, nil
	}

	payload := derivePayload(tmpl)
	hash, err := hashstructure.Hash(payload, hashstructure.FormatV2, nil)
	if err != nil {
		return Reference{}, domainerrors.New(domainerrors.Infra, "hashing launch template payload", err)
	}

	cacheKey := tmpl.TemplateID
	if m.policy.CreatePerRequest {
		cacheKey = tmpl.TemplateID + ":" + req.ID
	}

	if v, ok := m.cache.Get(cacheKey); ok {
		entry := v.(cacheEntry)
		if entry.hash == hash {
			return entry.ref, nil
		}
		// Template config changed: create a new version under the same launch template.
		version, err := m.createVersion(ctx, entry.ref.TemplateID, payload)
		if err != nil {
			return Reference{}, err
		}
		ref := Reference{TemplateID: entry.ref.TemplateID, Version: version}
		m.cache.Set(cacheKey, cacheEntry{ref: ref, hash: hash}, gocache.NoExpiration)
		return ref, nil
	}

	ref, err := m.createBase(ctx, tmpl, payload)
	if err != nil {
		return Reference{}, err
	}
	m.cache.Set(cacheKey, cacheEntry{ref: ref, hash: hash}, gocache.NoExpiration)
	return ref, nil
}

func (m *Manager) latestVersion(ctx context.Context, launchTemplateID string) (string, error) {
	var out *ec2.DescribeLaunchTemplateVersionsOutput
	err := m.executor.Execute(ctx, "ec2", "describe_launch_template_versions", resilience.ReadOnly, func(ctx context.Context) error {
		var callErr error
		out, callErr = m.client.EC2.DescribeLaunchTemplateVersionsWithContext(ctx, &ec2.DescribeLaunchTemplateVersionsInput{
			LaunchTemplateId: aws.String(launchTemplateID),
			Versions:         aws.StringSlice([]string{"$Latest"}),
		})
		return toDomainErr("describe_launch_template_versions", callErr)
	})
	if err != nil {
		return "", err
	}
	if len(out.LaunchTemplateVersions) == 0 {
		return "", domainerrors.New(domainerrors.NotFound, fmt.Sprintf("no versions for launch template %s", launchTemplateID), nil)
	}
	return fmt.Sprintf("%d", aws.Int64Value(out.LaunchTemplateVersions[0].VersionNumber)), nil
}

func (m *Manager) createVersion(ctx context.Context, launchTemplateID string, payload *ec2.RequestLaunchTemplateData) (string, error) {
	var out *ec2.CreateLaunchTemplateVersionOutput
	err := m.executor.Execute(ctx, "ec2", "create_launch_template_version", resilience.Standard, func(ctx context.Context) error {
		var callErr error
		out, callErr = m.client.EC2.CreateLaunchTemplateVersionWithContext(ctx, &ec2.CreateLaunchTemplateVersionInput{
			LaunchTemplateId:   aws.String(launchTemplateID),
			LaunchTemplateData: payload,
		})
		return toDomainErr("create_launch_template_version", callErr)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", aws.Int64Value(out.LaunchTemplateVersion.VersionNumber)), nil
}

func (m *Manager) createBase(ctx context.Context, tmpl *template.Template, payload *ec2.RequestLaunchTemplateData) (Reference, error) {
	name := launchTemplateName(m.policy, tmpl)
	var out *ec2.CreateLaunchTemplateOutput
	err := m.executor.Execute(ctx, "ec2", "create_launch_template", resilience.Standard, func(ctx context.Context) error {
		var callErr error
		out, callErr = m.client.EC2.CreateLaunchTemplateWithContext(ctx, &ec2.CreateLaunchTemplateInput{
			LaunchTemplateName: aws.String(name),
			LaunchTemplateData: payload,
		})
		return toDomainErr("create_launch_template", callErr)
	})
	if err != nil {
		return Reference{}, err
	}
	return Reference{
		TemplateID: aws.StringValue(out.LaunchTemplate.LaunchTemplateId),
		Version:    fmt.Sprintf("%d", aws.Int64Value(out.LaunchTemplate.LatestVersionNumber)),
	}, nil
}

func launchTemplateName(policy Policy, tmpl *template.Template) string {
	if policy.NamingStrategy != "" {
		return strings.ReplaceAll(policy.NamingStrategy, "{template_id}", tmpl.TemplateID)
	}
	return fmt.Sprintf("hf-%s-%d", tmpl.TemplateID, time.Now().UnixNano())
}

// derivePayload renders the declarative fields of spec.md §4.3: image id,
// primary instance type, security groups, key pair, IAM profile, user-data
// and tags. Subnets and block-device config are not rendered here.
// Per-fleet-type overrides live in the handler.
func derivePayload(tmpl *template.Template) *ec2.RequestLaunchTemplateData {
	data := &ec2.RequestLaunchTemplateData{
		ImageId:      aws.String(tmpl.ImageID),
		InstanceType: aws.String(tmpl.InstanceType),
		KeyName:      aws.String(tmpl.KeyPair),
		UserData:     aws.String(tmpl.UserData),
		SecurityGroupIds: aws.StringSlice(tmpl.SecurityGroupIDs),
	}
	if tmpl.IAMInstanceProfile != "" {
		data.IamInstanceProfile = &ec2.LaunchTemplateIamInstanceProfileSpecificationRequest{
			Name: aws.String(tmpl.IAMInstanceProfile),
		}
	}
	if len(tmpl.Tags) > 0 {
		var tagSpecs []*ec2.LaunchTemplateTagSpecificationRequest
		tags := make([]*ec2.Tag, 0, len(tmpl.Tags))
		for k, v := range tmpl.Tags {
			tags = append(tags, &ec2.Tag{Key: aws.String(k), Value: aws.String(v)})
		}
		tagSpecs = append(tagSpecs,
			&ec2.LaunchTemplateTagSpecificationRequest{ResourceType: aws.String(ec2.ResourceTypeInstance), Tags: tags},
			&ec2.LaunchTemplateTagSpecificationRequest{ResourceType: aws.String(ec2.ResourceTypeVolume), Tags: tags},
		)
		data.TagSpecifications = tagSpecs
	}
	return data
}

func toDomainErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return domainerrors.FromAWS(op, err)
}
