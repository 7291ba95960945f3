// Package cloudclient is the thin typed wrapper around the IaaS SDK surface
// actually consumed (EC2, Auto Scaling, STS) described in spec.md §2's "Cloud
// client façade": the single construction point, and the only place raw SDK
// errors are born (translated immediately via pkg/errors.FromAWS).
//
// Grounded on the AWS-specific instance provider retrieved alongside the
// teacher (other_examples/*karpenter-provider-aws*instance.go), which wraps
// ec2iface.EC2API/autoscalingiface the same way: one struct, constructed once,
// holding the raw SDK interfaces plus a region.
package cloudclient

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/autoscaling/autoscalingiface"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"
)

// Client is the process-wide lazily-initialised façade over the AWS SDK
// surface this control plane consumes: EC2, Auto Scaling, and STS (spec.md §6).
type Client struct {
	Region       string
	EC2          ec2iface.EC2API
	AutoScaling  autoscalingiface.AutoScalingAPI
	STS          stsiface.STSAPI
}

// New constructs a Client from a real AWS session. This is the only place in
// the module that talks to aws-sdk-go's session package.
func New(region string) (*Client, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            aws.Config{Region: aws.String(region)},
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		Region:      region,
		EC2:         ec2.New(sess),
		AutoScaling: autoscaling.New(sess),
		STS:         sts.New(sess),
	}, nil
}

// NewFromInterfaces builds a Client from pre-constructed SDK interfaces,
// letting handler and strategy tests inject a fake (pkg/cloudprovidertest)
// without a real AWS session.
func NewFromInterfaces(region string, ec2api ec2iface.EC2API, asgAPI autoscalingiface.AutoScalingAPI, stsAPI stsiface.STSAPI) *Client {
	return &Client{Region: region, EC2: ec2api, AutoScaling: asgAPI, STS: stsAPI}
}
