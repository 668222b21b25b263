// Copyright 2025 The Kube Resource Orchestrator Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"). You may
// not use this file except in compliance with the License. A copy of the
// License is located at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// or in the "license" file accompanying this file. This file is distributed
// on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either
// express or implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package aws provides the providers of the cloud kinds: networks,
// volumes, clusters and their node groups and addons, trust roles and
// databases.
package aws

import (
	"context"
	"fmt"
	"sync"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/go-logr/logr"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/provider"
)

// Kinds lists the kinds served by the AWS provider.
var Kinds = []v1alpha1.Kind{
	v1alpha1.KindNetwork,
	v1alpha1.KindStorageVolume,
	v1alpha1.KindCluster,
	v1alpha1.KindNodeGroup,
	v1alpha1.KindAddon,
	v1alpha1.KindTrustRole,
	v1alpha1.KindDatabase,
}

// driver manages the resources of one kind.
type driver interface {
	create(ctx context.Context, desired provider.Desired) (map[string]interface{}, error)
	update(ctx context.Context, desired provider.Desired) (map[string]interface{}, error)
	read(ctx context.Context, applied provider.Applied) (map[string]interface{}, error)
	delete(ctx context.Context, applied provider.Applied) error
}

// Clients holds the service clients used by the drivers. The SDK clients
// satisfy these interfaces; tests use mocks.
type Clients struct {
	EC2 EC2Client
	EFS EFSClient
	EKS EKSClient
	IAM IAMClient
	STS STSClient
	RDS RDSClient
}

// Provider dispatches the operations of the AWS kinds to their drivers.
type Provider struct {
	region  string
	sts     STSClient
	drivers map[v1alpha1.Kind]driver
	log     logr.Logger

	accountMu sync.Mutex
	account   string
}

var (
	_ provider.Provider = &Provider{}
	_ provider.Observer = &Provider{}
)

// NewProvider returns a provider using the SDK clients built from cfg.
func NewProvider(cfg awsv2.Config, log logr.Logger) *Provider {
	return NewProviderWithClients(cfg.Region, Clients{
		EC2: ec2.NewFromConfig(cfg),
		EFS: efs.NewFromConfig(cfg),
		EKS: eks.NewFromConfig(cfg),
		IAM: iam.NewFromConfig(cfg),
		STS: sts.NewFromConfig(cfg),
		RDS: rds.NewFromConfig(cfg),
	}, log)
}

// NewProviderWithClients returns a provider using custom clients.
func NewProviderWithClients(region string, clients Clients, log logr.Logger) *Provider {
	p := &Provider{
		region: region,
		sts:    clients.STS,
		log:    log.WithName("aws"),
	}
	p.drivers = map[v1alpha1.Kind]driver{
		v1alpha1.KindNetwork:       &networkDriver{client: clients.EC2, region: region},
		v1alpha1.KindStorageVolume: &volumeDriver{ec2: clients.EC2, efs: clients.EFS},
		v1alpha1.KindCluster:       &clusterDriver{client: clients.EKS},
		v1alpha1.KindNodeGroup:     &nodeGroupDriver{client: clients.EKS},
		v1alpha1.KindAddon:         &addonDriver{client: clients.EKS},
		v1alpha1.KindTrustRole:     &roleDriver{client: clients.IAM, account: p.accountID},
		v1alpha1.KindDatabase:      &databaseDriver{client: clients.RDS},
	}
	return p
}

// Register registers the provider for every AWS kind.
func (p *Provider) Register(registry *provider.Registry) {
	registry.Register(p, Kinds...)
}

func (p *Provider) driver(kind v1alpha1.Kind) (driver, error) {
	d, ok := p.drivers[kind]
	if !ok {
		return nil, fmt.Errorf("%w for kind %s", provider.ErrNoProvider, kind)
	}
	return d, nil
}

// Apply creates the resource, or updates it when it was applied before. A
// create that finds the resource already there updates it instead.
func (p *Provider) Apply(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	d, err := p.driver(desired.Kind)
	if err != nil {
		return nil, err
	}
	log := p.log.WithValues("id", desired.NodeID, "kind", desired.Kind)

	if desired.Previous == nil {
		log.V(1).Info("creating resource")
		outputs, err := d.create(ctx, desired)
		if err == nil || !isAlreadyExists(err) {
			return outputs, classify(err)
		}
		log.Info("resource already exists, adopting it")
	}

	log.V(1).Info("updating resource")
	outputs, err := d.update(ctx, desired)
	return outputs, classify(err)
}

// Observe reads the current outputs of the resource.
func (p *Provider) Observe(ctx context.Context, applied provider.Applied) (map[string]interface{}, error) {
	d, err := p.driver(applied.Entry.Kind)
	if err != nil {
		return nil, err
	}
	outputs, err := d.read(ctx, applied)
	return outputs, classify(err)
}

// Delete deletes the resource. A resource that is already gone is not an
// error.
func (p *Provider) Delete(ctx context.Context, applied provider.Applied) error {
	d, err := p.driver(applied.Entry.Kind)
	if err != nil {
		return err
	}
	p.log.V(1).Info("deleting resource", "id", applied.NodeID, "kind", applied.Entry.Kind)
	if err := d.delete(ctx, applied); err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify(err)
	}
	return nil
}

// accountID returns the id of the account the credentials belong to. It
// is looked up once.
func (p *Provider) accountID(ctx context.Context) (string, error) {
	p.accountMu.Lock()
	defer p.accountMu.Unlock()
	if p.account != "" {
		return p.account, nil
	}
	out, err := p.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("sts: get caller identity: %w", err)
	}
	p.account = awsv2.ToString(out.Account)
	return p.account, nil
}
