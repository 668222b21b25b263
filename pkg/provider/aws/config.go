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

package aws

import (
	"context"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// DefaultRegion is used when neither the options nor the environment name
// a region.
const DefaultRegion = "us-east-1"

// Options select the region and the credentials of the AWS clients. Empty
// fields fall back to the SDK default chain (environment, shared config,
// instance role).
type Options struct {
	Region  string
	Profile string
	// AccessKeyID and SecretAccessKey set static credentials.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// RoleARN is assumed on top of the base credentials.
	RoleARN string
}

// LoadConfig loads the SDK configuration.
func LoadConfig(ctx context.Context, opts Options) (awsv2.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return awsv2.Config{}, fmt.Errorf("aws: load config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	if opts.RoleARN != "" {
		assumed := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), opts.RoleARN)
		cfg.Credentials = awsv2.NewCredentialsCache(assumed)
	}
	return cfg, nil
}
