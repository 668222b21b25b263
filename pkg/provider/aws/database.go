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
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/kro-run/stackgraph/pkg/provider"
)

const (
	DefaultDBEngine         = "postgres"
	DefaultDBInstanceClass  = "db.t3.micro"
	DefaultAllocatedStorage = 20
	DefaultDBUsername       = "stackgraph"
)

// RDSClient defines the RDS operations for databases.
type RDSClient interface {
	CreateDBInstance(ctx context.Context, params *rds.CreateDBInstanceInput, optFns ...func(*rds.Options)) (*rds.CreateDBInstanceOutput, error)
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	ModifyDBInstance(ctx context.Context, params *rds.ModifyDBInstanceInput, optFns ...func(*rds.Options)) (*rds.ModifyDBInstanceOutput, error)
	DeleteDBInstance(ctx context.Context, params *rds.DeleteDBInstanceInput, optFns ...func(*rds.Options)) (*rds.DeleteDBInstanceOutput, error)
}

// databaseDriver manages RDS instances. The master password is managed by
// RDS in Secrets Manager and never goes through the orchestrator.
type databaseDriver struct {
	client RDSClient
}

func dbIdentifier(stack, nodeID string, params map[string]interface{}) string {
	if id := stringProp(params, "identifier"); id != "" {
		return id
	}
	return resourceName(stack, nodeID, params)
}

func (d *databaseDriver) create(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	id := dbIdentifier(desired.Stack, desired.NodeID, desired.Parameters)
	input := &rds.CreateDBInstanceInput{
		DBInstanceIdentifier:     awsv2.String(id),
		Engine:                   awsv2.String(stringPropDefault(desired.Parameters, "engine", DefaultDBEngine)),
		DBInstanceClass:          awsv2.String(stringPropDefault(desired.Parameters, "instanceClass", DefaultDBInstanceClass)),
		AllocatedStorage:         int32Prop(desired.Parameters, "allocatedStorage", DefaultAllocatedStorage),
		MasterUsername:           awsv2.String(stringPropDefault(desired.Parameters, "username", DefaultDBUsername)),
		ManageMasterUserPassword: awsv2.Bool(true),
		Tags:                     rdsTags(tags(desired)),
	}
	if v := stringProp(desired.Parameters, "engineVersion"); v != "" {
		input.EngineVersion = awsv2.String(v)
	}
	if v := stringProp(desired.Parameters, "databaseName"); v != "" {
		input.DBName = awsv2.String(v)
	}
	if v := stringProp(desired.Parameters, "subnetGroupName"); v != "" {
		input.DBSubnetGroupName = awsv2.String(v)
	}

	out, err := d.client.CreateDBInstance(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("rds: create %q: %w", id, err)
	}
	return dbOutputs(out.DBInstance), nil
}

func (d *databaseDriver) update(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	id := dbIdentifier(desired.Stack, desired.NodeID, desired.Parameters)
	input := &rds.ModifyDBInstanceInput{
		DBInstanceIdentifier: awsv2.String(id),
		ApplyImmediately:     awsv2.Bool(true),
	}
	if v := stringProp(desired.Parameters, "instanceClass"); v != "" {
		input.DBInstanceClass = awsv2.String(v)
	}
	if v := stringProp(desired.Parameters, "engineVersion"); v != "" {
		input.EngineVersion = awsv2.String(v)
	}
	if storage := intProp(desired.Parameters, "allocatedStorage", 0); storage > 0 {
		input.AllocatedStorage = awsv2.Int32(int32(storage))
	}

	out, err := d.client.ModifyDBInstance(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("rds: modify %q: %w", id, err)
	}
	return dbOutputs(out.DBInstance), nil
}

func (d *databaseDriver) read(ctx context.Context, applied provider.Applied) (map[string]interface{}, error) {
	id := dbIdentifier(applied.Stack, applied.NodeID, applied.Entry.Parameters)
	out, err := d.client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: awsv2.String(id),
	})
	if err != nil {
		return nil, fmt.Errorf("rds: describe %q: %w", id, err)
	}
	if len(out.DBInstances) == 0 {
		return nil, fmt.Errorf("rds: %q not found", id)
	}
	return dbOutputs(&out.DBInstances[0]), nil
}

// delete skips the final snapshot unless finalSnapshot is set.
func (d *databaseDriver) delete(ctx context.Context, applied provider.Applied) error {
	id := dbIdentifier(applied.Stack, applied.NodeID, applied.Entry.Parameters)
	input := &rds.DeleteDBInstanceInput{
		DBInstanceIdentifier: awsv2.String(id),
		SkipFinalSnapshot:    awsv2.Bool(true),
	}
	if boolProp(applied.Entry.Parameters, "finalSnapshot", false) {
		input.SkipFinalSnapshot = awsv2.Bool(false)
		input.FinalDBSnapshotIdentifier = awsv2.String(id + "-final")
	}
	if _, err := d.client.DeleteDBInstance(ctx, input); err != nil {
		return fmt.Errorf("rds: delete %q: %w", id, err)
	}
	return nil
}

func rdsTags(t map[string]string) []rdstypes.Tag {
	out := make([]rdstypes.Tag, 0, len(t))
	for _, k := range sortedKeys(t) {
		out = append(out, rdstypes.Tag{Key: awsv2.String(k), Value: awsv2.String(t[k])})
	}
	return out
}

func dbOutputs(db *rdstypes.DBInstance) map[string]interface{} {
	if db == nil {
		return nil
	}
	outputs := map[string]interface{}{
		"name":   awsv2.ToString(db.DBInstanceIdentifier),
		"arn":    awsv2.ToString(db.DBInstanceArn),
		"status": awsv2.ToString(db.DBInstanceStatus),
	}
	if db.Endpoint != nil {
		outputs["endpoint"] = awsv2.ToString(db.Endpoint.Address)
		outputs["port"] = int64(awsv2.ToInt32(db.Endpoint.Port))
	}
	if db.MasterUserSecret != nil {
		outputs["secretArn"] = awsv2.ToString(db.MasterUserSecret.SecretArn)
	}
	return outputs
}
