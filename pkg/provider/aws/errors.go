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
	"errors"
	"slices"
	"time"

	"github.com/aws/smithy-go"

	"github.com/kro-run/stackgraph/pkg/requeue"
)

var (
	throttlingCodes = []string{
		"Throttling",
		"ThrottlingException",
		"ThrottledException",
		"RequestLimitExceeded",
		"TooManyRequestsException",
		"RequestThrottled",
		"SlowDown",
	}
	// busyCodes are returned while a conflicting operation is still in
	// progress on the resource.
	busyCodes = []string{
		"ResourceInUseException",
		"IncorrectState",
		"IncorrectInstanceState",
		"InvalidDBInstanceState",
		"InvalidDBInstanceStateFault",
		"ConcurrentModification",
		"DependencyViolation",
		"FileSystemInUse",
		"IncorrectFileSystemLifeCycleState",
		"IncorrectMountTargetState",
	}
	notFoundCodes = []string{
		"ResourceNotFoundException",
		"NoSuchEntity",
		"DBInstanceNotFound",
		"DBInstanceNotFoundFault",
		"InvalidVpcID.NotFound",
		"InvalidSubnetID.NotFound",
		"InvalidGroup.NotFound",
		"FileSystemNotFound",
		"MountTargetNotFound",
	}
	alreadyExistsCodes = []string{
		"EntityAlreadyExists",
		"DBInstanceAlreadyExists",
		"DBInstanceAlreadyExistsFault",
		"FileSystemAlreadyExists",
		"InvalidGroup.Duplicate",
	}
	invalidCodes = []string{
		"ValidationError",
		"ValidationException",
		"InvalidParameterException",
		"InvalidParameterValue",
		"InvalidParameterCombination",
		"MalformedPolicyDocument",
		"UnsupportedAvailabilityZoneException",
	}
)

// busyRetryDelay is the delay requested when the resource is busy.
const busyRetryDelay = 30 * time.Second

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// classify marks API errors for the executor: throttling and busy
// resources are worth a retry, invalid requests are not.
func classify(err error) error {
	if err == nil {
		return nil
	}
	code := errorCode(err)
	switch {
	case slices.Contains(throttlingCodes, code):
		return requeue.Needed(err)
	case slices.Contains(busyCodes, code):
		return requeue.NeededAfter(err, busyRetryDelay)
	case slices.Contains(invalidCodes, code):
		return requeue.None(err)
	}
	return err
}

func isNotFound(err error) bool {
	return slices.Contains(notFoundCodes, errorCode(err))
}

// isAlreadyExists returns true when a create failed because the named
// resource exists. EKS reports it as ResourceInUseException, which also
// means "busy", so the create paths wrap it in errAlreadyExists.
func isAlreadyExists(err error) bool {
	return errors.Is(err, errAlreadyExists) || slices.Contains(alreadyExistsCodes, errorCode(err))
}

var errAlreadyExists = errors.New("resource already exists")
