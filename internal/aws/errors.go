package aws

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

// isNotFound reports whether err means the resource is already gone.
// Teardown treats these as success.
func isNotFound(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	code := ae.ErrorCode()
	switch code {
	case "NoSuchEntity", "NoSuchBucket", "NoSuchBucketPolicy", "NotFound", "NotFoundException":
		return true
	}
	return strings.HasSuffix(code, ".NotFound")
}

// isAlreadyExists reports whether err means the resource already exists.
func isAlreadyExists(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "EntityAlreadyExists", "BucketAlreadyOwnedByYou", "InvalidPermission.Duplicate",
		"Resource.AlreadyAssociated":
		return true
	}
	return false
}
