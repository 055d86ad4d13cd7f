package objectstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestIsNotFound(t *testing.T) {
	headMiss := &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
	assert.True(t, isNotFound(headMiss))
	assert.True(t, isNotFound(fmt.Errorf("head object: %w", headMiss)))

	keyMiss := &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	assert.True(t, isNotFound(keyMiss))

	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
	assert.False(t, isNotFound(denied))
	assert.False(t, isNotFound(errors.New("dial tcp: connection refused")))
	assert.False(t, isNotFound(nil))
}
