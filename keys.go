package inflight

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
)

// Key hashing needs byte-stable output for equal inputs, so map keys are
// sorted here even though the value serializers skip that for speed.
var jsonStable = jsoniter.Config{SortMapKeys: true, EscapeHTML: false}.Froze()

// Coalescing keys follow the "{entity}-{operation}-{userID}[-{paramsHash}]"
// convention, e.g. "jobs-list-user1" or "jobs-list-user1-9ae16a3b2f90404f".
// A shared convention is what makes pattern invalidation after a mutation
// practical: dropping every pending "jobs-list" read is one anchored
// prefix match.

// Key builds the canonical key for an operation without parameters.
func Key(entity, operation, userID string) string {
	var b strings.Builder
	b.Grow(len(entity) + len(operation) + len(userID) + 2)
	b.WriteString(entity)
	b.WriteByte('-')
	b.WriteString(operation)
	b.WriteByte('-')
	b.WriteString(userID)
	return b.String()
}

// KeyWithParams appends a short stable hash of params, so the same logical
// query coalesces while distinct filters stay independent. Params are
// serialized to JSON and hashed with xxhash; equal params always produce
// equal keys.
func KeyWithParams(entity, operation, userID string, params any) (string, error) {
	data, err := jsonStable.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("hash key params: %w", err)
	}
	sum := xxhash.Sum64(data)
	return Key(entity, operation, userID) + "-" + strconv.FormatUint(sum, 16), nil
}

// KeyPrefix returns an anchored regexp source matching every key built
// from entity and operation, for use with Invalidate.
func KeyPrefix(entity, operation string) string {
	return "^" + regexp.QuoteMeta(entity+"-"+operation+"-")
}
