package utils

import (
	"fmt"
	"math"

	"github.com/terminus-io/storage-agent/pkg/errdefs"
	"k8s.io/apimachinery/pkg/api/resource"
)

var maxSize = *resource.NewQuantity(math.MaxInt64, resource.DecimalSI)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// ParseSize converts a capacity string such as "10Gi", "5G" or "1048576"
// into bytes. Binary suffixes (Ki, Mi, Gi, ...) are powers of 1024, decimal
// suffixes (k, M, G, ...) powers of 1000.
func ParseSize(s string) (uint64, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, &errdefs.InvalidArgumentError{Argument: "size limit", Reason: fmt.Sprintf("%q: %v", s, err)}
	}

	if q.Sign() <= 0 {
		return 0, &errdefs.InvalidArgumentError{Argument: "size limit", Reason: fmt.Sprintf("%q must be positive", s)}
	}
	if q.Cmp(maxSize) > 0 {
		return 0, &errdefs.InvalidArgumentError{Argument: "size limit", Reason: fmt.Sprintf("%q exceeds maximum of %d bytes", s, int64(math.MaxInt64))}
	}

	// 直接获取 byte 值 (int64)，小数向上取整
	v, ok := q.AsInt64()
	if !ok {
		v = q.Value()
	}
	return uint64(v), nil
}

// HumanGi renders bytes as whole GiB, the way node stats are reported.
func HumanGi(b uint64) string {
	return fmt.Sprintf("%vGi", b/GiB)
}
