package rediskey

import "fmt"

// Key prefixes shared by every process writing to the same redis.
const (
	SequencePrefix = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSequenceKey returns "seq:{prefix}:{scope}:{day}"
func BuildSequenceKey(prefix, scope, day string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s:%s", prefix, scope, day))
}
