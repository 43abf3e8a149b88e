package resources

import "github.com/cespare/xxhash/v2"

// Port range for the REST API of the bots
const (
	APIPortBase = 8080
	APIPortMax  = 8180
)

// AllocatePort derives the API port of a bot from its name. The same name
// always yields the same port. Different names may collide; ports are
// container local so this only matters for pods sharing a network namespace.
func AllocatePort(name string) int32 {
	offset := xxhash.Sum64String(name) % uint64(APIPortMax-APIPortBase)
	return int32(APIPortBase + offset)
}
