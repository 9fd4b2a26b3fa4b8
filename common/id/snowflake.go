package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node    *snowflake.Node
	once    sync.Once
	initErr error
)

// Init initializes the Snowflake node with the given node ID.
// Each binary uses its own node ID so run and task IDs never collide.
// Only the first call has any effect.
func Init(nodeID int64) error {
	once.Do(func() {
		node, initErr = snowflake.NewNode(nodeID)
	})
	return initErr
}

// New generates a new time-ordered int64 ID.
// Falls back to node 0 when Init was never called (tests, tools).
func New() int64 {
	if err := Init(0); err != nil {
		panic("snowflake node unavailable: " + err.Error())
	}
	return node.Generate().Int64()
}
