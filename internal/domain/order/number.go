package order

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const NumberPrefix = "INV-"

// Numberer issues order numbers and batch IDs. IDs are unique per node and
// time-ordered; every instance must run with its own node ID.
type Numberer struct {
	node *snowflake.Node
}

func NewNumberer(nodeID int64) (*Numberer, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node %d: %w", nodeID, err)
	}
	return &Numberer{node: node}, nil
}

// Next returns a human-presentable order number such as INV-1BQ9ZT8K2XZ40.
func (n *Numberer) Next() string {
	return NumberPrefix + strings.ToUpper(n.node.Generate().Base36())
}

// NextID returns a raw time-ordered ID.
func (n *Numberer) NextID() int64 {
	return n.node.Generate().Int64()
}
