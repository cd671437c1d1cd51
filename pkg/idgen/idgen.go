// Package idgen hands out snowflake ids for ledger and entitlement rows.
// Entitlement ids are generated before the row is written so the charge
// that pays for it can reference it in the same transaction.
package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	mu   sync.Mutex
)

// Init sets the snowflake node (0-1023). It may be called again to replace
// the node, e.g. in tests.
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("idgen: %w", err)
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

func current() *snowflake.Node {
	mu.Lock()
	defer mu.Unlock()
	if node == nil {
		node, _ = snowflake.NewNode(1)
	}
	return node
}

// NextID returns a new unique id.
func NextID() int64 {
	return current().Generate().Int64()
}

// GenerateTransactionNo builds a human-facing ledger number:
// TXN + yyyyMMddHHmmss + last 8 digits of the snowflake id.
func GenerateTransactionNo(id int64) string {
	return fmt.Sprintf("TXN%s%08d", time.Now().UTC().Format("20060102150405"), id%100000000)
}
