package messaging

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingTableResolve(t *testing.T) {
	table := newPendingTable()

	request := table.add("c1")

	assert.True(t, table.resolve("c1", []byte("reply")))
	assert.Equal(t, []byte("reply"), <-request.done)
	assert.Equal(t, 0, table.size())
}

func TestPendingTableResolveUnknownID(t *testing.T) {
	table := newPendingTable()

	assert.False(t, table.resolve("missing", []byte("reply")))
}

func TestPendingTableDuplicateResolve(t *testing.T) {
	table := newPendingTable()

	table.add("c1")

	require.True(t, table.resolve("c1", []byte("first")))
	assert.False(t, table.resolve("c1", []byte("second")), "duplicate reply must not resolve twice")
}

func TestPendingTableRemoveWinsOverLateReply(t *testing.T) {
	table := newPendingTable()

	table.add("c1")
	table.remove("c1")

	assert.False(t, table.resolve("c1", []byte("late")))
	assert.Equal(t, 0, table.size())
}

func TestPendingTableConcurrentResolveAndRemove(t *testing.T) {
	table := newPendingTable()

	const requests = 100

	for i := 0; i < requests; i++ {
		table.add(fmt.Sprintf("c%d", i))
	}

	var wg sync.WaitGroup
	resolved := make([]bool, requests)

	for i := 0; i < requests; i++ {
		wg.Add(2)

		go func(i int) {
			defer wg.Done()
			resolved[i] = table.resolve(fmt.Sprintf("c%d", i), []byte("reply"))
		}(i)

		go func(i int) {
			defer wg.Done()
			table.remove(fmt.Sprintf("c%d", i))
		}(i)
	}

	wg.Wait()

	// Either side may win each race, but the table must always end empty.
	assert.Equal(t, 0, table.size())
}

func TestPendingTableSweep(t *testing.T) {
	table := newPendingTable()

	expired := table.add("old")
	expired.createdAt = time.Now().Add(-time.Minute)
	table.add("fresh")

	swept := table.sweep(30 * time.Second)

	assert.Equal(t, 1, swept)
	assert.Equal(t, 1, table.size())
	assert.False(t, table.resolve("old", nil))
	assert.True(t, table.resolve("fresh", nil))
}
