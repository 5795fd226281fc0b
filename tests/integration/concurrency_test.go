package integration

import (
	"crypto/ed25519"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"prediction-trade-gateway/pkg/keybundle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentImportSameWallet verifies the one-address-one-owner
// invariant under concurrent load: many users racing to import the same
// bundle, exactly one wins.
func TestConcurrentImportSameWallet(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	bundle, err := keybundle.Encrypt(priv, "correct horse battery")
	require.NoError(t, err)

	concurrency := 10
	headers := make([]map[string]string, concurrency)
	for i := 0; i < concurrency; i++ {
		headers[i] = app.onboard(t, fmt.Sprintf("racer-%d", i))
	}

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := app.call(t, "wallet.import", map[string]any{"bundle": bundle}, headers[i])
			if res.Error == nil {
				wins.Add(1)
			} else if res.Error.Data.ErrorCode == "WAL_002" {
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one user owns the address")
	assert.Equal(t, int32(concurrency-1), conflicts.Load())
}

// TestConcurrentGenerate verifies that racing wallet.generate calls for
// one user never overwrite an existing key.
func TestConcurrentGenerate(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	headers := app.onboard(t, "generator")

	concurrency := 10
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := app.call(t, "wallet.generate", nil, headers)
			if res.Error == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "only one generated key may persist")

	// The surviving wallet still signs.
	res := app.call(t, "position.redeem", map[string]any{"market_id": "market-1"}, headers)
	require.Nil(t, res.Error)
}
