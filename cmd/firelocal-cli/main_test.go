package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firelocal/firelocal-go/firelocal"
)

// These exercise the same batch-entry parsing and command dispatch the
// firelocal-cli binary drives from os.Args, without shelling out to it.

func TestCmdPutThenCmdGetRoundTrip(t *testing.T) {
	eng := openCLITestEngine(t)

	require.NoError(t, cmdPut(eng, []string{"users/alice", `{"name":"Alice"}`}))

	got, err := eng.Get("users/alice")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Alice"}`, string(got))
}

func TestCmdDeleteRemovesDocument(t *testing.T) {
	eng := openCLITestEngine(t)

	require.NoError(t, cmdPut(eng, []string{"users/alice", `{}`}))
	require.NoError(t, cmdDelete(eng, []string{"users/alice"}))

	got, err := eng.Get("users/alice")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCmdBatchAppliesSetUpdateAndDeleteAtomically(t *testing.T) {
	eng := openCLITestEngine(t)

	require.NoError(t, cmdPut(eng, []string{"users/bob", `{"age":1}`}))
	require.NoError(t, cmdBatch(eng, []string{
		"set:users/alice:{\"v\":1}",
		"update:users/bob:{\"age\":2}",
		"delete:users/carol",
	}))

	alice, err := eng.Get("users/alice")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(alice))

	bob, err := eng.Get("users/bob")
	require.NoError(t, err)
	assert.JSONEq(t, `{"age":2}`, string(bob))
}

func TestCmdBatchRejectsMalformedEntry(t *testing.T) {
	eng := openCLITestEngine(t)

	err := cmdBatch(eng, []string{"set:users/alice"})
	assert.Error(t, err)
}

func TestCmdGetRequiresExactlyOnePath(t *testing.T) {
	eng := openCLITestEngine(t)
	assert.Error(t, cmdGet(eng, nil))
	assert.Error(t, cmdGet(eng, []string{"a", "b"}))
}

func openCLITestEngine(t *testing.T) *firelocal.Engine {
	t.Helper()
	opts := firelocal.DefaultOptions()
	opts.RulesMode = firelocal.RulesAllowAll
	eng, err := firelocal.Open(filepath.Join(t.TempDir(), "db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}
