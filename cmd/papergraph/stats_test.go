//go:build cgo

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsCommandOnEmptyStore(t *testing.T) {
	t.Setenv("PAPERGRAPH_DB_DRIVER", "sqlite")
	t.Setenv("PAPERGRAPH_DB_DSN", filepath.Join(t.TempDir(), "graph.db"))
	t.Setenv("PAPERGRAPH_LLM_PROVIDER", "openai")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"stats"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.JSONEq(t, `{"nodes":0,"edges":0,"sources":0}`, out.String())
}

func TestBackfillRequiresDocument(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"backfill"})
	assert.Error(t, root.ExecuteContext(context.Background()))
}
