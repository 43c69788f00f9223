package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/ferry/internal/core"
	"github.com/JonMunkholm/ferry/internal/flatfile"
)

// TestTransfer_FileToDuckDBAndBack drives the transfer service end to end
// over an in-memory DuckDB and an in-memory filesystem.
func TestTransfer_FileToDuckDBAndBack(t *testing.T) {
	ctx := context.Background()
	connector := newDuckDB(t)
	fs := memfs.New()

	var sb strings.Builder
	sb.WriteString("id,name,value\n")
	for i := 1; i <= 2500; i++ {
		fmt.Fprintf(&sb, "%d,name-%d,%d.5\n", i, i, i)
	}
	require.NoError(t, util.WriteFile(fs, "uploads/in.csv", []byte(sb.String()), 0o644))

	reader := flatfile.NewReader(fs)
	svc := core.NewService(core.ServiceConfig{ImportBatchSize: 1000, ExportBatchSize: 1000}, core.Dependencies{
		Connector: connector,
		Files:     reader,
		Inspector: reader,
		Writer:    flatfile.NewWriter(fs),
	})
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	cfg := core.ConnectionConfig{}
	require.NoError(t, svc.CreateTable(ctx, cfg, "items", []string{"id", "name", "value"}))

	id, err := svc.StartTransfer(ctx, core.TransferRequest{
		Direction: core.DirectionFileToStore,
		Table:     "items",
		FilePath:  "uploads/in.csv",
		Columns:   []string{"id", "name", "value"},
	})
	require.NoError(t, err)

	rec := waitFor(t, svc, id)
	require.Equal(t, core.StatusCompleted, rec.Status, rec.Message)
	assert.Equal(t, int64(2500), rec.RecordsProcessed)
	assert.Equal(t, int64(2500), rec.TotalRecords)
	assert.Equal(t, 100.0, rec.PercentComplete)

	id, err = svc.StartTransfer(ctx, core.TransferRequest{
		Direction: core.DirectionStoreToFile,
		Table:     "items",
		FilePath:  "exports/items.tsv",
		Delimiter: `\t`,
		Columns:   []string{"name", "id"},
	})
	require.NoError(t, err)

	rec = waitFor(t, svc, id)
	require.Equal(t, core.StatusCompleted, rec.Status, rec.Message)
	assert.Equal(t, int64(2500), rec.RecordsProcessed)

	data, err := util.ReadFile(fs, "exports/items.tsv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2501)
	assert.Equal(t, "name\tid", lines[0])
	assert.Equal(t, "name-1\t1", lines[1])
	assert.Equal(t, "name-2500\t2500", lines[2500])
}

func TestTransfer_MissingColumnFailsBeforeInsert(t *testing.T) {
	ctx := context.Background()
	connector := newDuckDB(t)
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "in.csv", []byte("id\n1\n"), 0o644))

	reader := flatfile.NewReader(fs)
	svc := core.NewService(core.ServiceConfig{}, core.Dependencies{
		Connector: connector, Files: reader, Inspector: reader, Writer: flatfile.NewWriter(fs),
	})
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	require.NoError(t, svc.CreateTable(ctx, core.ConnectionConfig{}, "t", []string{"id", "email"}))

	id, err := svc.StartTransfer(ctx, core.TransferRequest{
		Direction: core.DirectionFileToStore, Table: "t", FilePath: "in.csv", Columns: []string{"id", "email"},
	})
	require.NoError(t, err)

	rec := waitFor(t, svc, id)
	assert.Equal(t, core.StatusError, rec.Status)
	assert.Contains(t, rec.Message, "failed to import data")
	assert.Contains(t, rec.Message, "email")
	assert.Equal(t, int64(0), rec.RecordsProcessed)
}

func waitFor(t *testing.T, svc *core.Service, id string) core.OperationRecord {
	t.Helper()
	var rec core.OperationRecord
	require.Eventually(t, func() bool {
		var err error
		rec, err = svc.GetStatus(id)
		require.NoError(t, err)
		return rec.Status.Terminal()
	}, 30*time.Second, 10*time.Millisecond)
	return rec
}
