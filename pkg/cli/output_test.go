package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdstore/internal/domain"
)

func TestPrintTable_Basic(t *testing.T) {
	var buf bytes.Buffer
	rows := [][]string{
		{"1", "sales"},
		{"4096", "orders"},
	}

	require.NoError(t, printTable(&buf, []string{"ID", "NAME"}, rows))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Len(t, lines, 3, "expected header + 2 data rows")
	assert.Equal(t, "ID    NAME", lines[0])
	assert.Equal(t, "1     sales", lines[1])
	assert.Equal(t, "4096  orders", lines[2])
}

func TestPrintTable_EmptyHeaders(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, nil, [][]string{{"a"}}))
	assert.Empty(t, buf.String())
}

func TestPrintTable_NoRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, targetHeaders, nil))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a long ...", truncate("a long description", 10))
	assert.Equal(t, "abcdef", truncate("abcdef", 3), "tiny widths leave the value alone")
}

func TestPrintTargets(t *testing.T) {
	schema := domain.NewTarget(domain.KindSchema, 1<<24, 0, "sales", "", domain.NewLocation("csv", "/data"))
	table := domain.NewTarget(domain.KindTable, 1<<24|1<<12, 1<<24, "orders", "all orders", domain.Location{})

	var buf bytes.Buffer
	opts := &rootOptions{output: "table"}
	require.NoError(t, opts.printTargets(&buf, []*domain.Target{schema, table}))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "csv PATH=/data")
	assert.Contains(t, lines[2], "16777216")
	assert.Contains(t, lines[2], "all orders")

	buf.Reset()
	opts.output = "json"
	require.NoError(t, opts.printTargets(&buf, []*domain.Target{schema, table}))
	var out []targetJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Nil(t, out[0].Parent)
	require.NotNil(t, out[1].Parent)
	assert.Equal(t, schema.ID(), *out[1].Parent)
	assert.Empty(t, out[1].Location)
}
