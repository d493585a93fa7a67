package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const dinerCatalog = `
menu_items:
  - { id: toast, tenant_id: diner, name: Toast, price_cents: 500 }
recipes:
  - menu_item_id: toast
    tenant_id: diner
    ingredients:
      - { inventory_item_id: bread, quantity: 2 }
inventory:
  - { id: bread, tenant_id: diner, name: Bread, unit: slices, stock: 10 }
  - { id: butter, tenant_id: diner, name: Butter, unit: g, stock: 250 }
`

const orphanCatalog = `
menu_items:
  - { id: toast, tenant_id: diner, name: Toast, price_cents: 500 }
recipes:
  - menu_item_id: toast
    tenant_id: diner
    ingredients:
      - { inventory_item_id: jam, quantity: 1 }
inventory:
  - { id: bread, tenant_id: diner, name: Bread, unit: slices, stock: 10 }
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// writeConfig writes a config using a SQLite store in dir. catalogPath may
// be empty.
func writeConfig(t *testing.T, dir, catalogPath string) string {
	t.Helper()
	body := "store:\n  driver: sqlite\n  path: " + filepath.Join(dir, "galley.db") + "\n" +
		"log:\n  level: error\n"
	if catalogPath != "" {
		body += "catalog:\n  path: " + catalogPath + "\n"
	}
	return writeFile(t, dir, "galley.yaml", body)
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
