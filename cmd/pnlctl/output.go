package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/wallet-pnl/internal/types"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// writeRows prints rows in the requested format, keeping column order
func writeRows(w io.Writer, rows []types.OutputRow, format string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, rows)
	case formatYAML:
		return writeYAML(w, rowsNode(rows))
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", format, formatJSON, formatYAML)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// rowsNode builds a YAML sequence of mappings. A node tree is used instead
// of maps so keys keep their column order.
func rowsNode(rows []types.OutputRow) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, row := range rows {
		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, col := range row {
			// numeric cells are left untagged so they print as plain scalars
			tag := "!!str"
			if col.Numeric {
				tag = ""
			}
			m.Content = append(m.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: col.Name},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: col.Value},
			)
		}
		seq.Content = append(seq.Content, m)
	}
	return seq
}
