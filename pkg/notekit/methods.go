package notekit

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	methodCellCount           = "get_cell_count"
	methodNotebookMetadata    = "get_notebook_metadata"
	methodCellRange           = "get_cell_range"
	methodSpliceCellRange     = "splice_cell_range"
	methodSetNotebookMetadata = "set_notebook_metadata"
	methodExecuteCellRange    = "execute_cell_range"
	methodNbformatVersion     = "get_nbformat_version"
)

// Version of the nbformat of the notebook.
type Version struct {
	Major int `json:"nbformat"`
	Minor int `json:"nbformat_minor"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// CellCount returns the number of cells of the notebook.
func (m *Manipulator) CellCount(ctx context.Context) (int, error) {
	var count int
	err := m.call(ctx, methodCellCount, nil, &count)
	return count, err
}

func (m *Manipulator) NotebookMetadata(ctx context.Context) (map[string]any, error) {
	var metadata map[string]any
	err := m.call(ctx, methodNotebookMetadata, nil, &metadata)
	return metadata, err
}

// CellRange returns the cells in [start, end).
func (m *Manipulator) CellRange(ctx context.Context, start, end int) ([]Cell, error) {
	var cells []Cell
	err := m.call(ctx, methodCellRange, map[string]any{
		"start": start,
		"end":   end,
	}, &cells)
	return cells, err
}

// SpliceCellRange removes deleteCount cells from start, then inserts cells
// there. Cells are validated against the nbformat v4 cell schema before
// anything is sent.
func (m *Manipulator) SpliceCellRange(ctx context.Context, start, deleteCount int, cells []Cell) error {
	if cells == nil {
		cells = []Cell{}
	}
	for i, cell := range cells {
		if err := ValidateCell(cell); err != nil {
			return fmt.Errorf("cell %d: %w", i, err)
		}
	}
	return m.call(ctx, methodSpliceCellRange, map[string]any{
		"start":        start,
		"delete_count": deleteCount,
		"cells":        cells,
	}, nil)
}

// SetNotebookMetadata replaces the notebook metadata, or merges into it
// when merge is true.
func (m *Manipulator) SetNotebookMetadata(ctx context.Context, metadata map[string]any, merge bool) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return m.call(ctx, methodSetNotebookMetadata, map[string]any{
		"metadata": metadata,
		"merge":    merge,
	}, nil)
}

// ExecuteCellRange runs the cells in [start, end).
func (m *Manipulator) ExecuteCellRange(ctx context.Context, start, end int) error {
	return m.call(ctx, methodExecuteCellRange, map[string]any{
		"start": start,
		"end":   end,
	}, nil)
}

func (m *Manipulator) NbformatVersion(ctx context.Context) (Version, error) {
	var v Version
	err := m.call(ctx, methodNbformatVersion, nil, &v)
	return v, err
}

// call decodes the result into out, unless out is nil.
func (m *Manipulator) call(ctx context.Context, method string, params map[string]any, out any) error {
	raw, err := m.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: unexpected result: %w", ErrProtocol, method, err)
	}
	return nil
}
