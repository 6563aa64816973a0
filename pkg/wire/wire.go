// Package wire converts hydrated patches (property trees holding raw
// binary leaves) into the JSON state plus out-of-band buffers exchanged
// on widget comms, and back.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

var (
	ErrMalformed   = errors.New("wire: malformed wire message")
	ErrUnsupported = errors.New("wire: unsupported patch node")
)

// Message is the JSON-safe form of a patch.
//
// Each entry of BufferPaths addresses, from the root of State, the null
// placeholder the buffer at the same index replaces. Path elements are
// either string (map key) or int (list index).
type Message struct {
	State       json.RawMessage
	BufferPaths [][]any
	Buffers     [][]byte
}

// Encode walks patch depth-first and strips every []byte leaf into the
// buffer side channel. Map keys are visited in sorted order and lists by
// index, so encoding the same patch twice yields the same message.
func Encode(patch map[string]any) (Message, error) {
	w := walker{}
	stripped, err := w.walk(patch, nil)
	if err != nil {
		return Message{}, err
	}

	state, err := json.Marshal(stripped)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}

	paths := w.paths
	if paths == nil {
		paths = [][]any{}
	}
	return Message{
		State:       state,
		BufferPaths: paths,
		Buffers:     w.buffers,
	}, nil
}

type walker struct {
	paths   [][]any
	buffers [][]byte
}

func (w *walker) walk(node any, path []any) (any, error) {
	switch node := node.(type) {
	case nil, string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return node, nil
	case []byte:
		w.paths = append(w.paths, slices.Clone(path))
		w.buffers = append(w.buffers, node)
		return nil, nil
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			stripped, err := w.walk(item, append(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = stripped
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[string]any, len(node))
		for _, k := range keys {
			stripped, err := w.walk(node[k], append(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = stripped
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T at %v", ErrUnsupported, node, path)
	}
}

// Decode parses the JSON state of msg into a generic tree, then puts each
// buffer back at the position its path designates.
func Decode(msg Message) (map[string]any, error) {
	if len(msg.BufferPaths) != len(msg.Buffers) {
		return nil, fmt.Errorf(
			"%w: %d buffer paths for %d buffers",
			ErrMalformed, len(msg.BufferPaths), len(msg.Buffers),
		)
	}

	state := map[string]any{}
	if len(msg.State) > 0 && string(msg.State) != "null" {
		if err := json.Unmarshal(msg.State, &state); err != nil {
			return nil, fmt.Errorf("%w: state is not a JSON object: %w", ErrMalformed, err)
		}
	}

	for i, path := range msg.BufferPaths {
		if err := insert(state, path, msg.Buffers[i]); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func insert(root map[string]any, path []any, buf []byte) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty buffer path", ErrMalformed)
	}

	var node any = root
	for depth, elem := range path[:len(path)-1] {
		next, err := child(node, elem)
		if err != nil {
			return fmt.Errorf("%w (path %v, depth %d)", err, path, depth)
		}
		node = next
	}

	last := path[len(path)-1]
	switch container := node.(type) {
	case map[string]any:
		key, ok := last.(string)
		if !ok {
			return fmt.Errorf("%w: map addressed by %T in path %v", ErrMalformed, last, path)
		}
		container[key] = buf
	case []any:
		idx, err := index(last, len(container))
		if err != nil {
			return fmt.Errorf("%w (path %v)", err, path)
		}
		container[idx] = buf
	default:
		return fmt.Errorf("%w: path %v does not end in a container", ErrMalformed, path)
	}
	return nil
}

func child(node any, elem any) (any, error) {
	switch container := node.(type) {
	case map[string]any:
		key, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("%w: map addressed by %T", ErrMalformed, elem)
		}
		next, ok := container[key]
		if !ok {
			return nil, fmt.Errorf("%w: missing key %q", ErrMalformed, key)
		}
		return next, nil
	case []any:
		idx, err := index(elem, len(container))
		if err != nil {
			return nil, err
		}
		return container[idx], nil
	default:
		return nil, fmt.Errorf("%w: %T is not a container", ErrMalformed, node)
	}
}

func index(elem any, length int) (int, error) {
	var idx int
	switch elem := elem.(type) {
	case int:
		idx = elem
	case int64:
		idx = int(elem)
	case float64:
		if elem != math.Trunc(elem) {
			return 0, fmt.Errorf("%w: non integral index %v", ErrMalformed, elem)
		}
		idx = int(elem)
	case json.Number:
		i, err := elem.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: index %q: %w", ErrMalformed, elem.String(), err)
		}
		idx = int(i)
	default:
		return 0, fmt.Errorf("%w: list addressed by %T", ErrMalformed, elem)
	}

	if idx < 0 || idx >= length {
		return 0, fmt.Errorf("%w: index %d out of range [0, %d)", ErrMalformed, idx, length)
	}
	return idx, nil
}

// DecodePaths normalises buffer paths decoded from JSON, where list
// indices arrive as float64, into string and int elements.
func DecodePaths(raw [][]any) ([][]any, error) {
	out := make([][]any, len(raw))
	for i, path := range raw {
		norm := make([]any, len(path))
		for j, elem := range path {
			switch elem := elem.(type) {
			case string:
				norm[j] = elem
			case float64:
				if elem != math.Trunc(elem) || elem < 0 {
					return nil, fmt.Errorf("%w: invalid index %v in path %v", ErrMalformed, elem, path)
				}
				norm[j] = int(elem)
			case int:
				norm[j] = elem
			case json.Number:
				n, err := elem.Int64()
				if err != nil {
					return nil, fmt.Errorf("%w: invalid index %q in path %v", ErrMalformed, elem.String(), path)
				}
				norm[j] = int(n)
			default:
				return nil, fmt.Errorf("%w: %T in path %v", ErrMalformed, elem, path)
			}
		}
		out[i] = norm
	}
	return out, nil
}

// Prefix returns a copy of paths with prefix prepended to each of them.
func Prefix(paths [][]any, prefix ...any) [][]any {
	out := make([][]any, len(paths))
	for i, path := range paths {
		out[i] = append(slices.Clone(prefix), path...)
	}
	return out
}
