package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// PrintTree writes a tree(1)-style listing of root to w
func PrintTree(w io.Writer, root string) error {
	fmt.Fprintln(w, root)
	return printTree(w, root, "")
}

func printTree(w io.Writer, dir, indent string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for i, entry := range entries {
		last := i == len(entries)-1
		branch, next := "├── ", "│   "
		if last {
			branch, next = "└── ", "    "
		}
		fmt.Fprintln(w, indent+branch+entry.Name())
		if entry.IsDir() {
			if err := printTree(w, filepath.Join(dir, entry.Name()), indent+next); err != nil {
				return err
			}
		}
	}
	return nil
}
