package store

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
)

// Stats holds backend statistics.
type Stats struct {
	Backend      string           `json:"backend"`
	Location     string           `json:"location"`
	SizeBytes    int64            `json:"size_bytes"`
	TotalRecords int              `json:"total_records"`
	Namespaces   []NamespaceStats `json:"namespaces"`
}

// NamespaceStats holds per-namespace counts.
type NamespaceStats struct {
	NS      string `json:"ns"`
	Records int    `json:"records"`
	Bytes   int64  `json:"bytes"`
}

// Stats returns database statistics.
func (b *SQLiteBackend) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Backend: "sqlite", Location: b.path}

	// DB file size
	if info, err := os.Stat(b.path); err == nil {
		st.SizeBytes = info.Size()
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT ns, COUNT(*) AS cnt, COALESCE(SUM(LENGTH(body)), 0) AS bytes
		FROM records GROUP BY ns ORDER BY cnt DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ns NamespaceStats
		if err := rows.Scan(&ns.NS, &ns.Records, &ns.Bytes); err != nil {
			return st, err
		}
		st.TotalRecords += ns.Records
		st.Namespaces = append(st.Namespaces, ns)
	}
	return st, rows.Err()
}

// Stats walks the data directory.
func (b *FileBackend) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Backend: "file", Location: b.dir}

	dirs, err := os.ReadDir(b.dir)
	if err != nil {
		return st, err
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		name, err := url.PathUnescape(d.Name())
		if err != nil {
			name = d.Name()
		}
		ns := NamespaceStats{NS: name}
		files, err := os.ReadDir(filepath.Join(b.dir, d.Name()))
		if err != nil {
			return st, err
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			ns.Records++
			ns.Bytes += info.Size()
		}
		st.TotalRecords += ns.Records
		st.SizeBytes += ns.Bytes
		st.Namespaces = append(st.Namespaces, ns)
	}
	return st, nil
}
