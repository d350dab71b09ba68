package rtdb

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// sep separates the key prefix and path segments in badger keys.
const sep = "\x1f"

func init() {
	gob.Register(&Counter{})
}

// leaf is the gob envelope of one stored value.
type leaf struct {
	V any
}

// encodeKey returns prefix+sep for the root and prefix+sep+sep+seg1+sep+seg2...
// for any other path.
func encodeKey(prefix string, path []string) []byte {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(sep)
	for _, seg := range path {
		b.WriteString(sep)
		b.WriteString(seg)
	}
	return []byte(b.String())
}

func decodeKey(prefix string, key []byte) []string {
	rest := strings.TrimPrefix(string(key), prefix+sep)
	if rest == "" {
		return nil
	}
	return strings.Split(rest[len(sep):], sep)
}

// Save writes every stored value under prefix in bdb. Values are gob encoded;
// analysis-defined leaf types must be registered with gob.Register.
//
// Example:
//
//	bdb, _ := badger.Open(badger.DefaultOptions(dir))
//	defer bdb.Close()
//	err := db.Save(ctx, bdb, runID)
func (db *DB) Save(ctx context.Context, bdb *badger.DB, prefix string) error {
	wb := bdb.NewWriteBatch()
	defer wb.Cancel()

	err := db.Walk(func(path []string, v any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(leaf{V: v}); err != nil {
			return fmt.Errorf("rtdb: encode %v: %w", path, err)
		}
		return wb.Set(encodeKey(prefix, path), buf.Bytes())
	})
	if err != nil {
		return err
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("rtdb: flush snapshot %q: %w", prefix, err)
	}
	return nil
}

// Load reads the values saved under prefix into a new DB.
func Load(ctx context.Context, bdb *badger.DB, prefix string) (*DB, error) {
	db := New()
	err := bdb.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix + sep)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			path := decodeKey(prefix, item.KeyCopy(nil))

			var l leaf
			err := item.Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&l)
			})
			if err != nil {
				return fmt.Errorf("rtdb: decode %v: %w", path, err)
			}
			db.Set(l.V, path...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}
