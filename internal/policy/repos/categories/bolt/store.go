package bolt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/famfilter/internal/policy/domain"
	"github.com/haukened/famfilter/internal/policy/repos/categories"
)

var (
	bucketExact  = []byte("exact")
	bucketSuffix = []byte("suffix")
	bucketMeta   = []byte("meta")

	metaVersion = []byte("version")
	metaUpdated = []byte("updated")
)

// valueSep separates the category slug from the source in stored values.
const valueSep = '\x1f'

// boltStore implements categories.Store using bbolt.
// exact:  name → category, source
// suffix: reversed name → category, source
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (categories.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketExact, bucketSuffix, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// RebuildAll replaces both indexes with rules in one transaction. When the
// same key appears twice the first rule wins.
func (s *boltStore) RebuildAll(rules []domain.CategoryRule, version uint64, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketExact, bucketSuffix} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
		}
		exact, err := tx.CreateBucket(bucketExact)
		if err != nil {
			return err
		}
		suffix, err := tx.CreateBucket(bucketSuffix)
		if err != nil {
			return err
		}

		for _, r := range rules {
			var (
				b   *bbolt.Bucket
				key []byte
			)
			switch r.Kind {
			case domain.CategoryRuleExact:
				b, key = exact, []byte(r.Name)
			case domain.CategoryRuleSuffix:
				b, key = suffix, []byte(categories.ReverseName(r.Name))
			default:
				continue
			}
			if b.Get(key) != nil {
				continue
			}
			if err := b.Put(key, encodeValue(r.Category, r.Source)); err != nil {
				return fmt.Errorf("put %q: %w", r.Name, err)
			}
		}

		meta := tx.Bucket(bucketMeta)
		vbuf := make([]byte, 8)
		ubuf := make([]byte, 8)
		binary.BigEndian.PutUint64(vbuf, version)
		binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
		if err := meta.Put(metaVersion, vbuf); err != nil {
			return err
		}
		return meta.Put(metaUpdated, ubuf)
	})
}

// GetFirstMatch looks name up in the exact bucket, then walks suffix anchors
// from the name itself toward the TLD, returning the first hit.
func (s *boltStore) GetFirstMatch(name string) (domain.CategoryRule, bool, error) {
	var (
		rule  domain.CategoryRule
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketExact); b != nil {
			if v := b.Get([]byte(name)); v != nil {
				rule, found = decodeRule(name, domain.CategoryRuleExact, v), true
				return nil
			}
		}
		b := tx.Bucket(bucketSuffix)
		if b == nil {
			return nil
		}
		a := name
		for a != "" {
			if v := b.Get([]byte(categories.ReverseName(a))); v != nil {
				rule, found = decodeRule(a, domain.CategoryRuleSuffix, v), true
				return nil
			}
			i := strings.IndexByte(a, '.')
			if i < 0 {
				break
			}
			a = a[i+1:]
		}
		return nil
	})
	return rule, found, err
}

func (s *boltStore) Stats() categories.StoreStats {
	st := categories.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketExact); b != nil {
			st.ExactKeys = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketSuffix); b != nil {
			st.SuffixKeys = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(metaVersion); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(metaUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

func encodeValue(category, source string) []byte {
	v := make([]byte, 0, len(category)+1+len(source))
	v = append(v, category...)
	v = append(v, valueSep)
	return append(v, source...)
}

// decodeRule copies out of v; bbolt values are only valid inside the transaction.
func decodeRule(name string, kind domain.CategoryRuleKind, v []byte) domain.CategoryRule {
	category, source := v, []byte(nil)
	if i := bytes.IndexByte(v, valueSep); i >= 0 {
		category, source = v[:i], v[i+1:]
	}
	return domain.CategoryRule{
		Name:     name,
		Kind:     kind,
		Category: string(category),
		Source:   string(source),
	}
}

var _ categories.Store = (*boltStore)(nil)
