package mdbxkv

import (
	"bytes"

	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/dgtstore/dgtstore/pkg/kv"
)

type roTx struct {
	txn *mdbx.Txn
	db  *DB
}

func (t *roTx) GetOne(table string, key []byte) ([]byte, error) {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return nil, err
	}
	v, err := t.txn.Get(dbi, key)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *roTx) Cursor(table string) (kv.Cursor, error) {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, err
	}
	return &cursor{c: c}, nil
}

func (t *roTx) DupCursor(table string) (kv.DupCursor, error) {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, err
	}
	return &cursor{c: c}, nil
}

type rwTx struct {
	roTx
}

func (t *rwTx) Put(table string, key, val []byte) error {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return err
	}
	return t.txn.Put(dbi, key, val, 0)
}

func (t *rwTx) Delete(table string, key, val []byte) error {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return err
	}
	err = t.txn.Del(dbi, key, val)
	if err != nil && mdbx.IsNotFound(err) {
		return nil
	}
	return err
}

func (t *rwTx) RwCursor(table string) (kv.RwCursor, error) {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, err
	}
	return &cursor{c: c}, nil
}

func (t *rwTx) RwDupCursor(table string) (kv.RwDupCursor, error) {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, err
	}
	return &cursor{c: c}, nil
}

// cursor adapts *mdbx.Cursor to kv.Cursor / kv.DupCursor / kv.RwCursor /
// kv.RwDupCursor, all at once: the concrete type implements every
// method and callers narrow to the interface they need.
type cursor struct {
	c *mdbx.Cursor
}

func (cu *cursor) First() (k, v []byte, err error) {
	return cu.get(nil, nil, mdbx.First)
}

func (cu *cursor) Seek(key []byte) (k, v []byte, err error) {
	return cu.get(key, nil, mdbx.SetRange)
}

func (cu *cursor) Next() (k, v []byte, err error) {
	return cu.get(nil, nil, mdbx.Next)
}

func (cu *cursor) SeekBothRange(key, value []byte) (v []byte, err error) {
	_, v, err = cu.get(key, value, mdbx.GetBothRange)
	return v, err
}

func (cu *cursor) FirstDup() (v []byte, err error) {
	_, v, err = cu.get(nil, nil, mdbx.FirstDup)
	return v, err
}

func (cu *cursor) NextDup() (k, v []byte, err error) {
	return cu.get(nil, nil, mdbx.NextDup)
}

func (cu *cursor) NextNoDup() (k, v []byte, err error) {
	return cu.get(nil, nil, mdbx.NextNoDup)
}

func (cu *cursor) Put(key, val []byte) error {
	return cu.c.Put(key, val, 0)
}

func (cu *cursor) Delete(key, val []byte) error {
	k, v, err := cu.get(key, val, mdbx.GetBoth)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil
		}
		return err
	}
	if k == nil && v == nil {
		return nil
	}
	if !bytes.Equal(v, val) {
		return nil
	}
	return cu.c.Del(0)
}

func (cu *cursor) Close() {
	cu.c.Close()
}

func (cu *cursor) get(key, val []byte, op mdbx.CursorOp) (k, v []byte, err error) {
	k, v, err = cu.c.Get(key, val, op)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	outK := append([]byte(nil), k...)
	outV := append([]byte(nil), v...)
	return outK, outV, nil
}
