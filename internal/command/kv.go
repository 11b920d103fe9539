package command

import (
	"errors"
	"fmt"

	"github.com/lojhan/minikv/internal/resp"
	"github.com/lojhan/minikv/internal/store"
)

func GetCommand(ht *store.HashTable) Handler {
	return func(args []string) resp.Value {
		if len(args) != 1 {
			return wrongArgs("get")
		}

		value, ok := ht.Get(args[0])
		if !ok {
			return resp.NullBulkStringValue()
		}
		return resp.BulkStringValue(value)
	}
}

// SetCommand stores a pair and hands the change to commit, which may save it.
func SetCommand(ht *store.HashTable, commit func(changed bool) error) Handler {
	return func(args []string) resp.Value {
		if len(args) != 2 {
			return wrongArgs("set")
		}

		if err := ht.Set(args[0], args[1]); err != nil {
			switch {
			case errors.Is(err, store.ErrInvalidKey):
				return resp.ErrorValue("ERR invalid key")
			case errors.Is(err, store.ErrInvalidValue):
				return resp.ErrorValue("ERR invalid value")
			default:
				return resp.ErrorValue(fmt.Sprintf("ERR %v", err))
			}
		}

		if err := commit(true); err != nil {
			return resp.ErrorValue(fmt.Sprintf("ERR failed to save file: %v", err))
		}
		return resp.OKValue()
	}
}

// DelCommand replies 1 when the key was removed and 0 when it was absent.
// Both are successes.
func DelCommand(ht *store.HashTable, commit func(changed bool) error) Handler {
	return func(args []string) resp.Value {
		if len(args) != 1 {
			return wrongArgs("del")
		}

		var removed int64
		if ht.Delete(args[0]) {
			removed = 1
		}

		if err := commit(removed == 1); err != nil {
			return resp.ErrorValue(fmt.Sprintf("ERR failed to save file: %v", err))
		}
		return resp.IntegerValue(removed)
	}
}

// ListCommand replies with every entry as "key=value", sorted by key.
func ListCommand(ht *store.HashTable) Handler {
	return func(args []string) resp.Value {
		if len(args) != 0 {
			return wrongArgs("list")
		}

		keys := ht.Keys()
		lines := make([]string, len(keys))
		for i, key := range keys {
			value, _ := ht.Get(key)
			lines[i] = key + "=" + value
		}
		return resp.BulkStringsValue(lines...)
	}
}

func CountCommand(ht *store.HashTable) Handler {
	return func(args []string) resp.Value {
		if len(args) != 0 {
			return wrongArgs("count")
		}
		return resp.IntegerValue(int64(ht.Count()))
	}
}
