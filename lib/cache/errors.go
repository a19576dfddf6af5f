package cache

import "fmt"

type ErrItemAlreadyExists struct {
	key interface{}
}

func (e *ErrItemAlreadyExists) Error() string {
	return fmt.Sprintf("size_cache: item already exists, key: %#v", e.key)
}
