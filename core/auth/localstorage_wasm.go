//go:build js && wasm

package auth

import "syscall/js"

// LocalStorage keeps the token in window.localStorage under Key.
type LocalStorage struct {
	Key string
}

func (s LocalStorage) storage() js.Value { return js.Global().Get("localStorage") }

func (s LocalStorage) Load() (string, error) {
	v := s.storage().Call("getItem", s.Key)
	if v.IsNull() {
		return "", nil
	}
	return v.String(), nil
}

func (s LocalStorage) Save(token string) error {
	s.storage().Call("setItem", s.Key, token)
	return nil
}

func (s LocalStorage) Clear() error {
	s.storage().Call("removeItem", s.Key)
	return nil
}
