// Copyright 2014-2015 The Coname Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package kv contains a generic interface for key-value databases. All
// operations are safe for concurrent use, atomic and synchronously
// persistent.
package kv

// DB is an abstract ordered key-value store. All operations are
// assumed to be synchronous, atomic and linearizable: after Put(k, v)
// has returned, and as long as no other Put(k, ?) has happened, Get(k)
// MUST always return v, regardless of whether the process or the
// entire system has been reset in the meantime.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	NewIterator(*Range) Iterator
	Close() error

	ErrNotFound() error
}

// A Range bounds an iteration: Start is inclusive, Limit exclusive.
// A nil Range iterates the whole store.
type Range struct {
	Start []byte
	Limit []byte
}

// Iterator is an abstract pointer to a DB entry. It must be valid to
// call Error() after release. The boolean return values indicate
// whether the requested entry exists.
type Iterator interface {
	Key() []byte
	Value() []byte
	First() bool
	Next() bool
	Release()
	Error() error
}
