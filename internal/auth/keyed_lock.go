package auth

import "sync"

// lockEntry は1キー分のロックと参照カウントを保持する。
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedLock は (identifier, purpose) 単位の排他制御を提供する。
// 同一キーに対する発行・検証を直列化し、並行リクエストが
// 有効なコードを同時に2つ作る競合を防ぐ。
// 未使用になったエントリは参照カウントで即座に回収される。
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// newKeyedLock はkeyedLockを生成する。
func newKeyedLock() *keyedLock {
	return &keyedLock{
		locks: make(map[string]*lockEntry),
	}
}

// lock は指定キーのロックを取得する。
func (l *keyedLock) lock(key string) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &lockEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// unlock は指定キーのロックを解放する。
// 待機者がいなければエントリをマップから削除する。
func (l *keyedLock) unlock(key string) {
	l.mu.Lock()
	entry := l.locks[key]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}

// size は現在保持しているエントリ数を返す。テスト用。
func (l *keyedLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
