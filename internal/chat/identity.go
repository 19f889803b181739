package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/oasis/internal/kv"
)

const (
	identityKey = "chat_nickname"

	MinNicknameLen = 2
	MaxNicknameLen = 12
)

var ErrNicknameTooShort = errors.New("chat: nickname must be at least 2 characters")

// NormalizeNickname trims candidate and truncates it to MaxNicknameLen
// characters. Candidates shorter than MinNicknameLen after trimming are rejected.
func NormalizeNickname(candidate string) (string, error) {
	nick := strings.TrimSpace(candidate)
	if utf8.RuneCountInString(nick) < MinNicknameLen {
		return "", ErrNicknameTooShort
	}
	if utf8.RuneCountInString(nick) > MaxNicknameLen {
		nick = string([]rune(nick)[:MaxNicknameLen])
	}
	return nick, nil
}

// Identity persists the nickname chosen for a browser profile.
type Identity struct {
	store kv.Store
}

func NewIdentity(store kv.Store) *Identity {
	return &Identity{store: store}
}

// Load returns the stored nickname. Read failures count as no nickname.
func (i *Identity) Load() (string, bool) {
	v, err := i.store.Get(identityKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Debug().Err(err).Msg("[chat] read nickname")
		}
		return "", false
	}
	if v == "" {
		return "", false
	}
	return v, true
}

// Set validates candidate and persists the normalized nickname. A rejected
// candidate leaves the store untouched.
func (i *Identity) Set(candidate string) (string, error) {
	nick, err := NormalizeNickname(candidate)
	if err != nil {
		return "", err
	}
	if err := i.store.Set(identityKey, nick); err != nil {
		return "", fmt.Errorf("persist nickname: %w", err)
	}
	return nick, nil
}

func (i *Identity) Clear() error {
	return i.store.Remove(identityKey)
}
