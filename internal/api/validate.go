package api

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/carolina/internal/domain"
)

const (
	maxTitleRunes = 200
	maxEmojiRunes = 10
)

var (
	errTitleTooLong = errors.New("title too long (max 200 characters)")
	errEmojiTooLong = errors.New("emoji too long")

	htmlTag = regexp.MustCompile(`<[^>]*>`)
)

func stripTags(s string) string {
	return strings.TrimSpace(htmlTag.ReplaceAllString(s, ""))
}

// cleanTitle bounds the raw title and strips markup. A title that is empty
// after stripping falls back to the default.
func cleanTitle(raw string) (string, error) {
	if utf8.RuneCountInString(raw) > maxTitleRunes {
		return "", errTitleTooLong
	}
	if t := stripTags(raw); t != "" {
		return t, nil
	}
	return domain.DefaultSessionTitle, nil
}

func cleanEmoji(raw string) (string, error) {
	if utf8.RuneCountInString(raw) > maxEmojiRunes {
		return "", errEmojiTooLong
	}
	if e := stripTags(raw); e != "" {
		return e, nil
	}
	return domain.DefaultSessionEmoji, nil
}
