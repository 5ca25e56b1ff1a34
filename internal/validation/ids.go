package validation

import (
	"fmt"
	"regexp"
)

// TerminalIDPattern определяет допустимый формат terminal id.
// Идентификатор выводится из физического объекта, например "terminal:12:-40:7".
var TerminalIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:\-]{1,128}$`)

// PlayerIDPattern определяет допустимый формат player id
// Только латинские буквы (a-z, A-Z), цифры (0-9), нижнее подчеркивание (_)
var PlayerIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// PrefabIDPattern определяет допустимый формат prefab id
var PrefabIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,64}$`)

const (
	// MaxTerminalIDLen максимальная длина terminal id
	MaxTerminalIDLen = 128
	// MinPlayerIDLen минимальная длина player id
	MinPlayerIDLen = 3
	// MaxPlayerIDLen максимальная длина player id
	MaxPlayerIDLen = 32
)

// ValidateTerminalID проверяет terminal id до любого обращения к состоянию
func ValidateTerminalID(id string) error {
	if id == "" {
		return fmt.Errorf("terminal id cannot be empty")
	}

	if len(id) > MaxTerminalIDLen {
		return fmt.Errorf("terminal id must not exceed %d characters", MaxTerminalIDLen)
	}

	if !TerminalIDPattern.MatchString(id) {
		return fmt.Errorf("terminal id can only contain letters, numbers and _ . : -")
	}

	return nil
}

// ValidatePlayerID проверяет, что player id соответствует требованиям
// Формат: только латинские буквы (a-z, A-Z), цифры (0-9), нижнее подчеркивание (_)
// Длина: 3-32 символа
func ValidatePlayerID(id string) error {
	if id == "" {
		return fmt.Errorf("player id cannot be empty")
	}

	if len(id) < MinPlayerIDLen {
		return fmt.Errorf("player id must be at least %d characters long", MinPlayerIDLen)
	}

	if len(id) > MaxPlayerIDLen {
		return fmt.Errorf("player id must not exceed %d characters", MaxPlayerIDLen)
	}

	if !PlayerIDPattern.MatchString(id) {
		return fmt.Errorf("player id can only contain letters (a-z, A-Z), numbers (0-9), and underscores (_)")
	}

	return nil
}

// ValidatePrefabID проверяет prefab id предмета
func ValidatePrefabID(id string) error {
	if !PrefabIDPattern.MatchString(id) {
		return fmt.Errorf("invalid prefab id %q", id)
	}
	return nil
}
